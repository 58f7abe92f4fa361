package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type DataFormat string

const (
	FORMAT_LIST DataFormat = "list"
	FORMAT_JSON DataFormat = "json"
	FORMAT_YAML DataFormat = "yaml"
)

var Formats = []DataFormat{FORMAT_LIST, FORMAT_JSON, FORMAT_YAML}

func (df DataFormat) String() string {
	return string(df)
}

func (df *DataFormat) Set(v string) error {
	switch DataFormat(v) {
	case FORMAT_LIST, FORMAT_JSON, FORMAT_YAML:
		*df = DataFormat(v)
		return nil
	default:
		return fmt.Errorf("must be one of %v", Formats)
	}
}

func (df DataFormat) Type() string {
	return "DataFormat"
}

// Lister is implemented by values that have a line-per-item rendering.
type Lister interface {
	List() []string
}

// Marshal renders data as outFormat. FORMAT_LIST requires data to be a
// Lister; anything else falls back to fmt's default formatting.
func Marshal(data any, outFormat DataFormat) ([]byte, error) {
	switch outFormat {
	case FORMAT_JSON:
		bytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data into JSON: %w", err)
		}
		return bytes, nil
	case FORMAT_YAML:
		bytes, err := yaml.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data into YAML: %w", err)
		}
		return bytes, nil
	case FORMAT_LIST:
		if l, ok := data.(Lister); ok {
			return []byte(strings.Join(l.List(), "\n")), nil
		}
		return []byte(fmt.Sprint(data)), nil
	default:
		return nil, fmt.Errorf("unknown data format: %s", outFormat)
	}
}
