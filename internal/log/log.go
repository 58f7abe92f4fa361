package log

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// string representation that directly corresponds to zerolog.Level
type LogLevel string

const (
	DEBUG    LogLevel = "debug"
	INFO     LogLevel = "info"
	WARN     LogLevel = "warn"
	ERROR    LogLevel = "error"
	DISABLED LogLevel = "disabled"
	TRACE    LogLevel = "trace"
)

var Levels = [6]LogLevel{DEBUG, INFO, WARN, ERROR, DISABLED, TRACE}
var LogFile *os.File

func (ll LogLevel) String() string {
	return string(ll)
}

func (ll *LogLevel) Set(v string) error {
	if !slices.Contains(Levels[:], LogLevel(v)) {
		return fmt.Errorf("must be one of %v", Levels)
	}
	*ll = LogLevel(v)
	return nil
}

func (ll LogLevel) Type() string {
	return "LogLevel"
}

// InitWithLogLevel replaces the global zerolog logger with one writing to
// stderr and, if logPath is set, appending to that file as well.
func InitWithLogLevel(logLevel LogLevel, logPath string) error {
	var (
		writers []io.Writer
		err     error
	)

	level, err := strToLogLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to convert log level: %v", err)
	}

	writers = append(writers, &zerolog.FilteredLevelWriter{
		Writer: &zerolog.LevelWriterAdapter{Writer: os.Stderr},
		Level:  level,
	})

	if logPath != "" {
		LogFile, err = os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: LogFile},
			Level:  level,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Caller().
		Logger()
	zerolog.SetGlobalLevel(level)
	return nil
}

// Close closes the log file opened by InitWithLogLevel, if any.
func Close() error {
	if LogFile == nil {
		return nil
	}
	return LogFile.Close()
}

func strToLogLevel(ll LogLevel) (zerolog.Level, error) {
	switch ll {
	case DISABLED:
		return zerolog.Disabled, nil
	case TRACE:
		return zerolog.TraceLevel, nil
	case "":
		return zerolog.InfoLevel, nil
	}
	if index := slices.Index(Levels[:], ll); index >= 0 {
		// debug..error line up with zerolog.DebugLevel..ErrorLevel
		return zerolog.Level(index), nil
	}
	var names []string
	for _, l := range Levels {
		names = append(names, string(l))
	}
	return zerolog.NoLevel, fmt.Errorf("invalid log level (options: %s)", strings.Join(names, ", "))
}
