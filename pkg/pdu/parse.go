package pdu

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is the outlet state token found on a console line.
type Tag int

const (
	TagNone Tag = iota
	TagOn
	TagOff
)

func (t Tag) String() string {
	switch t {
	case TagOn:
		return "ON"
	case TagOff:
		return "OFF"
	default:
		return "NONE"
	}
}

// Result is a tokenized console line: the state tag it carries and the
// text around it that was not part of the tag.
type Result struct {
	Tag  Tag
	Rest string
}

// bannerCountLine is the banner line whose last token is the outlet count.
const bannerCountLine = 4

// ParseBanner extracts the outlet count from the greeting shown before
// the login prompt.
func ParseBanner(lines []string) (int, error) {
	if len(lines) <= bannerCountLine {
		return 0, fmt.Errorf("%w: banner has %d lines, expected at least %d", ErrProtocol, len(lines), bannerCountLine+1)
	}
	fields := strings.Fields(lines[bannerCountLine])
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty banner line %d", ErrProtocol, bannerCountLine)
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: banner line %q has no outlet count", ErrProtocol, lines[bannerCountLine])
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: invalid outlet count %d", ErrProtocol, n)
	}
	return n, nil
}

// ParseStatus looks for a tab-enclosed field ending in ON or OFF, e.g.
// the third field of "\t02\tON\t". Rest holds the fields after the tag.
func ParseStatus(line string) Result {
	fields := strings.Split(line, "\t")
	// only fields with a tab on both sides qualify
	for i := 1; i < len(fields)-1; i++ {
		var tag Tag
		switch {
		case strings.HasSuffix(fields[i], "ON"):
			tag = TagOn
		case strings.HasSuffix(fields[i], "OFF"):
			tag = TagOff
		default:
			continue
		}
		return Result{Tag: tag, Rest: strings.Join(fields[i+1:], "\t")}
	}
	return Result{Tag: TagNone, Rest: line}
}

const (
	confirmOn  = "Outlet turned on."
	confirmOff = "Outlet turned off."
)

// ParseConfirmation recognises the line printed after an on/off command.
// Rest holds the text preceding the confirmation.
func ParseConfirmation(line string) Result {
	switch {
	case strings.HasSuffix(line, confirmOn):
		return Result{Tag: TagOn, Rest: strings.TrimSuffix(line, confirmOn)}
	case strings.HasSuffix(line, confirmOff):
		return Result{Tag: TagOff, Rest: strings.TrimSuffix(line, confirmOff)}
	}
	return Result{Tag: TagNone, Rest: line}
}

// isReady reports whether a status probe line shows an outlet state.
func isReady(line string) bool {
	return strings.Contains(line, "ON") || strings.Contains(line, "OFF")
}

func tagFor(state bool) Tag {
	if state {
		return TagOn
	}
	return TagOff
}
