package pipeline

import (
	"fmt"
	"strings"
)

// Mode selects the sink of a run.
type Mode string

const (
	// ModeBatch writes a parquet snapshot to object storage.
	ModeBatch Mode = "batch"

	// ModeStreaming publishes the records to a broker topic.
	ModeStreaming Mode = "streaming"
)

// Modes lists the accepted modes.
var Modes = []Mode{ModeBatch, ModeStreaming}

// ParseMode validates a mode name. Matching is exact.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (want one of %s)", ErrInvalidMode, s, modeList())
	}
	return m, nil
}

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	return m == ModeBatch || m == ModeStreaming
}

func (m Mode) String() string {
	return string(m)
}

func modeList() string {
	names := make([]string, 0, len(Modes))
	for _, m := range Modes {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}
