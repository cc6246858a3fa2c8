package journald

import (
	"log/slog"
	"strconv"
)

// Priority is a syslog-derived journald priority code, the value of the
// PRIORITY field on every submitted record.
type Priority int

// The eight syslog priorities understood by journald.
const (
	PriorityEmergency Priority = iota
	PriorityAlert
	PriorityCritical
	PriorityError
	PriorityWarning
	PriorityNotice
	PriorityInfo
	PriorityDebug
)

// Extended slog levels, filling out the six-level scale used by the priority
// mapping. The numeric spacing follows the slog convention of 4 between named
// levels, so LevelTrace sorts below Debug and LevelCritical above Error.
const (
	LevelTrace    = slog.LevelDebug - 4
	LevelCritical = slog.LevelError + 4
)

// levelToPriority maps a record level to its journald priority. The source
// level scale is finer-grained than syslog's around the default level, so the
// mapping deliberately shifts by one step: Info maps to NOTICE, the journald
// convention for the default "visible" level, leaving INFO and DEBUG for the
// lower-priority diagnostic levels. Total over all slog.Level values.
func levelToPriority(l slog.Level) Priority {
	switch {
	case l >= LevelCritical:
		return PriorityCritical
	case l >= slog.LevelError:
		return PriorityError
	case l >= slog.LevelWarn:
		return PriorityWarning
	case l >= slog.LevelInfo:
		return PriorityNotice
	case l >= slog.LevelDebug:
		return PriorityInfo
	default:
		return PriorityDebug
	}
}

// String returns the decimal form used as the PRIORITY field value.
func (p Priority) String() string {
	return strconv.Itoa(int(p))
}
