package journald

import (
	"log/slog"
	"time"
)

// HandlerOptions are used to customize the journald slog.Handler.
//
// NB: The struct pointer options approach is used to be consistent with the
// approach used in the standard library for `HandlerOptions`.
type HandlerOptions struct {

	// Level reports the minimum record level that will be logged. The handler
	// discards records with lower levels. If Level is nil, the handler
	// assumes LevelInfo. The handler calls Level.Level for each record
	// processed; to adjust the minimum level dynamically, use a LevelVar.
	Level slog.Leveler

	// TimeFormat controls how time values inside log content are rendered.
	// This does not affect the record timestamp itself, which the journal
	// assigns on receipt. The default is time.RFC3339Nano.
	TimeFormat string

	// EmitErrorSourceChain controls whether error values additionally emit
	// one ERROR_SOURCE_<n> field per wrapped cause plus an
	// ERROR_SOURCE_DEPTH count field. The default is false, so an error
	// renders as a single field like any other value.
	EmitErrorSourceChain bool

	// EmitErrno controls whether error values additionally emit an ERRNO
	// field when any wrapped cause carries an operating-system error code.
	// The default is false.
	EmitErrno bool

	// Verbose controls whether debug logs are written to the internal logger.
	Verbose bool
}

const defaultTimeFormat = time.RFC3339Nano

// DefaultHandlerOptions returns *HandlerOptions with all default values.
func DefaultHandlerOptions() *HandlerOptions {
	return &HandlerOptions{
		Level:      slog.LevelInfo,
		TimeFormat: defaultTimeFormat,
	}
}

// resolve ensures that all options have valid values.
func (o *HandlerOptions) resolve() {

	// set default log level if not provided
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}

	// set time format if missing
	if len(o.TimeFormat) == 0 {
		o.TimeFormat = defaultTimeFormat
	}
}
