package journald

import (
	"log"
	"os"
	"sync/atomic"
)

var internalLogger atomic.Value

func init() {
	internalLogger.Store(log.New(os.Stderr, "[journald] ", log.LstdFlags))
}

// InternalLogger returns the Logger used to write out internal logs, where
// logs get written when something goes wrong in the logging stack itself.
func InternalLogger() *log.Logger { return internalLogger.Load().(*log.Logger) }

// SetInternalLogger makes l the internal logger, replacing the default stderr
// logger used for failures inside the logging stack.
func SetInternalLogger(l *log.Logger) {
	internalLogger.Store(l)
}
