package burrow

import "log"

// Logger is the logging interface used by the environment. The default
// writes through the standard library's log package; callers embedding the
// engine supply their own via WithLogger.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type defaultLogger struct{}

// DefaultLogger logs through the standard log package.
var DefaultLogger Logger = defaultLogger{}

func (defaultLogger) Infof(format string, args ...interface{}) {
	log.Printf(format, args...)
}

func (defaultLogger) Errorf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
