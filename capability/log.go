package capability

import (
	"go.uber.org/zap"
)

// LogLevel is the guest-side severity of a log record.
type LogLevel int32

const (
	LogError LogLevel = iota
	LogWarning
	LogInfo
)

// LogSink forwards guest log records to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink. A nil logger discards all records.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Log records one guest message. The message bytes are copied before the
// call returns; callers may hand in a view of guest memory.
func (s *LogSink) Log(level LogLevel, msg []byte) {
	text := string(msg)
	switch level {
	case LogError:
		s.logger.Error(text, zap.String("source", "guest"))
	case LogWarning:
		s.logger.Warn(text, zap.String("source", "guest"))
	default:
		s.logger.Info(text, zap.String("source", "guest"))
	}
}
