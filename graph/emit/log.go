package emit

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEmitter writes events as structured zap log entries. Whether the output
// is JSON or console text is decided by the logger's encoder.
//
// Errors are logged at warn level, node start/end at debug, everything else
// at info.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter wraps logger. A nil logger is replaced by zap.NewNop.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger.Named("graph")}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, 5+len(event.Meta))
	fields = append(fields,
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
	)
	if event.Graph != "" {
		fields = append(fields, zap.String("graph", event.Graph))
	}
	if event.NodeID != "" {
		fields = append(fields, zap.String("node_id", event.NodeID))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}

	if ce := l.logger.Check(levelFor(event.Msg), event.Msg); ce != nil {
		ce.Write(fields...)
	}
}

func levelFor(msg string) zapcore.Level {
	switch msg {
	case MsgNodeError, MsgRunFailed, MsgNodeRetry:
		return zapcore.WarnLevel
	case MsgNodeStart, MsgNodeEnd, MsgRouting, MsgCheckpoint:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
