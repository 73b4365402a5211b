package events

import (
	"context"

	"go.uber.org/zap"
)

// Emit delivers workflow events to whatever sink the host installed. The
// default is a no-op so library consumers that do not care about events pay
// nothing.
var Emit = func(ctx context.Context, name string, evt WorkflowEvent) {}

// EnableLogEmitter routes events to a zap logger. Chunk events are skipped
// to keep the log readable at streaming volume.
func EnableLogEmitter(logger *zap.Logger) {
	Emit = func(ctx context.Context, name string, evt WorkflowEvent) {
		if evt.SessionKey == "" {
			if session := SessionFromContext(ctx); session != "" {
				evt.SessionKey = session
			}
		}

		if evt.Type == EventChunk {
			return
		}

		fields := []zap.Field{
			zap.String("event", name),
			zap.String("type", string(evt.Type)),
			zap.String("session", evt.SessionKey),
		}
		if evt.Phase != "" {
			fields = append(fields, zap.String("phase", evt.Phase))
		}

		switch evt.Type {
		case EventError:
			logger.Warn(evt.Message, fields...)
		default:
			logger.Info(evt.Message, fields...)
		}
	}
}

// SetCustomEmitter installs f as the event sink; passing nil restores the
// no-op emitter.
func SetCustomEmitter(f func(ctx context.Context, name string, evt WorkflowEvent)) {
	if f == nil {
		Emit = func(context.Context, string, WorkflowEvent) {}
		return
	}
	Emit = func(ctx context.Context, name string, evt WorkflowEvent) {
		if evt.SessionKey == "" {
			if session := SessionFromContext(ctx); session != "" {
				evt.SessionKey = session
			}
		}
		f(ctx, name, evt)
	}
}
