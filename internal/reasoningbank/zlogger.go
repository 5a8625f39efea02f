package reasoningbank

import (
	"context"

	"github.com/rs/zerolog"

	"manifold/internal/observability"
)

// ZerologLogger adapts the project's trace-aware zerolog logger
// (observability.LoggerWithTrace) to the Logger capability. This is the
// production Logger: every call site fetches a fresh, trace-enriched
// *zerolog.Logger the same way the rest of the project does, rather than
// holding one open across requests.
type ZerologLogger struct{}

func (ZerologLogger) event(ctx context.Context, lvl zerolog.Level, msg string, err error, fields map[string]any) {
	l := observability.LoggerWithTrace(ctx)
	ev := l.WithLevel(lvl)
	if err != nil {
		ev = ev.Err(err)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (z ZerologLogger) Debug(ctx context.Context, msg string, fields map[string]any) {
	z.event(ctx, zerolog.DebugLevel, msg, nil, fields)
}

func (z ZerologLogger) Info(ctx context.Context, msg string, fields map[string]any) {
	z.event(ctx, zerolog.InfoLevel, msg, nil, fields)
}

func (z ZerologLogger) Warn(ctx context.Context, msg string, fields map[string]any) {
	z.event(ctx, zerolog.WarnLevel, msg, nil, fields)
}

func (z ZerologLogger) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	z.event(ctx, zerolog.ErrorLevel, msg, err, fields)
}
