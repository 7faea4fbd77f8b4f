// Package log configures the process-global zerolog logger. Every package
// logs through github.com/rs/zerolog/log; this is where level, output format
// and the trace correlation hook are decided, once, at startup.
package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// tracingHook copies the active span ids onto every event logged with a
// context, so log lines can be joined with traces.
type tracingHook struct{}

func (tracingHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		e.Str("trace_id", sc.TraceID().String())
		e.Str("span_id", sc.SpanID().String())
	}
}

// Setup configures the global logger. Unknown level strings fall back to
// info. With pretty set, events render for a terminal instead of as JSON.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	log.Logger = logger.Level(lvl).With().Timestamp().Logger().Hook(tracingHook{})

	if err != nil && level != "" {
		log.Warn().Str("configured_level", level).Msg("Unknown log level, falling back to info")
	}
}
