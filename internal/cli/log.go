package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns the CLI logger: timestamps as "HH:MM:SS.ms", filtered at
// level. Screens derive per-variant loggers from it with With("variant", ...).
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// loadProgress times one board load.
type loadProgress struct {
	logger  *log.Logger
	variant string
	start   time.Time
}

func newLoadProgress(l *log.Logger, variant string) *loadProgress {
	return &loadProgress{logger: l, variant: variant, start: time.Now()}
}

// done logs the loaded board with its poster count and the elapsed time,
// e.g. `board loaded variant=second posters=12 elapsed=412ms`.
func (p *loadProgress) done(posters int) {
	p.logger.Info("board loaded",
		"variant", p.variant,
		"posters", posters,
		"elapsed", time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default() if none
// is attached.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
