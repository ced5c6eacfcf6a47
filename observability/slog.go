package observability

import (
	"context"
	"log/slog"
	"sort"
)

// SlogObserver writes events to a slog.Logger. The event type becomes the
// log message; context attributes, the source, and Data keys (sorted) follow
// as top-level attributes.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to logger. A nil logger
// uses slog.Default at emit time.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	ctxAttrs := Attrs(ctx)
	attrs := make([]slog.Attr, 0, len(ctxAttrs)+len(event.Data)+1)
	attrs = append(attrs, ctxAttrs...)
	attrs = append(attrs, slog.String("source", event.Source))

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Data[k]))
	}

	logger.LogAttrs(ctx, event.Level.SlogLevel(), string(event.Type), attrs...)
}
