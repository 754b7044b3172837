package middleware

import (
	"context"
	"log/slog"
)

// requestIDHandler stamps request_id on every record logged with a request
// context.
type requestIDHandler struct {
	slog.Handler
}

func NewLogHandler(h slog.Handler) slog.Handler {
	return requestIDHandler{Handler: h}
}

func (h requestIDHandler) Handle(ctx context.Context, rec slog.Record) error {
	if id := RequestIDFromContext(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, rec)
}

func (h requestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestIDHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h requestIDHandler) WithGroup(name string) slog.Handler {
	return requestIDHandler{Handler: h.Handler.WithGroup(name)}
}
