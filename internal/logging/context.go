package logging

import (
	"context"
	"log/slog"
)

type idsKey struct{}

// ids is the correlation payload carried by a context. It is copied on
// every update so derived contexts never see later writes.
type ids struct {
	flow    string
	node    string
	session string
}

func fromContext(ctx context.Context) ids {
	v, _ := ctx.Value(idsKey{}).(ids)
	return v
}

// WithFlowID returns a context with the flow document ID set.
func WithFlowID(ctx context.Context, id string) context.Context {
	v := fromContext(ctx)
	v.flow = id
	return context.WithValue(ctx, idsKey{}, v)
}

// WithNodeID returns a context with the node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	v := fromContext(ctx)
	v.node = id
	return context.WithValue(ctx, idsKey{}, v)
}

// WithSessionID returns a context with the editor session ID set.
func WithSessionID(ctx context.Context, id string) context.Context {
	v := fromContext(ctx)
	v.session = id
	return context.WithValue(ctx, idsKey{}, v)
}

// WithIDs sets all three correlation IDs on the context at once.
func WithIDs(ctx context.Context, flowID, nodeID, sessionID string) context.Context {
	return context.WithValue(ctx, idsKey{}, ids{flow: flowID, node: nodeID, session: sessionID})
}

// FlowID extracts the flow document ID from the context, or "" if absent.
func FlowID(ctx context.Context) string { return fromContext(ctx).flow }

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string { return fromContext(ctx).node }

// SessionID extracts the editor session ID from the context, or "" if absent.
func SessionID(ctx context.Context) string { return fromContext(ctx).session }

// attrs collects the non-empty correlation IDs as log attributes.
func attrs(ctx context.Context) []slog.Attr {
	v := fromContext(ctx)
	out := make([]slog.Attr, 0, 3)
	if v.flow != "" {
		out = append(out, slog.String("flow_id", v.flow))
	}
	if v.node != "" {
		out = append(out, slog.String("node_id", v.node))
	}
	if v.session != "" {
		out = append(out, slog.String("session_id", v.session))
	}
	return out
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
