package emit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelHandler returns a Handler that opens one span per node execution
// (NODE_START) and ends it on the matching NODE_END, attributing
// execution/thread identifiers and marking span status from the node's
// error. The bus delivers NODE_START and NODE_END as two independent
// events rather than one synchronous call, so open spans are tracked
// here in a small map keyed by node_execution_id.
func OTelHandler(tracer trace.Tracer) Handler {
	h := &otelHandler{tracer: tracer, spans: make(map[string]trace.Span)}
	return h.handle
}

type otelHandler struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

func (h *otelHandler) handle(e Event) {
	switch e.Type {
	case NodeStart:
		_, span := h.tracer.Start(context.Background(), "flow.node."+e.Node.Name,
			trace.WithAttributes(
				attribute.String("flow.execution_id", e.ExecutionID),
				attribute.String("flow.thread_id", e.ThreadID),
				attribute.String("flow.node_execution_id", e.NodeExecutionID),
				attribute.String("flow.node", e.Node.Name),
			),
		)
		h.mu.Lock()
		h.spans[e.NodeExecutionID] = span
		h.mu.Unlock()
	case NodeEnd:
		h.mu.Lock()
		span, ok := h.spans[e.NodeExecutionID]
		delete(h.spans, e.NodeExecutionID)
		h.mu.Unlock()
		if !ok {
			return
		}
		if e.Error != nil {
			span.RecordError(e.Error)
			span.SetStatus(codes.Error, e.Error.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
