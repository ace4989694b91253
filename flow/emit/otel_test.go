package emit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

// The noop tracer provider records nothing, so these tests only assert
// that OTelHandler tracks span lifecycles without panicking: a
// NODE_START/NODE_END pair must resolve to the same span, and a
// NODE_END with no matching NODE_START must be silently ignored.
func TestOTelHandler_MatchesStartAndEndByNodeExecutionID(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("flowkit-test")
	h := OTelHandler(tracer)

	assert.NotPanics(t, func() {
		h(Event{Type: NodeStart, ExecutionID: "exec-1", NodeExecutionID: "node-exec-1", Timestamp: time.Now(), Node: NodeInfo{Name: "a"}})
		h(Event{Type: NodeEnd, ExecutionID: "exec-1", NodeExecutionID: "node-exec-1", Timestamp: time.Now(), Node: NodeInfo{Name: "a"}, IsOK: true})
	})
}

func TestOTelHandler_EndWithoutStartIsIgnored(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("flowkit-test")
	h := OTelHandler(tracer)

	assert.NotPanics(t, func() {
		h(Event{Type: NodeEnd, ExecutionID: "exec-1", NodeExecutionID: "missing", Node: NodeInfo{Name: "a"}})
	})
}

func TestOTelHandler_RecordsErrorOnFailedNode(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("flowkit-test")
	h := OTelHandler(tracer)

	assert.NotPanics(t, func() {
		h(Event{Type: NodeStart, ExecutionID: "exec-2", NodeExecutionID: "node-exec-2", Node: NodeInfo{Name: "b"}})
		h(Event{Type: NodeEnd, ExecutionID: "exec-2", NodeExecutionID: "node-exec-2", Node: NodeInfo{Name: "b"}, IsOK: false, Error: assert.AnError})
	})
}
