package flow

import (
	"context"
	"time"

	"github.com/flowkit/flowkit/flow/emit"
)

type contextKey int

const runtimeContextKey contextKey = iota

// nodeRuntime carries the per-invocation plumbing a node body can reach
// through context-scoped helpers: the execution and thread identifiers,
// the node's own metadata, and the bus to stream chunks on.
type nodeRuntime struct {
	executionID     string
	threadID        string
	nodeExecutionID string
	name            string
	bus             *emit.Bus
	metadata        map[string]any
}

func withRuntime(ctx context.Context, rt *nodeRuntime) context.Context {
	return context.WithValue(ctx, runtimeContextKey, rt)
}

func runtimeFromContext(ctx context.Context) *nodeRuntime {
	rt, _ := ctx.Value(runtimeContextKey).(*nodeRuntime)
	return rt
}

// StreamChunk emits a NODE_STREAM event carrying chunk, attributed to the
// node currently executing in ctx. It is a no-op if ctx was not produced
// by this package's node executor (for example in a unit test calling a
// Body directly).
func StreamChunk(ctx context.Context, chunk any) {
	rt := runtimeFromContext(ctx)
	if rt == nil || rt.bus == nil {
		return
	}
	rt.bus.Publish(emit.Event{
		Type:            emit.NodeStream,
		ExecutionID:     rt.executionID,
		ThreadID:        rt.threadID,
		NodeExecutionID: rt.nodeExecutionID,
		Timestamp:       time.Now(),
		Node:            emit.NodeInfo{Name: rt.name, Chunk: chunk},
	})
}

// NodeMetadata returns the metadata map attached to the currently
// executing node, or nil outside of node execution.
func NodeMetadata(ctx context.Context) map[string]any {
	rt := runtimeFromContext(ctx)
	if rt == nil {
		return nil
	}
	return rt.metadata
}

// CurrentNodeName returns the name of the currently executing node, or
// the empty string outside of node execution.
func CurrentNodeName(ctx context.Context) string {
	rt := runtimeFromContext(ctx)
	if rt == nil {
		return ""
	}
	return rt.name
}
