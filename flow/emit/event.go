// Package emit implements the workflow event bus: a small,
// subscribe/unsubscribe/publish pub-sub primitive that the scheduler uses
// to report WORKFLOW_START, WORKFLOW_END, NODE_START, NODE_END, and
// NODE_STREAM events to any number of independent observers.
package emit

import "time"

// EventType names the kind of lifecycle event being reported.
type EventType string

const (
	WorkflowStart EventType = "WORKFLOW_START"
	WorkflowEnd   EventType = "WORKFLOW_END"
	NodeStart     EventType = "NODE_START"
	NodeEnd       EventType = "NODE_END"
	NodeStream    EventType = "NODE_STREAM"
)

// NodeInfo carries the node-scoped fields of an Event. Output and Chunk
// are mutually exclusive with Input's role: Input is populated on
// NODE_START, Output on NODE_END, and Chunk on NODE_STREAM.
type NodeInfo struct {
	Name   string `json:"name"`
	Input  any    `json:"input,omitempty"`
	Output any    `json:"output,omitempty"`
	Chunk  any    `json:"chunk,omitempty"`
}

// Event is the single record type flowing through the bus. Fields
// unused by a given Type are left zero.
type Event struct {
	Type            EventType `json:"type"`
	ExecutionID     string    `json:"execution_id"`
	NodeExecutionID string    `json:"node_execution_id,omitempty"`
	ThreadID        string    `json:"thread_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Node            NodeInfo  `json:"node,omitzero"`

	// Input/Output are populated on WORKFLOW_START/WORKFLOW_END.
	Input  any `json:"input,omitempty"`
	Output any `json:"output,omitempty"`

	// IsOK and Error describe the outcome on WORKFLOW_END and on
	// NODE_END when the node body failed.
	IsOK  bool  `json:"is_ok"`
	Error error `json:"-"`

	// Histories is only populated on WORKFLOW_END. Its static type is
	// interface{} (expected []flow.HistoryRecord) to avoid a circular
	// import between this package and the flow package that depends on
	// it.
	Histories interface{} `json:"histories,omitempty"`
}

// Handler receives events published to a Bus. A handler that panics has
// its panic swallowed; it never takes down the publisher or another
// handler.
type Handler func(Event)
