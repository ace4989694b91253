package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// LogHandler returns a Handler that writes one line per event to w,
// either as human-readable text or as JSON Lines. It is adapted from the
// teacher's text/JSON-mode LogEmitter, reshaped from a configured sink
// into a bus Handler.
func LogHandler(w io.Writer, jsonMode bool) Handler {
	var mu sync.Mutex
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if jsonMode {
			writeLogJSON(w, e)
			return
		}
		writeLogText(w, e)
	}
}

func writeLogText(w io.Writer, e Event) {
	switch e.Type {
	case WorkflowStart:
		fmt.Fprintf(w, "[%s] %s execution=%s input=%v\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.ExecutionID, e.Input)
	case WorkflowEnd:
		status := "ok"
		if !e.IsOK {
			status = "error"
		}
		fmt.Fprintf(w, "[%s] %s execution=%s status=%s output=%v err=%v\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.ExecutionID, status, e.Output, e.Error)
	case NodeStart:
		fmt.Fprintf(w, "[%s] %s execution=%s thread=%s node=%s input=%v\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.ExecutionID, e.ThreadID, e.Node.Name, e.Node.Input)
	case NodeEnd:
		fmt.Fprintf(w, "[%s] %s execution=%s thread=%s node=%s output=%v err=%v\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.ExecutionID, e.ThreadID, e.Node.Name, e.Node.Output, e.Error)
	case NodeStream:
		fmt.Fprintf(w, "[%s] %s execution=%s thread=%s node=%s chunk=%v\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.ExecutionID, e.ThreadID, e.Node.Name, e.Node.Chunk)
	default:
		fmt.Fprintf(w, "[%s] %s\n", e.Timestamp.Format("15:04:05.000"), e.Type)
	}
}

// logRecord is the JSON Lines shape written by writeLogJSON. Error is
// rendered as a string since error values don't round-trip through
// encoding/json on their own.
type logRecord struct {
	Type            EventType `json:"type"`
	ExecutionID     string    `json:"execution_id"`
	NodeExecutionID string    `json:"node_execution_id,omitempty"`
	ThreadID        string    `json:"thread_id,omitempty"`
	Timestamp       string    `json:"timestamp"`
	Node            NodeInfo  `json:"node,omitzero"`
	Input           any       `json:"input,omitempty"`
	Output          any       `json:"output,omitempty"`
	IsOK            bool      `json:"is_ok"`
	Error           string    `json:"error,omitempty"`
}

func writeLogJSON(w io.Writer, e Event) {
	rec := logRecord{
		Type:            e.Type,
		ExecutionID:     e.ExecutionID,
		NodeExecutionID: e.NodeExecutionID,
		ThreadID:        e.ThreadID,
		Timestamp:       e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Node:            e.Node,
		Input:           e.Input,
		Output:          e.Output,
		IsOK:            e.IsOK,
	}
	if e.Error != nil {
		rec.Error = e.Error.Error()
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(rec)
}
