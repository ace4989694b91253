package flow

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowkit/flowkit/flow/emit"
)

// HistoryRecord is one completed node invocation, appended to the
// execution's history in completion order.
type HistoryRecord struct {
	NodeExecutionID string
	Name            string
	Input           any
	Output          any
	StartedAt       time.Time
	EndedAt         time.Time
	Err             error
}

// execNode runs the full node-executor contract for one node: emits
// NODE_START, invokes the body, determines successors, emits NODE_END,
// and appends to history. It returns the list of successor node names
// the caller must dispatch next.
func (s *scheduler) execNode(ec *execContext, threadID string, decl *nodeDecl, input any) ([]string, any, error) {
	nodeExecutionID := uuid.NewString()
	startedAt := time.Now()

	ec.bus.Publish(emit.Event{
		Type:            emit.NodeStart,
		ExecutionID:     ec.executionID,
		ThreadID:        threadID,
		NodeExecutionID: nodeExecutionID,
		Timestamp:       startedAt,
		Node:            emit.NodeInfo{Name: decl.name, Input: input},
	})

	rt := &nodeRuntime{
		executionID:     ec.executionID,
		threadID:        threadID,
		nodeExecutionID: nodeExecutionID,
		name:            decl.name,
		bus:             ec.bus,
		metadata:        decl.metadata,
	}
	runCtx := withRuntime(ec.runCtx, rt)

	output, bodyErr := decl.run(runCtx, input)

	var successors []string
	var succErr error
	if bodyErr == nil {
		successors, succErr = s.determineSuccessors(ec, decl, output)
	}

	endedAt := time.Now()
	finalErr := bodyErr
	if finalErr == nil {
		finalErr = succErr
	}

	ec.bus.Publish(emit.Event{
		Type:            emit.NodeEnd,
		ExecutionID:     ec.executionID,
		ThreadID:        threadID,
		NodeExecutionID: nodeExecutionID,
		Timestamp:       endedAt,
		Node:            emit.NodeInfo{Name: decl.name, Output: output},
		IsOK:            finalErr == nil,
		Error:           finalErr,
	})

	outcome := "ok"
	if finalErr != nil {
		outcome = "error"
	}
	ec.metrics.observeNodeExecution(decl.name, outcome, endedAt.Sub(startedAt).Seconds())

	if !ec.opts.DisableHistory {
		ec.appendHistory(HistoryRecord{
			NodeExecutionID: nodeExecutionID,
			Name:            decl.name,
			Input:           input,
			Output:          output,
			StartedAt:       startedAt,
			EndedAt:         endedAt,
			Err:             finalErr,
		})
	}

	if bodyErr != nil {
		return nil, output, newExecError(CodeNodeExecutionFailed, decl.name, bodyErr)
	}
	if succErr != nil {
		return nil, output, succErr
	}
	return successors, output, nil
}

// determineSuccessors implements spec.md §4.4 steps 4-5: end short
// circuit, no-edge, direct fan-out, dynamic routing with normalization,
// and the merge-source edge augmentation. Unless it is the configured end
// node, a node that is itself a branch source of one or more merge nodes
// has those merge nodes unioned
// into its successor set — whether it had no edge at all (the augmented
// edge is its only successor) or a direct edge already naming other
// targets (the merge node is appended alongside them) — mirroring the
// set-union Compile would otherwise have to perform over every direct
// edge up front. A dynamic edge is never augmented: its successor set is
// whatever the router computes for this invocation.
func (s *scheduler) determineSuccessors(ec *execContext, decl *nodeDecl, output any) ([]string, error) {
	atEnd := ec.plan.end != "" && decl.name == ec.plan.end
	if atEnd {
		return nil, nil
	}

	var successors []string
	isDynamic := decl.edge != nil && decl.edge.kind == edgeDynamic
	switch {
	case decl.edge == nil:
		successors = nil
	case decl.edge.kind == edgeDirect:
		successors = append([]string(nil), decl.edge.targets...)
	default: // edgeDynamic
		raw, err := decl.edge.router(ec.runCtx, output)
		if err != nil {
			return nil, newExecError(CodeNodeExecutionFailed, decl.name, err)
		}
		normalized, err := normalizeDynamicResult(raw)
		if err != nil {
			return nil, &ExecError{Code: CodeInvalidDynamicResult, NodeID: decl.name, Message: err.Error()}
		}
		successors = normalized
	}

	if !isDynamic {
		if targets, ok := ec.plan.sourceToMergeTargets[decl.name]; ok {
			successors = unionTargets(successors, targets)
		}
	}

	return successors, nil
}

// unionTargets appends every name in add not already present in base,
// preserving base's order and then add's order for the new names.
func unionTargets(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base))
	for _, b := range base {
		seen[b] = true
	}
	out := base
	for _, a := range add {
		if !seen[a] {
			out = append(out, a)
			seen[a] = true
		}
	}
	return out
}

// normalizeDynamicResult implements the router-return normalization
// rule: nil becomes no successors, a bare string becomes one successor,
// a []string is used as-is, and a []any must contain only strings and
// nils (nils are dropped); anything else is INVALID_DYNAMIC_EDGE_RESULT.
func normalizeDynamicResult(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if el == nil {
				continue
			}
			str, ok := el.(string)
			if !ok {
				return nil, &invalidDynamicResultError{value: el}
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, &invalidDynamicResultError{value: raw}
	}
}

type invalidDynamicResultError struct{ value any }

func (e *invalidDynamicResultError) Error() string {
	return "dynamic edge router returned a non-string, non-nil element"
}
