// Package flow provides a concurrent, middleware-driven workflow
// scheduler and executor over a statically declared node graph.
package flow

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigErrorCode identifies a graph-construction failure. Configuration
// errors are synchronous and fatal to Compile; they never occur while a
// workflow is running.
type ConfigErrorCode string

const (
	CodeInvalidNodeName       ConfigErrorCode = "INVALID_NODE_NAME"
	CodeDuplicateNodeName     ConfigErrorCode = "DUPLICATE_NODE_NAME"
	CodeNodeNotFound          ConfigErrorCode = "NODE_NOT_FOUND"
	CodeDuplicateEdge         ConfigErrorCode = "DUPLICATE_EDGE"
	CodeMergeMissingBranch    ConfigErrorCode = "MERGE_NODE_MISSING_BRANCH"
	CodeMissingSourceNode     ConfigErrorCode = "MISSING_SOURCE_NODE"
	CodeInvalidEdge           ConfigErrorCode = "INVALID_EDGE"
	CodeCircularDependency    ConfigErrorCode = "CIRCULAR_DEPENDENCY" // reserved, unused today
	CodeMissingStartOrEnd     ConfigErrorCode = "MISSING_START_OR_END"
)

// ConfigError reports why Compile rejected a graph.
type ConfigError struct {
	Code    ConfigErrorCode
	Message string
	NodeID  string
	Cause   error
	Context map[string]any
}

func (e *ConfigError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("flow: %s (node %q): %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("flow: %s: %s", e.Code, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func newConfigError(code ConfigErrorCode, nodeID, msg string) *ConfigError {
	return &ConfigError{Code: code, Message: msg, NodeID: nodeID}
}

// ExecErrorCode identifies a failure captured during Run. Execution
// errors never escape Run as a panic or an unreturned goroutine error;
// they are always surfaced through Result.Error.
type ExecErrorCode string

const (
	CodeNodeExecutionFailed    ExecErrorCode = "NODE_EXECUTION_FAILED"
	CodeMaxNodeVisitsExceeded  ExecErrorCode = "MAX_NODE_VISITS_EXCEEDED"
	CodeExecutionTimeout       ExecErrorCode = "EXECUTION_TIMEOUT"
	CodeInvalidDynamicResult   ExecErrorCode = "INVALID_DYNAMIC_EDGE_RESULT"
	CodeThreadPoolFailure      ExecErrorCode = "THREAD_POOL_FAILURE"
	CodeExecutionAborted       ExecErrorCode = "EXECUTION_ABORTED"
	CodeMiddlewareFail         ExecErrorCode = "MIDDLEWARE_FAIL"
	CodeExit                   ExecErrorCode = "EXIT"

	// Data error codes. Reserved for future validation of node I/O shapes;
	// nothing in this module raises them yet.
	CodeInvalidInput  ExecErrorCode = "INVALID_INPUT"
	CodeInvalidOutput ExecErrorCode = "INVALID_OUTPUT"
	CodeTypeMismatch  ExecErrorCode = "TYPE_MISMATCH"
)

// ExecError reports a failure that occurred while a workflow was running.
type ExecError struct {
	Code    ExecErrorCode
	Message string
	NodeID  string
	Cause   error
	Context map[string]any
}

func (e *ExecError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("flow: %s (node %q): %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("flow: %s: %s", e.Code, e.Message)
}

func (e *ExecError) Unwrap() error { return e.Cause }

func newExecError(code ExecErrorCode, nodeID string, cause error) *ExecError {
	msg := string(code)
	var wrapped error
	if cause != nil {
		msg = cause.Error()
		wrapped = errors.Wrap(cause, string(code))
	}
	return &ExecError{Code: code, Message: msg, NodeID: nodeID, Cause: wrapped}
}
