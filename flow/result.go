package flow

// Result is what Run returns on completion, whether successful or not.
type Result struct {
	ExecutionID string
	IsOK        bool
	Output      any
	Error       error
	History     []HistoryRecord
}
