package model

import "time"

// ExecutionStatus is the terminal outcome of a workflow run.
type ExecutionStatus string

const (
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ExecutionResult summarizes one finished run. SkippedNodes lists the
// nodes a skip policy bypassed, in traversal order; Errors carries every
// node failure observed during the run, including a trailing "cancelled"
// entry when the run was cancelled.
type ExecutionResult struct {
	ExecutionID   string                    `json:"execution_id"`
	WorkflowID    string                    `json:"workflow_id"`
	Status        ExecutionStatus           `json:"status"`
	Error         string                    `json:"error,omitempty"`
	ExecutedNodes []string                  `json:"executed_nodes"`
	SkippedNodes  []string                  `json:"skipped_nodes,omitempty"`
	Errors        []NodeError               `json:"errors,omitempty"`
	NodeOutputs   map[string]map[string]any `json:"node_outputs,omitempty"`
	Variables     map[string]any            `json:"variables,omitempty"`
	MessagesSent  []map[string]any          `json:"messages_sent,omitempty"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at"`
	DurationMS    int64                     `json:"duration_ms"`
}

// ExecutionRecord is the persisted trace of a run.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	Status        ExecutionStatus `json:"status"`
	TriggerType   TriggerType     `json:"trigger_type"`
	TriggerData   map[string]any  `json:"trigger_data,omitempty"`
	ExecutedNodes []string        `json:"executed_nodes"`
	Errors        []NodeError     `json:"errors,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}

// RecordFromResult builds the persisted form of a finished run.
func RecordFromResult(res *ExecutionResult, trigger TriggerType, triggerData map[string]any) *ExecutionRecord {
	return &ExecutionRecord{
		ID:            res.ExecutionID,
		WorkflowID:    res.WorkflowID,
		Status:        res.Status,
		TriggerType:   trigger,
		TriggerData:   triggerData,
		ExecutedNodes: res.ExecutedNodes,
		Errors:        res.Errors,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
}
