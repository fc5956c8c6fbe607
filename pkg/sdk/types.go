package sdk

import "time"

// Workflow is the API representation of a workflow definition.
type Workflow struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Status       string                 `json:"status"`
	Version      int                    `json:"version"`
	TriggerTypes []string               `json:"trigger_types,omitempty"`
	BotID        string                 `json:"bot_id,omitempty"`
	Nodes        []Node                 `json:"nodes"`
	Edges        []Edge                 `json:"edges,omitempty"`
	Variables    map[string]VariableDef `json:"variables,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Category     string                 `json:"category,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Node is one step of a workflow graph.
type Node struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// Edge connects two nodes. A label selects a branch on branching nodes.
type Edge struct {
	ID        string         `json:"id,omitempty"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Label     string         `json:"label,omitempty"`
	Condition *EdgeCondition `json:"condition,omitempty"`
}

// EdgeCondition gates a non-branching edge on the source node's output.
type EdgeCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// VariableDef declares a workflow variable and its default.
type VariableDef struct {
	Type        string `json:"type,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateWorkflowRequest is the payload for Client.CreateWorkflow.
type CreateWorkflowRequest struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	TriggerTypes []string               `json:"trigger_types,omitempty"`
	Nodes        []Node                 `json:"nodes"`
	Edges        []Edge                 `json:"edges,omitempty"`
	Variables    map[string]VariableDef `json:"variables,omitempty"`
	BotID        string                 `json:"bot_id,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Category     string                 `json:"category,omitempty"`
}

// UpdateWorkflowRequest is the payload for Client.UpdateWorkflow. Nil
// fields are left unchanged on the server.
type UpdateWorkflowRequest struct {
	Name         *string                 `json:"name,omitempty"`
	Description  *string                 `json:"description,omitempty"`
	TriggerTypes *[]string               `json:"trigger_types,omitempty"`
	Nodes        *[]Node                 `json:"nodes,omitempty"`
	Edges        *[]Edge                 `json:"edges,omitempty"`
	Variables    *map[string]VariableDef `json:"variables,omitempty"`
	Tags         *[]string               `json:"tags,omitempty"`
	Category     *string                 `json:"category,omitempty"`
}

// ExecuteRequest triggers a workflow run.
type ExecuteRequest struct {
	TriggerType string         `json:"trigger_type,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ExecutionResult summarizes one finished run.
type ExecutionResult struct {
	ExecutionID   string                    `json:"execution_id"`
	WorkflowID    string                    `json:"workflow_id"`
	Status        string                    `json:"status"`
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

// NodeError is one node failure observed during a run.
type NodeError struct {
	NodeID  string    `json:"node_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ExecutionRecord is a persisted run trace.
type ExecutionRecord struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	Status        string         `json:"status"`
	TriggerType   string         `json:"trigger_type"`
	TriggerData   map[string]any `json:"trigger_data,omitempty"`
	ExecutedNodes []string       `json:"executed_nodes"`
	Errors        []NodeError    `json:"errors,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// MessageEventRequest delivers a chat event to every workflow bound to
// a bot.
type MessageEventRequest struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
}

// DebugRequest starts a debugged run.
type DebugRequest struct {
	TriggerType string         `json:"trigger_type,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Breakpoints []string       `json:"breakpoints,omitempty"`
	StepMode    bool           `json:"step_mode,omitempty"`
}

// DebugSession identifies a started debug session.
type DebugSession struct {
	SessionID  string    `json:"session_id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
}

// DebugSnapshot is a point-in-time view of a debugged execution.
type DebugSnapshot struct {
	ExecutionID   string                    `json:"execution_id"`
	CurrentNode   string                    `json:"current_node"`
	Paused        bool                      `json:"paused"`
	ExecutedNodes []string                  `json:"executed_nodes"`
	Variables     map[string]any            `json:"variables"`
	NodeOutputs   map[string]map[string]any `json:"node_outputs"`
}

// NodeManifest describes a node type the server supports.
type NodeManifest struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsTrigger   bool   `json:"is_trigger"`
}

// ListWorkflowsOptions filters Client.ListWorkflows.
type ListWorkflowsOptions struct {
	BotID  string
	Status string
}
