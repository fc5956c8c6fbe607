// Package model defines the workflow engine entities.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType names an event kind that can start a workflow.
type TriggerType string

const (
	TriggerPersonMessage TriggerType = "person_message"
	TriggerGroupMessage  TriggerType = "group_message"
	TriggerScheduled     TriggerType = "scheduled"
	TriggerManual        TriggerType = "manual"
	TriggerAPI           TriggerType = "api"
)

// ParseTriggerType parses the lowercase snake-case form of a trigger type.
func ParseTriggerType(s string) (TriggerType, error) {
	switch TriggerType(s) {
	case TriggerPersonMessage, TriggerGroupMessage, TriggerScheduled, TriggerManual, TriggerAPI:
		return TriggerType(s), nil
	}
	return "", fmt.Errorf("unknown trigger type: %q", s)
}

// WorkflowStatus is the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// ParseWorkflowStatus parses a workflow status string.
func ParseWorkflowStatus(s string) (WorkflowStatus, error) {
	switch WorkflowStatus(s) {
	case WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusInactive, WorkflowStatusArchived:
		return WorkflowStatus(s), nil
	}
	return "", fmt.Errorf("unknown workflow status: %q", s)
}

// NodeType tags a node with the handler that executes it.
type NodeType string

const (
	NodeTypeEventStart        NodeType = "event_start"
	NodeTypeScheduleStart     NodeType = "schedule_start"
	NodeTypeCondition         NodeType = "condition"
	NodeTypeHTTPRequest       NodeType = "http_request"
	NodeTypeJSONProcessor     NodeType = "json_processor"
	NodeTypeReplyMessage      NodeType = "reply_message"
	NodeTypeSetVariable       NodeType = "set_variable"
	NodeTypeGetVariable       NodeType = "get_variable"
	NodeTypeChatCommandBranch NodeType = "chat_command_branch"
	NodeTypeToolAction        NodeType = "tool_action"
	NodeTypeEnd               NodeType = "end"
)

// ParseNodeType parses a node type tag.
func ParseNodeType(s string) (NodeType, error) {
	switch NodeType(s) {
	case NodeTypeEventStart, NodeTypeScheduleStart, NodeTypeCondition, NodeTypeHTTPRequest,
		NodeTypeJSONProcessor, NodeTypeReplyMessage, NodeTypeSetVariable, NodeTypeGetVariable,
		NodeTypeChatCommandBranch, NodeTypeToolAction, NodeTypeEnd:
		return NodeType(s), nil
	}
	return "", fmt.Errorf("unknown node type: %q", s)
}

// IsStart reports whether the node type can seed an execution.
func (t NodeType) IsStart() bool {
	return t == NodeTypeEventStart || t == NodeTypeScheduleStart
}

// IsBranching reports whether successor edges are selected by branch label.
func (t NodeType) IsBranching() bool {
	return t == NodeTypeCondition || t == NodeTypeChatCommandBranch
}

// NodeStatus is the per-node outcome reported by a handler.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSuccess   NodeStatus = "success"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
	NodeStatusCancelled NodeStatus = "cancelled"
)

// Position is the node position in the workflow editor.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a typed unit of work within a workflow. The Config payload is
// interpreted by the handler registered for Type; unknown keys are kept.
type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Type        NodeType       `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Position    *Position      `json:"position,omitempty" yaml:"position,omitempty"`
	Config      map[string]any `json:"config" yaml:"config"`
}

// Edge is a directed connection between two nodes. Label selects the edge
// when the source is a branching node; Condition gates the edge otherwise.
type Edge struct {
	ID        string         `json:"id" yaml:"id"`
	Source    string         `json:"source" yaml:"source"`
	Target    string         `json:"target" yaml:"target"`
	Label     string         `json:"label,omitempty" yaml:"label,omitempty"`
	Condition *EdgeCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// VariableDef declares a workflow variable with its default value.
type VariableDef struct {
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Scope   string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Workflow is a user-authored directed graph definition.
type Workflow struct {
	ID           string                 `json:"id" yaml:"id"`
	Name         string                 `json:"name" yaml:"name"`
	Description  string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Version      int                    `json:"version" yaml:"version"`
	Status       WorkflowStatus         `json:"status" yaml:"status"`
	TriggerTypes []TriggerType          `json:"trigger_types" yaml:"trigger_types"`
	Nodes        []Node                 `json:"nodes" yaml:"nodes"`
	Edges        []Edge                 `json:"edges" yaml:"edges"`
	Variables    map[string]VariableDef `json:"variables,omitempty" yaml:"variables,omitempty"`
	BotID        string                 `json:"bot_id,omitempty" yaml:"bot_id,omitempty"`
	Tags         []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	Category     string                 `json:"category,omitempty" yaml:"category,omitempty"`
	CreatedAt    time.Time              `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time              `json:"updated_at" yaml:"-"`
	CreatedBy    string                 `json:"created_by,omitempty" yaml:"-"`

	// Extra holds unknown top-level keys from import so they survive
	// re-export (forward compatibility).
	Extra map[string]any `json:"-" yaml:"-"`
}

// NewWorkflow creates a draft workflow with a fresh id.
func NewWorkflow(name, description string) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Version:     1,
		Status:      WorkflowStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasTrigger reports whether the workflow declares the trigger type.
func (w *Workflow) HasTrigger(t TriggerType) bool {
	for _, tt := range w.TriggerTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// StartNodes returns the start nodes matching the trigger: all
// schedule_start nodes for scheduled triggers, otherwise the event_start
// nodes whose configured trigger_type equals the trigger.
func (w *Workflow) StartNodes(trigger TriggerType) []Node {
	var starts []Node
	for _, n := range w.Nodes {
		switch n.Type {
		case NodeTypeScheduleStart:
			if trigger == TriggerScheduled {
				starts = append(starts, n)
			}
		case NodeTypeEventStart:
			if trigger != TriggerScheduled && ConfigString(n.Config, "trigger_type", "") == string(trigger) {
				starts = append(starts, n)
			}
		}
	}
	return starts
}

// Validate checks the structural invariants of the definition: node ids are
// unique, every edge endpoint names an existing node, and node configs carry
// their required fields.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return &ValidationError{Path: "name", Reason: "required"}
	}
	seen := make(map[string]bool, len(w.Nodes))
	for i, n := range w.Nodes {
		if n.ID == "" {
			return &ValidationError{Path: fmt.Sprintf("nodes[%d].id", i), Reason: "required"}
		}
		if seen[n.ID] {
			return &ValidationError{Path: fmt.Sprintf("nodes[%d].id", i), Reason: "duplicate node id " + n.ID}
		}
		seen[n.ID] = true
		if err := ValidateNodeConfig(n); err != nil {
			return err
		}
	}
	for i, e := range w.Edges {
		if e.Source == "" || e.Target == "" {
			return &ValidationError{Path: fmt.Sprintf("edges[%d]", i), Reason: "source and target are required"}
		}
		if !seen[e.Source] {
			return &ValidationError{Path: fmt.Sprintf("edges[%d].source", i), Reason: "unknown node " + e.Source}
		}
		if !seen[e.Target] {
			return &ValidationError{Path: fmt.Sprintf("edges[%d].target", i), Reason: "unknown node " + e.Target}
		}
	}
	return nil
}

// ValidationError reports a bad definition with the failing field path.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}
