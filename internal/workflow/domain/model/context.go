package model

import (
	"fmt"
	"time"
)

// Variable is a runtime variable with its value and provenance.
type Variable struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Type      string    `json:"type,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeError records a node failure observed during execution.
type NodeError struct {
	NodeID  string    `json:"node_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ExecutionContext is the mutable state of one workflow run. It is owned
// by a single executor goroutine; handlers receive it by pointer and may
// read and mutate it without further locking.
type ExecutionContext struct {
	ExecutionID   string                    `json:"execution_id"`
	WorkflowID    string                    `json:"workflow_id"`
	TriggerType   TriggerType               `json:"trigger_type"`
	TriggerData   map[string]any            `json:"trigger_data"`
	Variables     map[string]*Variable      `json:"variables"`
	NodeOutputs   map[string]map[string]any `json:"node_outputs"`
	ExecutedNodes []string                  `json:"executed_nodes"`
	Errors        []NodeError               `json:"errors"`
	MessagesSent  []map[string]any          `json:"messages_sent"`
	StartedAt     time.Time                 `json:"started_at"`
}

// NewExecutionContext seeds a context from the workflow's variable
// declarations and the trigger payload.
func NewExecutionContext(executionID string, w *Workflow, trigger TriggerType, triggerData map[string]any) *ExecutionContext {
	ec := &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  w.ID,
		TriggerType: trigger,
		TriggerData: triggerData,
		Variables:   make(map[string]*Variable),
		NodeOutputs: make(map[string]map[string]any),
		StartedAt:   time.Now(),
	}
	if ec.TriggerData == nil {
		ec.TriggerData = map[string]any{}
	}
	for name, def := range w.Variables {
		ec.Variables[name] = &Variable{
			Name:      name,
			Value:     def.Default,
			Type:      def.Type,
			Scope:     def.Scope,
			UpdatedAt: ec.StartedAt,
		}
	}
	return ec
}

// SetVariable creates or overwrites a variable, recording the value's
// runtime type name alongside it.
func (ec *ExecutionContext) SetVariable(name string, value any) {
	if v, ok := ec.Variables[name]; ok {
		v.Value = value
		v.Type = typeName(value)
		v.UpdatedAt = time.Now()
		return
	}
	ec.Variables[name] = &Variable{Name: name, Value: value, Type: typeName(value), UpdatedAt: time.Now()}
}

func typeName(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%T", value)
}

// VariableValue returns a variable's value, nil when unset.
func (ec *ExecutionContext) VariableValue(name string) any {
	if v, ok := ec.Variables[name]; ok {
		return v.Value
	}
	return nil
}

// VariableValues flattens variables to name -> value.
func (ec *ExecutionContext) VariableValues() map[string]any {
	out := make(map[string]any, len(ec.Variables))
	for name, v := range ec.Variables {
		out[name] = v.Value
	}
	return out
}

// LastOutput is the output of the most recently executed node, or an
// empty map when nothing has run yet. This is the input every non-start
// node sees.
func (ec *ExecutionContext) LastOutput() map[string]any {
	for i := len(ec.ExecutedNodes) - 1; i >= 0; i-- {
		if out, ok := ec.NodeOutputs[ec.ExecutedNodes[i]]; ok && out != nil {
			return out
		}
	}
	return map[string]any{}
}

// RecordOutput marks a node executed and stores its output.
func (ec *ExecutionContext) RecordOutput(nodeID string, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}
	ec.NodeOutputs[nodeID] = output
	ec.ExecutedNodes = append(ec.ExecutedNodes, nodeID)
}

// RecordError appends a node failure.
func (ec *ExecutionContext) RecordError(nodeID, message string) {
	ec.Errors = append(ec.Errors, NodeError{NodeID: nodeID, Message: message, At: time.Now()})
}

// RecordMessage appends an outbound message produced by a reply node.
func (ec *ExecutionContext) RecordMessage(msg map[string]any) {
	ec.MessagesSent = append(ec.MessagesSent, msg)
}
