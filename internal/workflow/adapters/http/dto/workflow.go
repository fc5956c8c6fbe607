// Package dto defines the HTTP request payloads for the workflow API.
package dto

import (
	"github.com/botflow-io/botflow/internal/workflow/app/service"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// CreateWorkflowRequest is the POST /workflows payload.
type CreateWorkflowRequest struct {
	Name         string                       `json:"name"`
	Description  string                       `json:"description"`
	TriggerTypes []model.TriggerType          `json:"trigger_types"`
	Nodes        []model.Node                 `json:"nodes"`
	Edges        []model.Edge                 `json:"edges"`
	Variables    map[string]model.VariableDef `json:"variables"`
	BotID        string                       `json:"bot_id"`
	Tags         []string                     `json:"tags"`
	Category     string                       `json:"category"`
}

// ToModel converts the request into a draft workflow.
func (r *CreateWorkflowRequest) ToModel() *model.Workflow {
	return &model.Workflow{
		Name:         r.Name,
		Description:  r.Description,
		TriggerTypes: r.TriggerTypes,
		Nodes:        r.Nodes,
		Edges:        r.Edges,
		Variables:    r.Variables,
		BotID:        r.BotID,
		Tags:         r.Tags,
		Category:     r.Category,
		Status:       model.WorkflowStatusDraft,
	}
}

// UpdateWorkflowRequest is the PUT /workflows/{id} payload. Absent
// fields stay unchanged.
type UpdateWorkflowRequest struct {
	Name         *string                       `json:"name"`
	Description  *string                       `json:"description"`
	TriggerTypes *[]model.TriggerType          `json:"trigger_types"`
	Nodes        *[]model.Node                 `json:"nodes"`
	Edges        *[]model.Edge                 `json:"edges"`
	Variables    *map[string]model.VariableDef `json:"variables"`
	Tags         *[]string                     `json:"tags"`
	Category     *string                       `json:"category"`
}

// ToUpdate converts the request into the service update form.
func (r *UpdateWorkflowRequest) ToUpdate() service.UpdateRequest {
	return service.UpdateRequest{
		Name:         r.Name,
		Description:  r.Description,
		TriggerTypes: r.TriggerTypes,
		Nodes:        r.Nodes,
		Edges:        r.Edges,
		Variables:    r.Variables,
		Tags:         r.Tags,
		Category:     r.Category,
	}
}

// ExecuteRequest is the POST /workflows/{id}/execute payload.
type ExecuteRequest struct {
	TriggerType model.TriggerType `json:"trigger_type"`
	TriggerData map[string]any    `json:"trigger_data"`
}

// BindBotRequest is the POST /workflows/{id}/bind payload.
type BindBotRequest struct {
	BotID string `json:"bot_id"`
}

// DebugRequest is the POST /workflows/{id}/debug payload.
type DebugRequest struct {
	TriggerType model.TriggerType `json:"trigger_type"`
	TriggerData map[string]any    `json:"trigger_data"`
	Breakpoints []string          `json:"breakpoints"`
	StepMode    bool              `json:"step_mode"`
}

// MessageEventRequest is the POST /bots/{bot_id}/events payload.
type MessageEventRequest struct {
	EventType model.TriggerType `json:"event_type"`
	EventData map[string]any    `json:"event_data"`
}
