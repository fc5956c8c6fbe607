// Package serializer imports and exports workflow definitions as YAML.
// The export key order is stable so diffs between exported files stay
// readable; unknown enum values are skipped on import and unknown
// top-level keys survive a round trip untouched.
package serializer

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// Serializer converts workflows to and from their YAML document form.
type Serializer struct {
	log logger.Logger
}

// New creates a serializer.
func New(log logger.Logger) *Serializer {
	return &Serializer{log: log}
}

type yamlMetadata struct {
	CreatedAt string `yaml:"created_at,omitempty"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
	CreatedBy string `yaml:"created_by,omitempty"`
}

type yamlNode struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name,omitempty"`
	Type        string          `yaml:"type"`
	Description string          `yaml:"description,omitempty"`
	Position    *model.Position `yaml:"position,omitempty"`
	Config      map[string]any  `yaml:"config,omitempty"`
}

type yamlEdge struct {
	ID        string               `yaml:"id,omitempty"`
	Source    string               `yaml:"source"`
	Target    string               `yaml:"target"`
	Label     string               `yaml:"label,omitempty"`
	Condition *model.EdgeCondition `yaml:"condition,omitempty"`
}

// yamlWorkflow fixes the exported key order. The inline map collects
// every top-level key this version does not know about.
type yamlWorkflow struct {
	ID           string                       `yaml:"id,omitempty"`
	Name         string                       `yaml:"name"`
	Description  string                       `yaml:"description,omitempty"`
	Version      int                          `yaml:"version,omitempty"`
	Status       string                       `yaml:"status,omitempty"`
	TriggerTypes []string                     `yaml:"trigger_types,omitempty"`
	BotID        string                       `yaml:"bot_id,omitempty"`
	Tags         []string                     `yaml:"tags,omitempty"`
	Category     string                       `yaml:"category,omitempty"`
	Variables    map[string]model.VariableDef `yaml:"variables,omitempty"`
	Nodes        []yamlNode                   `yaml:"nodes"`
	Edges        []yamlEdge                   `yaml:"edges,omitempty"`
	Metadata     *yamlMetadata                `yaml:"metadata,omitempty"`
	Extra        map[string]any               `yaml:",inline"`
}

type yamlDocument struct {
	Workflow *yamlWorkflow  `yaml:"workflow"`
	Extra    map[string]any `yaml:",inline"`
}

// Deserialize parses a YAML document into a validated workflow. Both the
// wrapped form ({workflow: ...}) and a bare mapping are accepted.
func (s *Serializer) Deserialize(data []byte) (*model.Workflow, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	raw := doc.Workflow
	if raw == nil {
		raw = &yamlWorkflow{}
		if err := yaml.Unmarshal(data, raw); err != nil {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
	}
	if raw.Name == "" && len(raw.Nodes) == 0 {
		return nil, &model.ValidationError{Path: "workflow", Reason: "document has no workflow definition"}
	}

	w := &model.Workflow{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Version:     raw.Version,
		BotID:       raw.BotID,
		Tags:        raw.Tags,
		Category:    raw.Category,
		Variables:   raw.Variables,
		Extra:       raw.Extra,
	}
	if w.Version == 0 {
		w.Version = 1
	}

	w.Status = model.WorkflowStatusDraft
	if raw.Status != "" {
		status, err := model.ParseWorkflowStatus(raw.Status)
		if err != nil {
			s.log.Warn("skipping unknown workflow status", "status", raw.Status)
		} else {
			w.Status = status
		}
	}

	for _, t := range raw.TriggerTypes {
		trigger, err := model.ParseTriggerType(t)
		if err != nil {
			s.log.Warn("skipping unknown trigger type", "trigger_type", t)
			continue
		}
		w.TriggerTypes = append(w.TriggerTypes, trigger)
	}

	for i, n := range raw.Nodes {
		nodeType, err := model.ParseNodeType(n.Type)
		if err != nil {
			s.log.Warn("skipping node with unknown type",
				"node_id", n.ID,
				"type", n.Type,
			)
			continue
		}
		if n.ID == "" {
			return nil, &model.ValidationError{
				Path:   fmt.Sprintf("nodes[%d].id", i),
				Reason: "required",
			}
		}
		cfg := n.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		w.Nodes = append(w.Nodes, model.Node{
			ID:          n.ID,
			Type:        nodeType,
			Name:        n.Name,
			Description: n.Description,
			Position:    n.Position,
			Config:      cfg,
		})
	}

	known := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		known[n.ID] = true
	}
	for _, e := range raw.Edges {
		// Edges referring to skipped nodes go with them.
		if !known[e.Source] || !known[e.Target] {
			s.log.Warn("skipping edge with missing endpoint",
				"source", e.Source,
				"target", e.Target,
			)
			continue
		}
		w.Edges = append(w.Edges, model.Edge{
			ID:        e.ID,
			Source:    e.Source,
			Target:    e.Target,
			Label:     e.Label,
			Condition: e.Condition,
		})
	}

	if raw.Metadata != nil {
		if t, err := time.Parse(time.RFC3339, raw.Metadata.CreatedAt); err == nil {
			w.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, raw.Metadata.UpdatedAt); err == nil {
			w.UpdatedAt = t
		}
		w.CreatedBy = raw.Metadata.CreatedBy
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Serialize renders the workflow in the wrapped document form.
func (s *Serializer) Serialize(w *model.Workflow) ([]byte, error) {
	raw := &yamlWorkflow{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Status:      string(w.Status),
		BotID:       w.BotID,
		Tags:        w.Tags,
		Category:    w.Category,
		Variables:   w.Variables,
		Extra:       w.Extra,
	}
	for _, t := range w.TriggerTypes {
		raw.TriggerTypes = append(raw.TriggerTypes, string(t))
	}
	for _, n := range w.Nodes {
		raw.Nodes = append(raw.Nodes, yamlNode{
			ID:          n.ID,
			Name:        n.Name,
			Type:        string(n.Type),
			Description: n.Description,
			Position:    n.Position,
			Config:      n.Config,
		})
	}
	for _, e := range w.Edges {
		raw.Edges = append(raw.Edges, yamlEdge{
			ID:        e.ID,
			Source:    e.Source,
			Target:    e.Target,
			Label:     e.Label,
			Condition: e.Condition,
		})
	}

	meta := &yamlMetadata{CreatedBy: w.CreatedBy}
	if !w.CreatedAt.IsZero() {
		meta.CreatedAt = w.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !w.UpdatedAt.IsZero() {
		meta.UpdatedAt = w.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if meta.CreatedAt != "" || meta.UpdatedAt != "" || meta.CreatedBy != "" {
		raw.Metadata = meta
	}

	out, err := yaml.Marshal(yamlDocument{Workflow: raw})
	if err != nil {
		return nil, fmt.Errorf("serialize workflow: %w", err)
	}
	return out, nil
}
