package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowValidate(t *testing.T) {
	t.Run("valid workflow", func(t *testing.T) {
		w := &Workflow{
			Name: "greeter",
			Nodes: []Node{
				{ID: "start", Type: NodeTypeEventStart, Config: map[string]any{"trigger_type": "person_message"}},
				{ID: "reply", Type: NodeTypeReplyMessage, Config: map[string]any{"content": "hi"}},
			},
			Edges: []Edge{{Source: "start", Target: "reply"}},
		}
		assert.NoError(t, w.Validate())
	})

	t.Run("duplicate node id", func(t *testing.T) {
		w := &Workflow{
			Name: "dup",
			Nodes: []Node{
				{ID: "a", Type: NodeTypeEnd, Config: map[string]any{}},
				{ID: "a", Type: NodeTypeEnd, Config: map[string]any{}},
			},
		}
		err := w.Validate()
		require.Error(t, err)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Path, "nodes[1]")
	})

	t.Run("edge to missing node", func(t *testing.T) {
		w := &Workflow{
			Name:  "dangling",
			Nodes: []Node{{ID: "a", Type: NodeTypeEnd, Config: map[string]any{}}},
			Edges: []Edge{{Source: "a", Target: "ghost"}},
		}
		err := w.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("missing required config", func(t *testing.T) {
		w := &Workflow{
			Name:  "bad-cron",
			Nodes: []Node{{ID: "s", Type: NodeTypeScheduleStart, Config: map[string]any{}}},
		}
		err := w.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cron_expression")
	})

	t.Run("missing name", func(t *testing.T) {
		w := &Workflow{}
		assert.Error(t, w.Validate())
	})
}

func TestStartNodes(t *testing.T) {
	w := &Workflow{
		Name: "multi-start",
		Nodes: []Node{
			{ID: "person", Type: NodeTypeEventStart, Config: map[string]any{"trigger_type": "person_message"}},
			{ID: "group", Type: NodeTypeEventStart, Config: map[string]any{"trigger_type": "group_message"}},
			{ID: "cron", Type: NodeTypeScheduleStart, Config: map[string]any{"cron_expression": "0 * * * *"}},
			{ID: "work", Type: NodeTypeEnd, Config: map[string]any{}},
		},
	}

	t.Run("event trigger selects matching start", func(t *testing.T) {
		starts := w.StartNodes(TriggerPersonMessage)
		require.Len(t, starts, 1)
		assert.Equal(t, "person", starts[0].ID)
	})

	t.Run("scheduled trigger selects schedule starts", func(t *testing.T) {
		starts := w.StartNodes(TriggerScheduled)
		require.Len(t, starts, 1)
		assert.Equal(t, "cron", starts[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, w.StartNodes(TriggerAPI))
	})
}

func TestParseCommon(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := ParseCommon(map[string]any{})
		assert.Equal(t, time.Duration(0), c.Timeout)
		assert.Equal(t, 0, c.Retry)
		assert.Equal(t, ErrorPolicyStop, c.ErrorPolicy)
	})

	t.Run("explicit values", func(t *testing.T) {
		c := ParseCommon(map[string]any{
			"timeout":       10,
			"retry":         2,
			"error_handler": "skip",
		})
		assert.Equal(t, 10*time.Second, c.Timeout)
		assert.Equal(t, 2, c.Retry)
		assert.Equal(t, ErrorPolicySkip, c.ErrorPolicy)
	})

	t.Run("unknown policy falls back to stop", func(t *testing.T) {
		c := ParseCommon(map[string]any{"error_handler": "explode"})
		assert.Equal(t, ErrorPolicyStop, c.ErrorPolicy)
	})
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		op       Operator
		actual   any
		expected any
		want     bool
	}{
		{"equals strings", OpEquals, "a", "a", true},
		{"equals coerces numbers", OpEquals, float64(3), "3", true},
		{"equals bool", OpEquals, true, "true", true},
		{"not equals", OpNotEquals, "a", "b", true},
		{"contains substring", OpContains, "hello world", "world", true},
		{"contains miss", OpContains, "hello", "bye", false},
		{"greater than", OpGreaterThan, 5, 3, true},
		{"greater than string operand", OpGreaterThan, "10", 2, true},
		{"greater than uncoercible", OpGreaterThan, "abc", 2, false},
		{"less than", OpLessThan, 1.5, 2, true},
		{"unknown operator", Operator("matches"), "a", "a", false},
		{"nil actual equals empty", OpEquals, nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.op, tt.actual, tt.expected))
		})
	}
}

func TestEdgeConditionEvaluate(t *testing.T) {
	cond := &EdgeCondition{Field: "status", Operator: OpEquals, Value: "ok"}
	assert.True(t, cond.Evaluate(map[string]any{"status": "ok"}))
	assert.False(t, cond.Evaluate(map[string]any{"status": "bad"}))
	assert.False(t, cond.Evaluate(nil))
}

func TestExecutionContext(t *testing.T) {
	w := &Workflow{
		ID:   "wf",
		Name: "vars",
		Variables: map[string]VariableDef{
			"greeting": {Default: "hello"},
		},
	}
	ec := NewExecutionContext("exec-1", w, TriggerManual, nil)

	t.Run("seeds declared variables", func(t *testing.T) {
		assert.Equal(t, "hello", ec.VariableValue("greeting"))
	})

	t.Run("last output follows executed order", func(t *testing.T) {
		assert.Empty(t, ec.LastOutput())
		ec.RecordOutput("a", map[string]any{"n": 1})
		ec.RecordOutput("b", map[string]any{"n": 2})
		assert.Equal(t, 2, ec.LastOutput()["n"])
	})

	t.Run("set variable overwrites", func(t *testing.T) {
		ec.SetVariable("greeting", "hi")
		assert.Equal(t, "hi", ec.VariableValue("greeting"))
	})
}
