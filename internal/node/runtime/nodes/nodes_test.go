package nodes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func newContext(t *testing.T, triggerData map[string]any) *model.ExecutionContext {
	t.Helper()
	w := &model.Workflow{ID: "wf", Name: "test"}
	return model.NewExecutionContext("exec", w, model.TriggerManual, triggerData)
}

func resolve(t *testing.T, node model.Node, deps runtime.Deps) runtime.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	h, err := runtime.Default().Resolve(node, deps)
	require.NoError(t, err)
	return h
}

func TestEventStart(t *testing.T) {
	ec := newContext(t, map[string]any{"content": "hello"})
	h := resolve(t, model.Node{ID: "s", Type: model.NodeTypeEventStart,
		Config: map[string]any{"trigger_type": "manual"}}, runtime.Deps{})

	status, out := h.Execute(context.Background(), ec)
	assert.Equal(t, model.NodeStatusSuccess, status)
	assert.Equal(t, "hello", out["content"])

	// Output is a copy, not an alias of the trigger data.
	out["content"] = "mutated"
	assert.Equal(t, "hello", ec.TriggerData["content"])
}

func TestScheduleStart(t *testing.T) {
	ec := newContext(t, nil)
	h := resolve(t, model.Node{ID: "s", Type: model.NodeTypeScheduleStart,
		Config: map[string]any{"cron_expression": "*/5 * * * *"}}, runtime.Deps{})

	status, out := h.Execute(context.Background(), ec)
	assert.Equal(t, model.NodeStatusSuccess, status)
	assert.Equal(t, "*/5 * * * *", out["cron_expression"])
	assert.NotEmpty(t, out["triggered_at"])
}

type recordingSink struct {
	messages []map[string]any
	err      error
}

func (s *recordingSink) Send(ctx context.Context, msg map[string]any) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func TestReplyMessage(t *testing.T) {
	t.Run("renders variables and records message", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.SetVariable("name", "sam")
		sink := &recordingSink{}
		h := resolve(t, model.Node{ID: "r", Type: model.NodeTypeReplyMessage,
			Config: map[string]any{"content": "hi {{name}}"}}, runtime.Deps{Messages: sink})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, "hi sam", out["content"])
		require.Len(t, ec.MessagesSent, 1)
		require.Len(t, sink.messages, 1)
		assert.Equal(t, "hi sam", sink.messages[0]["content"])
	})

	t.Run("sink failure fails the node", func(t *testing.T) {
		ec := newContext(t, nil)
		sink := &recordingSink{err: errors.New("adapter down")}
		h := resolve(t, model.Node{ID: "r", Type: model.NodeTypeReplyMessage,
			Config: map[string]any{"content": "x"}}, runtime.Deps{Messages: sink})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
		assert.Contains(t, out["error"], "adapter down")
		assert.Empty(t, ec.MessagesSent)
	})

	t.Run("no sink still records", func(t *testing.T) {
		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "r", Type: model.NodeTypeReplyMessage,
			Config: map[string]any{"content": "x"}}, runtime.Deps{})

		status, _ := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Len(t, ec.MessagesSent, 1)
	})
}

func TestHTTPRequest(t *testing.T) {
	t.Run("success with variable substitution", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users/42", r.URL.Path)
			assert.Equal(t, "token", r.Header.Get("X-Auth"))
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		ec := newContext(t, nil)
		ec.SetVariable("id", 42)
		h := resolve(t, model.Node{ID: "h", Type: model.NodeTypeHTTPRequest, Config: map[string]any{
			"url":     srv.URL + "/users/{{id}}",
			"headers": map[string]any{"X-Auth": "token"},
		}}, runtime.Deps{HTTPClient: srv.Client()})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, 200, out["status"])
		assert.Equal(t, `{"ok":true}`, out["body"])
	})

	t.Run("non-2xx fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "h", Type: model.NodeTypeHTTPRequest,
			Config: map[string]any{"url": srv.URL}}, runtime.Deps{HTTPClient: srv.Client()})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
		assert.Equal(t, 502, out["status"])
		assert.Contains(t, out["error"], "unexpected status")
	})

	t.Run("missing url fails", func(t *testing.T) {
		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "h", Type: model.NodeTypeHTTPRequest,
			Config: map[string]any{}}, runtime.Deps{})
		status, _ := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
	})
}

func TestJSONProcessor(t *testing.T) {
	t.Run("extract dotted path", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.RecordOutput("prev", map[string]any{
			"user": map[string]any{"tags": []any{"a", "b"}},
		})
		h := resolve(t, model.Node{ID: "j", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "extract", "path": "user.tags.1"}}, runtime.Deps{})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, "b", out["value"])
	})

	t.Run("extract dead end yields nil", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.RecordOutput("prev", map[string]any{"a": 1})
		h := resolve(t, model.Node{ID: "j", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "extract", "path": "a.b.c"}}, runtime.Deps{})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Nil(t, out["value"])
	})

	t.Run("set creates intermediate maps", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.RecordOutput("prev", map[string]any{"keep": true})
		h := resolve(t, model.Node{ID: "j", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "set", "path": "meta.source", "value": "api"}}, runtime.Deps{})

		status, out := h.Execute(context.Background(), ec)
		require.Equal(t, model.NodeStatusSuccess, status)
		result := out["result"].(map[string]any)
		assert.Equal(t, true, result["keep"])
		assert.Equal(t, "api", result["meta"].(map[string]any)["source"])
	})

	t.Run("set leaves the upstream output untouched", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.RecordOutput("prev", map[string]any{
			"user": map[string]any{"name": "alice"},
		})
		h := resolve(t, model.Node{ID: "j", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "set", "path": "user.name", "value": "mallory"}}, runtime.Deps{})

		status, out := h.Execute(context.Background(), ec)
		require.Equal(t, model.NodeStatusSuccess, status)
		result := out["result"].(map[string]any)
		assert.Equal(t, "mallory", result["user"].(map[string]any)["name"])
		upstream := ec.NodeOutputs["prev"]["user"].(map[string]any)
		assert.Equal(t, "alice", upstream["name"])
	})

	t.Run("serialize and deserialize", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.RecordOutput("prev", map[string]any{"n": float64(1)})
		ser := resolve(t, model.Node{ID: "s", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "serialize"}}, runtime.Deps{})
		status, out := ser.Execute(context.Background(), ec)
		require.Equal(t, model.NodeStatusSuccess, status)
		assert.JSONEq(t, `{"n":1}`, out["json_string"].(string))

		ec.RecordOutput("mid", map[string]any{"body": `{"x":2}`})
		de := resolve(t, model.Node{ID: "d", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "deserialize"}}, runtime.Deps{})
		status, out = de.Execute(context.Background(), ec)
		require.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, float64(2), out["data"].(map[string]any)["x"])
	})

	t.Run("unknown operation fails", func(t *testing.T) {
		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "j", Type: model.NodeTypeJSONProcessor,
			Config: map[string]any{"operation": "pivot"}}, runtime.Deps{})
		status, _ := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
	})
}

func TestCondition(t *testing.T) {
	node := model.Node{ID: "cond", Type: model.NodeTypeCondition, Config: map[string]any{
		"logic": "and",
		"conditions": []any{
			map[string]any{"field": "status", "operator": "equals", "value": "ok"},
			map[string]any{"field": "count", "operator": "greater_than", "value": 2},
		},
	}}

	t.Run("all clauses true", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.NodeOutputs["cond"] = map[string]any{"status": "ok", "count": 5}
		h := resolve(t, node, runtime.Deps{})
		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, true, out["result"])
		assert.Equal(t, "true", out["branch"])
	})

	t.Run("one clause false under and", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.NodeOutputs["cond"] = map[string]any{"status": "ok", "count": 1}
		h := resolve(t, node, runtime.Deps{})
		_, out := h.Execute(context.Background(), ec)
		assert.Equal(t, false, out["result"])
		assert.Equal(t, "false", out["branch"])
	})

	t.Run("or logic", func(t *testing.T) {
		orNode := node
		orNode.Config = map[string]any{
			"logic": "or",
			"conditions": []any{
				map[string]any{"field": "status", "operator": "equals", "value": "nope"},
				map[string]any{"field": "count", "operator": "less_than", "value": 10},
			},
		}
		ec := newContext(t, nil)
		ec.NodeOutputs["cond"] = map[string]any{"status": "ok", "count": 1}
		h := resolve(t, orNode, runtime.Deps{})
		_, out := h.Execute(context.Background(), ec)
		assert.Equal(t, true, out["result"])
	})

	t.Run("no clauses is false", func(t *testing.T) {
		empty := node
		empty.Config = map[string]any{}
		ec := newContext(t, nil)
		h := resolve(t, empty, runtime.Deps{})
		_, out := h.Execute(context.Background(), ec)
		assert.Equal(t, false, out["result"])
		assert.Equal(t, "false", out["branch"])
	})
}

func TestChatCommandBranch(t *testing.T) {
	node := model.Node{ID: "b", Type: model.NodeTypeChatCommandBranch, Config: map[string]any{}}

	t.Run("command message", func(t *testing.T) {
		ec := newContext(t, map[string]any{"content": "/help me"})
		h := resolve(t, node, runtime.Deps{})
		_, out := h.Execute(context.Background(), ec)
		assert.Equal(t, "command", out["branch"])
		assert.Equal(t, "/help", out["command"])
	})

	t.Run("chat message", func(t *testing.T) {
		ec := newContext(t, map[string]any{"content": "hello there"})
		h := resolve(t, node, runtime.Deps{})
		_, out := h.Execute(context.Background(), ec)
		assert.Equal(t, "chat", out["branch"])
		assert.Equal(t, "hello there", out["content"])
	})

	t.Run("custom prefix", func(t *testing.T) {
		custom := node
		custom.Config = map[string]any{"command_prefix": "!"}
		ec := newContext(t, map[string]any{"content": "!ping"})
		h := resolve(t, custom, runtime.Deps{})
		_, out := h.Execute(context.Background(), ec)
		assert.Equal(t, "command", out["branch"])
	})

	t.Run("empty prefix with empty content", func(t *testing.T) {
		custom := node
		custom.Config = map[string]any{"command_prefix": ""}
		ec := newContext(t, map[string]any{"content": ""})
		h := resolve(t, custom, runtime.Deps{})
		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, "command", out["branch"])
		assert.Equal(t, "", out["command"])
	})
}

func TestSetGetVariable(t *testing.T) {
	t.Run("set literal then get", func(t *testing.T) {
		ec := newContext(t, nil)
		set := resolve(t, model.Node{ID: "s", Type: model.NodeTypeSetVariable,
			Config: map[string]any{"variable_name": "city", "value": "tokyo"}}, runtime.Deps{})
		status, _ := set.Execute(context.Background(), ec)
		require.Equal(t, model.NodeStatusSuccess, status)

		get := resolve(t, model.Node{ID: "g", Type: model.NodeTypeGetVariable,
			Config: map[string]any{"variable_name": "city"}}, runtime.Deps{})
		_, out := get.Execute(context.Background(), ec)
		assert.Equal(t, "tokyo", out["value"])
	})

	t.Run("set records the runtime type name", func(t *testing.T) {
		ec := newContext(t, nil)
		set := resolve(t, model.Node{ID: "s", Type: model.NodeTypeSetVariable,
			Config: map[string]any{"variable_name": "city", "value": "tokyo"}}, runtime.Deps{})
		set.Execute(context.Background(), ec)
		require.Contains(t, ec.Variables, "city")
		assert.Equal(t, "string", ec.Variables["city"].Type)

		count := resolve(t, model.Node{ID: "c", Type: model.NodeTypeSetVariable,
			Config: map[string]any{"variable_name": "count", "value": 3}}, runtime.Deps{})
		count.Execute(context.Background(), ec)
		assert.Equal(t, "int", ec.Variables["count"].Type)
	})

	t.Run("set falls back to previous output", func(t *testing.T) {
		ec := newContext(t, nil)
		ec.RecordOutput("prev", map[string]any{"body": "data"})
		set := resolve(t, model.Node{ID: "s", Type: model.NodeTypeSetVariable,
			Config: map[string]any{"variable_name": "snapshot"}}, runtime.Deps{})
		_, out := set.Execute(context.Background(), ec)
		assert.Equal(t, map[string]any{"body": "data"}, out["value"])
	})

	t.Run("get unset uses default", func(t *testing.T) {
		ec := newContext(t, nil)
		get := resolve(t, model.Node{ID: "g", Type: model.NodeTypeGetVariable,
			Config: map[string]any{"variable_name": "missing", "default": "fallback"}}, runtime.Deps{})
		_, out := get.Execute(context.Background(), ec)
		assert.Equal(t, "fallback", out["value"])
	})

	t.Run("missing name fails", func(t *testing.T) {
		ec := newContext(t, nil)
		set := resolve(t, model.Node{ID: "s", Type: model.NodeTypeSetVariable,
			Config: map[string]any{}}, runtime.Deps{})
		status, _ := set.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
	})
}

type fakeToolHost struct {
	lastTool   string
	lastParams map[string]any
	result     map[string]any
	err        error
}

func (f *fakeToolHost) Invoke(ctx context.Context, toolID string, params map[string]any) (map[string]any, error) {
	f.lastTool = toolID
	f.lastParams = params
	return f.result, f.err
}

func TestToolAction(t *testing.T) {
	t.Run("delegates to tool host", func(t *testing.T) {
		host := &fakeToolHost{result: map[string]any{"answer": 42}}
		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "t", Type: model.NodeTypeToolAction, Config: map[string]any{
			"tool_id":    "calculator",
			"parameters": map[string]any{"expr": "6*7"},
		}}, runtime.Deps{Tools: host})

		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusSuccess, status)
		assert.Equal(t, "calculator", host.lastTool)
		assert.Equal(t, map[string]any{"answer": 42}, out["result"])
	})

	t.Run("tool error fails the node", func(t *testing.T) {
		host := &fakeToolHost{err: errors.New("no such tool")}
		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "t", Type: model.NodeTypeToolAction,
			Config: map[string]any{"tool_id": "x"}}, runtime.Deps{Tools: host})
		status, out := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
		assert.Contains(t, out["error"], "no such tool")
	})

	t.Run("no host configured fails", func(t *testing.T) {
		ec := newContext(t, nil)
		h := resolve(t, model.Node{ID: "t", Type: model.NodeTypeToolAction,
			Config: map[string]any{"tool_id": "x"}}, runtime.Deps{})
		status, _ := h.Execute(context.Background(), ec)
		assert.Equal(t, model.NodeStatusFailed, status)
	})
}

func TestEnd(t *testing.T) {
	ec := newContext(t, nil)
	h := resolve(t, model.Node{ID: "e", Type: model.NodeTypeEnd, Config: map[string]any{}}, runtime.Deps{})
	status, out := h.Execute(context.Background(), ec)
	assert.Equal(t, model.NodeStatusSuccess, status)
	assert.Equal(t, true, out["completed"])
}

func TestRegistryManifests(t *testing.T) {
	manifests := runtime.Default().List()
	types := make(map[model.NodeType]bool)
	for _, m := range manifests {
		types[m.Type] = true
	}
	for _, want := range []model.NodeType{
		model.NodeTypeEventStart, model.NodeTypeScheduleStart, model.NodeTypeCondition,
		model.NodeTypeHTTPRequest, model.NodeTypeJSONProcessor, model.NodeTypeReplyMessage,
		model.NodeTypeSetVariable, model.NodeTypeGetVariable, model.NodeTypeChatCommandBranch,
		model.NodeTypeToolAction, model.NodeTypeEnd,
	} {
		assert.True(t, types[want], "missing manifest for %s", want)
	}
}
