package nodes

import (
	"context"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeToolAction,
		Name:        "Tool Action",
		Description: "Invokes an external tool through the tool host",
		Category:    "action",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &toolAction{node: node, deps: deps}
	})
}

type toolAction struct {
	node model.Node
	deps runtime.Deps
}

func (n *toolAction) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	toolID := model.ConfigString(n.node.Config, "tool_id", "")
	if toolID == "" {
		return fail("tool_id is required")
	}
	if n.deps.Tools == nil {
		return fail("no tool host configured")
	}

	params := model.ConfigMap(n.node.Config, "parameters")
	result, err := n.deps.Tools.Invoke(ctx, toolID, params)
	if err != nil {
		return fail("tool " + toolID + ": " + err.Error())
	}

	return model.NodeStatusSuccess, map[string]any{
		"tool_id":    toolID,
		"parameters": params,
		"result":     result,
	}
}
