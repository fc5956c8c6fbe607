package nodes

import (
	"context"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeGetVariable,
		Name:        "Get Variable",
		Description: "Reads a workflow variable into the node output",
		Category:    "data",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &getVariable{node: node}
	})
}

type getVariable struct {
	node model.Node
}

func (n *getVariable) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	name := model.ConfigString(n.node.Config, "variable_name", "")
	if name == "" {
		return fail("variable_name is required")
	}

	var value any
	if v, ok := ec.Variables[name]; ok {
		value = v.Value
	} else {
		value = n.node.Config["default"]
	}

	return model.NodeStatusSuccess, map[string]any{
		"variable": name,
		"value":    value,
	}
}
