package nodes

import (
	"context"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeSetVariable,
		Name:        "Set Variable",
		Description: "Stores a value in a workflow variable",
		Category:    "data",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &setVariable{node: node}
	})
}

type setVariable struct {
	node model.Node
}

// Execute stores the configured value, falling back to the previous
// node's entire output when no literal value is given.
func (n *setVariable) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	name := model.ConfigString(n.node.Config, "variable_name", "")
	if name == "" {
		return fail("variable_name is required")
	}

	value, ok := n.node.Config["value"]
	if !ok || value == nil {
		if len(ec.ExecutedNodes) > 0 {
			value = ec.LastOutput()
		}
	}

	ec.SetVariable(name, value)
	return model.NodeStatusSuccess, map[string]any{
		"variable": name,
		"value":    value,
	}
}
