package nodes

import (
	"context"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeEventStart,
		Name:        "Event Start",
		Description: "Starts the workflow when a matching message event arrives",
		Category:    "trigger",
		IsTrigger:   true,
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &eventStart{node: node}
	})
}

type eventStart struct {
	node model.Node
}

// Execute passes the trigger payload through as the node output.
func (n *eventStart) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	return model.NodeStatusSuccess, copyMap(ec.TriggerData)
}
