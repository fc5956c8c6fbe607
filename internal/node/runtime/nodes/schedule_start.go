package nodes

import (
	"context"
	"time"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeScheduleStart,
		Name:        "Schedule Start",
		Description: "Starts the workflow on a cron schedule",
		Category:    "trigger",
		IsTrigger:   true,
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &scheduleStart{node: node}
	})
}

type scheduleStart struct {
	node model.Node
}

func (n *scheduleStart) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	return model.NodeStatusSuccess, map[string]any{
		"triggered_at":    time.Now().Format(time.RFC3339),
		"cron_expression": model.ConfigString(n.node.Config, "cron_expression", "0 * * * *"),
		"timezone":        model.ConfigString(n.node.Config, "timezone", "UTC"),
	}
}
