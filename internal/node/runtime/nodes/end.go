package nodes

import (
	"context"
	"time"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeEnd,
		Name:        "End",
		Description: "Marks a terminal point of the workflow",
		Category:    "control",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &end{}
	})
}

type end struct{}

func (n *end) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	return model.NodeStatusSuccess, map[string]any{
		"completed":    true,
		"completed_at": time.Now().Format(time.RFC3339),
	}
}
