package nodes

import (
	"context"
	"strings"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeChatCommandBranch,
		Name:        "Chat/Command Branch",
		Description: "Routes command messages and plain chat to different branches",
		Category:    "logic",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &chatCommandBranch{node: node}
	})
}

type chatCommandBranch struct {
	node model.Node
}

// Execute inspects the trigger message content. Messages starting with
// the command prefix take the "command" branch with the first token as
// the command; everything else takes the "chat" branch.
func (n *chatCommandBranch) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	prefix := model.ConfigString(n.node.Config, "command_prefix", "/")
	content, _ := ec.TriggerData["content"].(string)

	if strings.HasPrefix(content, prefix) {
		// An empty prefix matches any content, including an empty or
		// all-whitespace message with no first token.
		command := ""
		if fields := strings.Fields(content); len(fields) > 0 {
			command = fields[0]
		}
		return model.NodeStatusSuccess, map[string]any{
			"type":    "command",
			"command": command,
			"branch":  "command",
		}
	}
	return model.NodeStatusSuccess, map[string]any{
		"type":    "chat",
		"content": content,
		"branch":  "chat",
	}
}
