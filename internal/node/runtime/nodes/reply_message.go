package nodes

import (
	"context"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/pkg/template"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeReplyMessage,
		Name:        "Reply Message",
		Description: "Sends a chat reply with variable placeholders resolved",
		Category:    "action",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &replyMessage{node: node, deps: deps}
	})
}

type replyMessage struct {
	node model.Node
	deps runtime.Deps
}

// Execute renders the configured content against the current variables,
// records the outbound message on the context, and forwards it to the
// message sink when one is wired. A sink failure fails the node.
func (n *replyMessage) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	content := model.ConfigString(n.node.Config, "content", "")
	content = template.Render(content, ec.VariableValues())

	msg := map[string]any{
		"content": content,
		"node_id": n.node.ID,
	}
	if target := ec.TriggerData["session_id"]; target != nil {
		msg["session_id"] = target
	}

	if n.deps.Messages != nil {
		if err := n.deps.Messages.Send(ctx, msg); err != nil {
			return fail("send reply: " + err.Error())
		}
	}
	ec.RecordMessage(msg)

	return model.NodeStatusSuccess, map[string]any{
		"message_sent": true,
		"content":      content,
	}
}
