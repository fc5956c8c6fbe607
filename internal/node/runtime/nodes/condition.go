package nodes

import (
	"context"
	"strconv"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeCondition,
		Name:        "Condition",
		Description: "Evaluates comparison clauses and branches on the result",
		Category:    "logic",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &condition{node: node}
	})
}

type condition struct {
	node model.Node
}

// Execute evaluates the configured clauses against this node's own output
// slot and combines them with and/or logic. The boolean result also
// drives edge selection through the branch key.
func (n *condition) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	cfg := n.node.Config
	logic := model.ConfigString(cfg, "logic", "and")
	clauses := model.ConfigSlice(cfg, "conditions")

	input := ec.NodeOutputs[n.node.ID]

	var results []bool
	for _, raw := range clauses {
		clause, ok := raw.(map[string]any)
		if !ok {
			results = append(results, false)
			continue
		}
		field := model.ConfigString(clause, "field", "")
		op := model.Operator(model.ConfigString(clause, "operator", ""))
		var actual any
		if input != nil {
			actual = input[field]
		}
		results = append(results, model.Compare(op, actual, clause["value"]))
	}

	final := false
	if len(results) > 0 {
		if logic == "or" {
			for _, r := range results {
				if r {
					final = true
					break
				}
			}
		} else {
			final = true
			for _, r := range results {
				if !r {
					final = false
					break
				}
			}
		}
	}

	return model.NodeStatusSuccess, map[string]any{
		"result": final,
		"branch": strconv.FormatBool(final),
	}
}
