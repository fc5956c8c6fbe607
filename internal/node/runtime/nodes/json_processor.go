package nodes

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeJSONProcessor,
		Name:        "JSON Processor",
		Description: "Extracts, sets, serializes or deserializes JSON data",
		Category:    "transform",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		return &jsonProcessor{node: node}
	})
}

type jsonProcessor struct {
	node model.Node
}

// Execute dispatches on the configured operation. The input is always the
// last executed node's output.
func (n *jsonProcessor) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	cfg := n.node.Config
	input := ec.LastOutput()

	switch op := strings.ToLower(model.ConfigString(cfg, "operation", "extract")); op {
	case "extract":
		path := model.ConfigString(cfg, "path", "")
		if path == "" {
			return fail("path is required for extract operation")
		}
		return model.NodeStatusSuccess, map[string]any{
			"value": lookupPath(input, path),
			"path":  path,
		}

	case "set":
		path := model.ConfigString(cfg, "path", "")
		if path == "" {
			return fail("path is required for set operation")
		}
		result := copyMap(input)
		setPath(result, path, cfg["value"])
		return model.NodeStatusSuccess, map[string]any{"result": result}

	case "serialize":
		raw, err := json.Marshal(input)
		if err != nil {
			return fail("serialize: " + err.Error())
		}
		return model.NodeStatusSuccess, map[string]any{"json_string": string(raw)}

	case "deserialize":
		// Deserialize the body field when present, otherwise the whole
		// input must already be structured data.
		if s, ok := input["body"].(string); ok {
			var data any
			if err := json.Unmarshal([]byte(s), &data); err != nil {
				return fail("deserialize: " + err.Error())
			}
			return model.NodeStatusSuccess, map[string]any{"data": data}
		}
		return model.NodeStatusSuccess, map[string]any{"data": input}

	default:
		return fail("unknown operation: " + op)
	}
}

// lookupPath walks a dotted path through nested maps and slices. Numeric
// segments index slices. A dead end yields nil.
func lookupPath(data any, path string) any {
	value := data
	for _, part := range strings.Split(path, ".") {
		switch v := value.(type) {
		case map[string]any:
			value = v[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			value = v[i]
		default:
			return nil
		}
	}
	return value
}

// setPath writes a value at a dotted path, creating intermediate maps.
// Existing maps along the path are copied so the write never reaches an
// upstream node's stored output through a shared reference.
func setPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if ok {
			next = copyMap(next)
		} else {
			next = map[string]any{}
		}
		current[part] = next
		current = next
	}
	current[parts[len(parts)-1]] = value
}
