// Package nodes contains the built-in node handlers. Each handler
// registers itself with the runtime registry from init(), so importing
// this package for side effects is enough to make the full set available.
package nodes

import (
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// fail is the uniform failure shape handlers return. The executor never
// sees a Go error from a handler, only this payload.
func fail(msg string) (model.NodeStatus, map[string]any) {
	return model.NodeStatusFailed, map[string]any{"error": msg}
}

// copyMap shallow-copies a payload so a node output cannot alias the
// trigger data or another node's output.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
