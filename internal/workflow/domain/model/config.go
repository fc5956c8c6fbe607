package model

import (
	"fmt"
	"strconv"
	"time"
)

// ConfigString reads a string field from a node config payload.
func ConfigString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ConfigInt reads an integer field, accepting the numeric types YAML and
// JSON decoders produce.
func ConfigInt(cfg map[string]any, key string, def int) int {
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i
			}
		}
	}
	return def
}

// ConfigBool reads a boolean field.
func ConfigBool(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// ConfigMap reads a nested mapping field.
func ConfigMap(cfg map[string]any, key string) map[string]any {
	if v, ok := cfg[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			return m
		case map[any]any:
			out := make(map[string]any, len(m))
			for k, val := range m {
				out[fmt.Sprint(k)] = val
			}
			return out
		}
	}
	return nil
}

// ConfigSlice reads a sequence field.
func ConfigSlice(cfg map[string]any, key string) []any {
	if v, ok := cfg[key]; ok {
		if s, ok := v.([]any); ok {
			return s
		}
	}
	return nil
}

// ErrorPolicy tells the executor what to do when a node fails.
type ErrorPolicy string

const (
	ErrorPolicyStop     ErrorPolicy = "stop"
	ErrorPolicySkip     ErrorPolicy = "skip"
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// CommonConfig holds the execution knobs every node type honors.
type CommonConfig struct {
	Timeout     time.Duration
	Retry       int
	ErrorPolicy ErrorPolicy
}

// ParseCommon extracts the common knobs from a node config. Missing or
// malformed fields fall back to defaults (no timeout, no retry, stop).
func ParseCommon(cfg map[string]any) CommonConfig {
	c := CommonConfig{ErrorPolicy: ErrorPolicyStop}
	if secs := ConfigInt(cfg, "timeout", 0); secs > 0 {
		c.Timeout = time.Duration(secs) * time.Second
	}
	if r := ConfigInt(cfg, "retry", 0); r > 0 {
		c.Retry = r
	}
	switch ErrorPolicy(ConfigString(cfg, "error_handler", "stop")) {
	case ErrorPolicySkip:
		c.ErrorPolicy = ErrorPolicySkip
	case ErrorPolicyContinue:
		c.ErrorPolicy = ErrorPolicyContinue
	default:
		c.ErrorPolicy = ErrorPolicyStop
	}
	return c
}

// ValidateNodeConfig checks the structural requirements for a node's
// config payload. Unknown fields are always tolerated.
func ValidateNodeConfig(n Node) error {
	path := func(field string) string {
		return fmt.Sprintf("nodes[%s].config.%s", n.ID, field)
	}
	switch n.Type {
	case NodeTypeEventStart:
		tt := ConfigString(n.Config, "trigger_type", "")
		if tt == "" {
			return &ValidationError{Path: path("trigger_type"), Reason: "required"}
		}
		if _, err := ParseTriggerType(tt); err != nil {
			return &ValidationError{Path: path("trigger_type"), Reason: err.Error()}
		}
	case NodeTypeScheduleStart:
		if ConfigString(n.Config, "cron_expression", "") == "" {
			return &ValidationError{Path: path("cron_expression"), Reason: "required"}
		}
	case NodeTypeHTTPRequest:
		if ConfigString(n.Config, "url", "") == "" {
			return &ValidationError{Path: path("url"), Reason: "required"}
		}
	case NodeTypeSetVariable, NodeTypeGetVariable:
		if ConfigString(n.Config, "variable_name", "") == "" {
			return &ValidationError{Path: path("variable_name"), Reason: "required"}
		}
	case NodeTypeToolAction:
		if ConfigString(n.Config, "tool_id", "") == "" {
			return &ValidationError{Path: path("tool_id"), Reason: "required"}
		}
	}
	return nil
}
