// Package template implements the {{name}} placeholder grammar used in
// node configuration strings.
package template

import (
	"fmt"
	"regexp"
	"strconv"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes every {{name}} placeholder with the corresponding
// value in a single pass. Substituted values are never rescanned, so a
// value containing braces cannot inject further placeholders. Unknown
// names are left as written.
func Render(s string, values map[string]any) string {
	if len(values) == 0 {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		v, ok := values[name]
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// Names returns the placeholder names referenced by s, in order of first
// appearance.
func Names(s string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Stringify renders a value the way it appears inside a substituted
// string: numbers without a trailing ".0", booleans as true/false.
func Stringify(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return fmt.Sprint(v)
	}
}
