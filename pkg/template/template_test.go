package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	values := map[string]any{
		"name":  "bot",
		"count": float64(3),
		"ok":    true,
	}

	t.Run("substitutes known names", func(t *testing.T) {
		assert.Equal(t, "hi bot, 3 items", Render("hi {{name}}, {{count}} items", values))
	})

	t.Run("unknown names stay as written", func(t *testing.T) {
		assert.Equal(t, "hi {{stranger}}", Render("hi {{stranger}}", values))
	})

	t.Run("single pass does not rescan values", func(t *testing.T) {
		out := Render("{{a}}", map[string]any{"a": "{{b}}", "b": "nope"})
		assert.Equal(t, "{{b}}", out)
	})

	t.Run("booleans and floats stringify cleanly", func(t *testing.T) {
		assert.Equal(t, "true 3", Render("{{ok}} {{count}}", values))
	})

	t.Run("whitespace inside braces", func(t *testing.T) {
		assert.Equal(t, "bot", Render("{{ name }}", values))
	})

	t.Run("empty values leave input untouched", func(t *testing.T) {
		assert.Equal(t, "{{name}}", Render("{{name}}", nil))
	})
}

func TestNames(t *testing.T) {
	names := Names("{{a}} {{b}} {{a}}")
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Empty(t, Names("no placeholders"))
}
