package render

import (
	"testing"

	"github.com/arthur-debert/dotter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSimpleSubstitution(t *testing.T) {
	r := New()
	out, err := r.Render([]byte("export EDITOR={{.editor}}\n"), types.VariableContext{"editor": "vim"})
	require.NoError(t, err)
	assert.Equal(t, "export EDITOR=vim\n", string(out))
}

func TestRenderIsDeterministic(t *testing.T) {
	r := New()
	vars := types.VariableContext{"n": "1"}
	out1, err := r.Render([]byte("{{.n}}-{{math .n \"+\" \"1\"}}"), vars)
	require.NoError(t, err)
	out2, err := r.Render([]byte("{{.n}}-{{math .n \"+\" \"1\"}}"), vars)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.Equal(t, "1-2", string(out1))
}

func TestRenderMissingVariableIsError(t *testing.T) {
	r := New()
	_, err := r.Render([]byte("{{.nope}}"), types.VariableContext{})
	assert.Error(t, err)
}

func TestMathHelperArithmetic(t *testing.T) {
	cases := map[string]string{
		"5 + 5":       "10",
		"(2 + 3) * 4": "20",
		"10 / 4":      "2.5",
		"-3 + 1":      "-2",
	}
	for expr, want := range cases {
		got, err := mathHelper(expr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, types.KindTemplate, DetectKind([]byte("hello {{.name}}")))
	assert.Equal(t, types.KindSymbolic, DetectKind([]byte("plain text, no markers")))
	assert.Equal(t, types.KindSymbolic, DetectKind([]byte{0xff, 0xfe, 0x00}))
}
