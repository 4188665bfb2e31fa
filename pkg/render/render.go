// Package render implements the Template Renderer (§4.2): a deterministic
// byte-to-byte transform from a template and a VariableContext to rendered
// output, with a small helper registry injected at construction time.
package render

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/arthur-debert/dotter/pkg/errors"
	"github.com/arthur-debert/dotter/pkg/types"
)

// Renderer renders template bytes against a VariableContext using a fixed
// helper registry. One Renderer is built per invocation and reused for
// every template FileEntry, so helper registration happens exactly once.
type Renderer struct {
	helpers template.FuncMap
}

// Option configures a Renderer at construction time.
type Option func(*Renderer)

// New builds a Renderer with the built-in helpers (math, hostname,
// is_executable, command_success, command_output) plus any user-supplied
// helper scripts registered via WithScriptHelper.
func New(opts ...Option) *Renderer {
	r := &Renderer{helpers: template.FuncMap{}}
	registerBuiltins(r.helpers)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithScriptHelper registers a user-supplied helper, identified by the
// path to an executable script: at render time the helper shells out to
// scriptPath with its arguments and returns trimmed stdout.
func WithScriptHelper(name, scriptPath string) Option {
	return func(r *Renderer) {
		r.helpers[name] = func(args ...string) (string, error) {
			cmd := exec.Command(scriptPath, args...)
			out, err := cmd.Output()
			if err != nil {
				return "", fmt.Errorf("helper script %s: %w", name, err)
			}
			return strings.TrimRight(string(out), "\n"), nil
		}
	}
}

func registerBuiltins(funcs template.FuncMap) {
	funcs["math"] = mathHelper
	funcs["hostname"] = hostnameHelper
	funcs["is_executable"] = isExecutableHelper
	funcs["command_success"] = commandSuccessHelper
	funcs["command_output"] = commandOutputHelper
}

// mathHelper evaluates an arithmetic expression over its joined arguments,
// e.g. {{math "5" "+" "5"}}, grounded on the original implementation's
// evalexpr-backed `math` helper semantics (+, -, *, /, parens, float
// results). No expression-evaluation library appears anywhere in the
// retrieved corpus, so this stays a small hand-rolled recursive-descent
// evaluator rather than an invented dependency.
func mathHelper(parts ...string) (string, error) {
	expr := strings.Join(parts, " ")
	result, err := evalArithmetic(expr)
	if err != nil {
		return "", fmt.Errorf("math: %q: %w", expr, err)
	}
	return formatNumber(result), nil
}

// hostnameHelper is bound at invocation time rather than at registration
// time, so a long-running `watch` process reflects hostname changes.
func hostnameHelper() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}
	return name, nil
}

func isExecutableHelper(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func commandSuccessHelper(command string) bool {
	cmd := exec.Command("sh", "-c", command)
	return cmd.Run() == nil
}

func commandOutputHelper(command string) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("command_output: %w", err)
	}
	return string(out), nil
}

// DetectKind sniffs sourceBytes for a literal "{{" to decide whether a
// KindAutomatic FileEntry should be treated as a template or a plain
// symlink target. Non-UTF-8 content is treated as non-template, mirroring
// the original implementation's is_template fallback.
func DetectKind(sourceBytes []byte) types.FileKind {
	if !isValidUTF8(sourceBytes) {
		return types.KindSymbolic
	}
	if bytes.Contains(sourceBytes, []byte("{{")) {
		return types.KindTemplate
	}
	return types.KindSymbolic
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// Render parses and executes templateBytes against vars, returning the
// rendered bytes or a RenderError. Determinism: for identical
// templateBytes/vars/helper-set, output is byte-identical — the only
// nondeterministic helpers (hostname, command_output) are the caller's
// choice to invoke, per §4.2.
func (r *Renderer) Render(templateBytes []byte, vars types.VariableContext) ([]byte, error) {
	tmpl, err := template.New("dotter").Option("missingkey=error").Funcs(r.helpers).Parse(string(templateBytes))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrRender, "parse template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]interface{}(vars)); err != nil {
		return nil, errors.Wrapf(err, errors.ErrRender, "execute template")
	}

	return buf.Bytes(), nil
}
