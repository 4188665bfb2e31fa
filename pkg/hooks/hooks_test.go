package hooks

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/render"
	"github.com/arthur-debert/dotter/pkg/types"
)

func TestRunMissingHookIsNoop(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	r := New(f, render.New(), map[Name]string{}, "/")

	require.NoError(t, r.Run(PreDeploy, nil))
}

func TestRunRendersAndExecutesScript(t *testing.T) {
	f := fsys.New(afero.NewOsFs())
	dir := t.TempDir()
	scriptPath := dir + "/pre_deploy.sh"
	outPath := dir + "/out.txt"

	require.NoError(t, f.WriteBytesAtomic(scriptPath, []byte("echo {{.msg}} > "+outPath), 0o755))

	r := New(f, render.New(), map[Name]string{PreDeploy: scriptPath}, dir)
	err := r.Run(PreDeploy, types.VariableContext{"msg": "hello"})
	require.NoError(t, err)

	data, err := f.ReadBytes(outPath)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRunFailingScriptReturnsHookError(t *testing.T) {
	f := fsys.New(afero.NewOsFs())
	dir := t.TempDir()
	scriptPath := dir + "/post_deploy.sh"
	require.NoError(t, f.WriteBytesAtomic(scriptPath, []byte("exit 7"), 0o755))

	r := New(f, render.New(), map[Name]string{PostDeploy: scriptPath}, dir)
	err := r.Run(PostDeploy, nil)
	require.Error(t, err)
}
