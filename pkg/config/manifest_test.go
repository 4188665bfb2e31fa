package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/types"
)

func writeFile(t *testing.T, f fsys.FS, path, contents string) {
	t.Helper()
	require.NoError(t, f.WriteBytesAtomic(path, []byte(contents), 0o644))
}

func TestLoadMergesSelectedPackageFiles(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())

	writeFile(t, f, "/global.toml", `
[helpers]
uppercase = "helpers/uppercase.sh"

[zsh]
files = { zshrc = "~/.zshrc" }
variables = { shell = "zsh" }

[vim]
files = { vimrc = { type = "template", target = "~/.vimrc" } }
`)
	writeFile(t, f, "/local.toml", `
packages = ["zsh"]
`)

	manifest, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml"})
	require.NoError(t, err)

	require.Contains(t, manifest.Files, "zshrc")
	assert.NotContains(t, manifest.Files, "vimrc")
	assert.Equal(t, "zsh", manifest.Variables["shell"])
	assert.Equal(t, "helpers/uppercase.sh", manifest.Helpers["uppercase"])
}

func TestLoadExpandsHomeTilde(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	writeFile(t, f, "/global.toml", `
[zsh]
files = { zshrc = "~/.zshrc" }
`)
	writeFile(t, f, "/local.toml", `packages = ["zsh"]`)

	manifest, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml"})
	require.NoError(t, err)

	entry := manifest.Files["zshrc"]
	require.NotNil(t, entry)
	assert.False(t, strings.HasPrefix(entry.Target, "~"))
	assert.True(t, strings.HasSuffix(entry.Target, "/.zshrc"))
}

func TestLoadLocalOverrideDisablesEntry(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	writeFile(t, f, "/global.toml", `
[zsh]
files = { zshrc = "~/.zshrc" }
`)
	writeFile(t, f, "/local.toml", `
packages = ["zsh"]
files = { zshrc = "disabled" }
`)

	manifest, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml"})
	require.NoError(t, err)
	assert.NotContains(t, manifest.Files, "zshrc")
}

func TestLoadDuplicateFileAcrossPackagesIsError(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	writeFile(t, f, "/global.toml", `
[zsh]
files = { shared = "~/.shared" }

[bash]
files = { shared = "~/.shared2" }
`)
	writeFile(t, f, "/local.toml", `packages = ["zsh", "bash"]`)

	_, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml"})
	require.Error(t, err)
}

func TestLoadPatchOverlayDisablesExistingEntry(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	writeFile(t, f, "/global.toml", `
[polybar]
files = { config = { type = "template", target = "~/.config/polybar/config" } }
`)
	writeFile(t, f, "/local.toml", `packages = ["polybar"]`)

	patch := strings.NewReader(`files = { config = "disabled" }`)

	manifest, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml", Patch: patch})
	require.NoError(t, err)
	assert.NotContains(t, manifest.Files, "config")
}

func TestLoadRecurseFlagPopulatesRecurseRules(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	writeFile(t, f, "/global.toml", `
[vim]
files = { vimdir = { type = "symbolic", target = "~/.vim", recurse = true } }
`)
	writeFile(t, f, "/local.toml", `packages = ["vim"]`)

	manifest, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml"})
	require.NoError(t, err)
	assert.True(t, manifest.RecurseRules["vimdir"])
}

func TestLoadIncludePatchesPackageBeforeSelection(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())
	writeFile(t, f, "/global.toml", `
[zsh]
files = {}
`)
	writeFile(t, f, "/extra.toml", `
[zsh]
files = { zshrc = "~/.zshrc" }
`)
	writeFile(t, f, "/local.toml", `
packages = ["zsh"]
includes = ["/extra.toml"]
`)

	manifest, err := Load(f, Options{GlobalConfigPath: "/global.toml", LocalConfigPath: "/local.toml"})
	require.NoError(t, err)
	assert.Contains(t, manifest.Files, "zshrc")
}

func TestLoadMissingFilesIsEmptyManifest(t *testing.T) {
	f := fsys.New(afero.NewMemMapFs())

	manifest, err := Load(f, Options{GlobalConfigPath: "/nope.toml", LocalConfigPath: "/also-nope.toml"})
	require.NoError(t, err)
	assert.Empty(t, manifest.Files)
	var _ *types.Manifest = manifest
}
