package plan

import (
	"testing"

	"github.com/arthur-debert/dotter/pkg/classify"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityRenderer struct{}

func (identityRenderer) Render(b []byte, _ types.VariableContext) ([]byte, error) { return b, nil }

// symlinkCapableFS reports symlink support over a MemMapFs (which cannot
// hold real symlinks), so the Planner's no-symlink fallback stays off and
// Symbolic entries plan as DeploySymlink.
type symlinkCapableFS struct {
	fsys.FS
}

func (symlinkCapableFS) SymlinksSupported() (bool, error) { return true, nil }

func newTestPlanner() (*Planner, fsys.FS) {
	f := symlinkCapableFS{fsys.New(afero.NewMemMapFs())}
	c := classify.NewClassifier(f, identityRenderer{})
	return New(f, c), f
}

func TestPlanInitialDeployOrdersParentDirsBeforeDeploys(t *testing.T) {
	p, _ := newTestPlanner()

	manifest := types.NewManifest("/repo")
	manifest.Files["/repo/bashrc"] = &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}

	actions, err := p.Plan(manifest, types.NewCache(), Options{})
	require.NoError(t, err)

	require.Len(t, actions, 2)
	assert.Equal(t, CreateParentDir, actions[0].Kind)
	assert.Equal(t, "/home/u", actions[0].Target)
	assert.Equal(t, DeploySymlink, actions[1].Kind)
	assert.Equal(t, "/home/u/.bashrc", actions[1].Target)
}

func TestPlanCollisionSkippedWithoutForce(t *testing.T) {
	p, f := newTestPlanner()

	manifest := types.NewManifest("/repo")
	manifest.Files["/repo/bashrc"] = &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}
	require.NoError(t, f.WriteBytesAtomic("/home/u/.bashrc", []byte("not ours"), 0o644))

	actions, err := p.Plan(manifest, types.NewCache(), Options{})
	require.NoError(t, err)

	require.Len(t, actions, 1)
	assert.Equal(t, Skip, actions[0].Kind)
	assert.Equal(t, ReasonCollision, actions[0].Reason)
}

func TestPlanCollisionOverwrittenWithForce(t *testing.T) {
	p, f := newTestPlanner()

	manifest := types.NewManifest("/repo")
	manifest.Files["/repo/bashrc"] = &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}
	require.NoError(t, f.WriteBytesAtomic("/home/u/.bashrc", []byte("not ours"), 0o644))

	actions, err := p.Plan(manifest, types.NewCache(), Options{Force: true})
	require.NoError(t, err)

	var kinds []ActionKind
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, DeploySymlink)
}

func TestPlanRemovesEntriesDroppedFromManifest(t *testing.T) {
	p, _ := newTestPlanner()

	manifest := types.NewManifest("/repo")
	cache := types.NewCache()
	cache.Entries["/home/u/.vimrc"] = &types.CacheEntry{Source: "/repo/vimrc", Target: "/home/u/.vimrc", Kind: types.KindSymbolic, LinkDest: "/repo/vimrc"}

	actions, err := p.Plan(manifest, cache, Options{})
	require.NoError(t, err)

	require.Len(t, actions, 1)
	assert.Equal(t, RemoveDeployed, actions[0].Kind)
	assert.Equal(t, "/home/u/.vimrc", actions[0].Target)
}

func TestPlanEmptyDirRemovalRequiresConsent(t *testing.T) {
	p, _ := newTestPlanner()

	manifest := types.NewManifest("/repo")
	cache := types.NewCache()
	cache.Entries["/home/u/.cfg/a"] = &types.CacheEntry{Source: "/repo/a", Target: "/home/u/.cfg/a", Kind: types.KindSymbolic, LinkDest: "/repo/a"}
	cache.AddCreatedDir("/home/u/.cfg")

	actions, err := p.Plan(manifest, cache, Options{})
	require.NoError(t, err)

	var sawSkip bool
	for _, a := range actions {
		if a.Kind == Skip && a.Reason == ReasonDirNotRemoved {
			sawSkip = true
		}
		assert.NotEqual(t, RemoveCreatedDir, a.Kind)
	}
	assert.True(t, sawSkip)

	actions, err = p.Plan(manifest, cache, Options{AutoConfirmEmptyDirRemoval: true})
	require.NoError(t, err)
	var sawRemove bool
	for _, a := range actions {
		if a.Kind == RemoveCreatedDir {
			sawRemove = true
		}
	}
	assert.True(t, sawRemove)
}

// noSymlinkFS overrides SymlinksSupported to simulate an environment
// that can't create symlinks at all, so Plan must fall back to
// deploying Symbolic entries as Template copies.
type noSymlinkFS struct {
	fsys.FS
}

func (noSymlinkFS) SymlinksSupported() (bool, error) { return false, nil }

func TestPlanFallsBackToTemplateWhenSymlinksUnsupported(t *testing.T) {
	f := noSymlinkFS{fsys.New(afero.NewMemMapFs())}
	c := classify.NewClassifier(f, identityRenderer{})
	p := New(f, c)

	manifest := types.NewManifest("/repo")
	manifest.Files["/repo/bashrc"] = &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}
	// As a Template, the entry's source is read and rendered, so it must exist.
	require.NoError(t, f.WriteBytesAtomic("/repo/bashrc", []byte("export X=1"), 0o644))

	actions, err := p.Plan(manifest, types.NewCache(), Options{})
	require.NoError(t, err)

	require.Len(t, actions, 2)
	assert.Equal(t, CreateParentDir, actions[0].Kind)
	assert.Equal(t, DeployTemplate, actions[1].Kind)
	assert.Equal(t, "/home/u/.bashrc", actions[1].Target)
}
