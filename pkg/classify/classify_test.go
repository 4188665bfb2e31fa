package classify

import (
	"testing"

	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityRenderer struct{}

func (identityRenderer) Render(templateBytes []byte, _ types.VariableContext) ([]byte, error) {
	return templateBytes, nil
}

func newTestClassifier() (*Classifier, fsys.FS) {
	f := fsys.New(afero.NewMemMapFs())
	return NewClassifier(f, identityRenderer{}), f
}

func TestClassifySymbolicNew(t *testing.T) {
	c, _ := newTestClassifier()
	entry := &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}

	result, err := c.Classify(entry, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, New, result.State)
}

// MemMapFs cannot hold symlinks, so the symlink-based cases run against a
// temp dir on the real filesystem.
func newOSTestClassifier(t *testing.T) (*Classifier, fsys.FS, string) {
	f := fsys.New(afero.NewOsFs())
	return NewClassifier(f, identityRenderer{}), f, t.TempDir()
}

func TestClassifySymbolicAlreadyCorrectAdopt(t *testing.T) {
	c, f, dir := newOSTestClassifier(t)
	entry := &types.FileEntry{Source: dir + "/repo/bashrc", Target: dir + "/home/u/.bashrc", Kind: types.KindSymbolic}

	require.NoError(t, f.MakeSymlink(entry.Target, entry.Source))

	result, err := c.Classify(entry, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, AlreadyCorrectAdopt, result.State)
}

func TestClassifySymbolicCollision(t *testing.T) {
	c, f := newTestClassifier()
	entry := &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}

	require.NoError(t, f.WriteBytesAtomic(entry.Target, []byte("not ours"), 0o644))

	result, err := c.Classify(entry, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Collision, result.State)
}

func TestClassifySymbolicVanished(t *testing.T) {
	c, _ := newTestClassifier()
	entry := &types.FileEntry{Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic}
	cache := &types.CacheEntry{Source: entry.Source, Target: entry.Target, Kind: types.KindSymbolic, LinkDest: entry.Source}

	result, err := c.Classify(entry, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, Vanished, result.State)
}

func TestClassifySymbolicUserModified(t *testing.T) {
	c, f, dir := newOSTestClassifier(t)
	entry := &types.FileEntry{Source: dir + "/repo/bashrc", Target: dir + "/home/u/.bashrc", Kind: types.KindSymbolic}
	cache := &types.CacheEntry{Source: entry.Source, Target: entry.Target, Kind: types.KindSymbolic, LinkDest: entry.Source}

	require.NoError(t, f.MakeSymlink(entry.Target, dir+"/repo/other"))

	result, err := c.Classify(entry, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, UserModified, result.State)
}

func TestClassifyTemplateMissingSourceIsError(t *testing.T) {
	c, _ := newTestClassifier()
	entry := &types.FileEntry{Source: "/repo/gone.tmpl", Target: "/home/u/.gone", Kind: types.KindTemplate}

	_, err := c.Classify(entry, nil, nil)
	require.Error(t, err)
}

func TestClassifyTemplateChanged(t *testing.T) {
	c, f := newTestClassifier()
	entry := &types.FileEntry{Source: "/repo/gitconfig.tmpl", Target: "/home/u/.gitconfig", Kind: types.KindTemplate}

	require.NoError(t, f.WriteBytesAtomic(entry.Source, []byte("[user]\nname=old"), 0o644))
	require.NoError(t, f.WriteBytesAtomic(entry.Target, []byte("[user]\nname=old"), 0o644))
	cache := &types.CacheEntry{Source: entry.Source, Target: entry.Target, Kind: types.KindTemplate, ContentHash: hashOf([]byte("[user]\nname=old"))}

	require.NoError(t, f.WriteBytesAtomic(entry.Source, []byte("[user]\nname=new"), 0o644))

	result, err := c.Classify(entry, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, Changed, result.State)
}

// noSymlinkFS overrides SymlinksSupported to simulate an environment
// (e.g. Windows without developer mode) where the underlying FS can
// create files but not symlinks.
type noSymlinkFS struct {
	fsys.FS
}

func (noSymlinkFS) SymlinksSupported() (bool, error) { return false, nil }

func TestSymlinkFallbackRewritesSymbolicToTemplate(t *testing.T) {
	f := noSymlinkFS{fsys.New(afero.NewMemMapFs())}
	entries := map[string]*types.FileEntry{
		"/repo/bashrc": {Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic},
		"/repo/config.tmpl": {Source: "/repo/config.tmpl", Target: "/home/u/.config", Kind: types.KindTemplate},
	}

	resolved, fellBack, err := SymlinkFallback(f, entries)
	require.NoError(t, err)
	assert.True(t, fellBack)
	assert.Equal(t, types.KindTemplate, resolved["/repo/bashrc"].Kind)
	assert.Equal(t, types.KindTemplate, resolved["/repo/config.tmpl"].Kind)
}

func TestSymlinkFallbackNoOpWhenSymlinksSupported(t *testing.T) {
	f := fsys.New(afero.NewOsFs())
	entries := map[string]*types.FileEntry{
		"/repo/bashrc": {Source: "/repo/bashrc", Target: "/home/u/.bashrc", Kind: types.KindSymbolic},
	}

	resolved, fellBack, err := SymlinkFallback(f, entries)
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Equal(t, types.KindSymbolic, resolved["/repo/bashrc"].Kind)
}
