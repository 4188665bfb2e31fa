package cache

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/types"
)

func newTestFS() fsys.FS {
	return fsys.New(afero.NewMemMapFs())
}

func TestLoadMissingFileReturnsEmptyCache(t *testing.T) {
	f := newTestFS()

	c, err := Load(f, "/home/u/.cache/dotter/cache.toml")
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
	assert.Empty(t, c.CreatedDirs)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	f := newTestFS()
	path := "/home/u/.cache/dotter/cache.toml"

	c := types.NewCache()
	c.Entries["/home/u/.bashrc"] = &types.CacheEntry{
		Source:   "/repo/bashrc",
		Target:   "/home/u/.bashrc",
		Kind:     types.KindSymbolic,
		LinkDest: "/repo/bashrc",
	}
	c.AddCreatedDir("/home/u/.config")

	require.NoError(t, Save(f, path, c))

	loaded, err := Load(f, path)
	require.NoError(t, err)
	require.Contains(t, loaded.Entries, "/home/u/.bashrc")
	assert.Equal(t, "/repo/bashrc", loaded.Entries["/home/u/.bashrc"].LinkDest)
	assert.Equal(t, []string{"/home/u/.config"}, loaded.CreatedDirs)
}

func TestLoadPreservesUnknownTopLevelKeys(t *testing.T) {
	f := newTestFS()
	path := "/home/u/.cache/dotter/cache.toml"

	require.NoError(t, f.WriteBytesAtomic(path, []byte("schema_version = 2\n\n[files]\n"), 0o644))

	c, err := Load(f, path)
	require.NoError(t, err)
	require.Contains(t, c.Extra, "schema_version")

	require.NoError(t, Save(f, path, c))

	data, err := f.ReadBytes(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema_version")
}
