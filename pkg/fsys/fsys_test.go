package fsys

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBytesAtomicThenReadBack(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := New(mem)

	err := f.WriteBytesAtomic("/home/u/.bashrc", []byte("export PATH=x"), 0o644)
	require.NoError(t, err)

	data, err := f.ReadBytes("/home/u/.bashrc")
	require.NoError(t, err)
	assert.Equal(t, "export PATH=x", string(data))

	entries, err := afero.ReadDir(mem, "/home/u")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file after atomic write")
}

func TestCompareBytes(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := New(mem)

	result, err := f.CompareBytes("/home/u/.zshrc", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, Missing, result)

	require.NoError(t, f.WriteBytesAtomic("/home/u/.zshrc", []byte("x"), 0o644))

	result, err = f.CompareBytes("/home/u/.zshrc", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, Equal, result)

	result, err = f.CompareBytes("/home/u/.zshrc", []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, Differ, result)
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := New(mem)

	result, err := f.EnsureDir("/home/u/.config/app")
	require.NoError(t, err)
	assert.Equal(t, Created, result)

	result, err = f.EnsureDir("/home/u/.config/app")
	require.NoError(t, err)
	assert.Equal(t, AlreadyExisted, result)
}

func TestRemoveDirIfEmptyRefusesNonEmpty(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := New(mem)

	require.NoError(t, mem.MkdirAll("/home/u/.cfg", 0o755))
	require.NoError(t, f.WriteBytesAtomic("/home/u/.cfg/b", []byte("mine"), 0o644))

	result, err := f.RemoveDirIfEmpty("/home/u/.cfg")
	require.NoError(t, err)
	assert.Equal(t, DirNotEmpty, result)

	require.NoError(t, f.Unlink("/home/u/.cfg/b"))
	result, err = f.RemoveDirIfEmpty("/home/u/.cfg")
	require.NoError(t, err)
	assert.Equal(t, Removed, result)
}

func TestMetadataReportsMissing(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := New(mem)

	md, err := f.Metadata("/nope")
	require.NoError(t, err)
	assert.Equal(t, KindMissing, md.Kind)
}

func TestSymlinkRoundTripOnOsFs(t *testing.T) {
	dir := t.TempDir()
	f := New(afero.NewOsFs())

	src := dir + "/source"
	link := dir + "/link"
	require.NoError(t, os.WriteFile(src, []byte("hi"), 0o644))

	require.NoError(t, f.MakeSymlink(link, src))

	dest, err := f.ReadLink(link)
	require.NoError(t, err)
	assert.Equal(t, src, dest)

	md, err := f.Metadata(link)
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, md.Kind)
}

func TestSymlinksSupportedOnOsFs(t *testing.T) {
	f := New(afero.NewOsFs())

	supported, err := f.SymlinksSupported()
	require.NoError(t, err)
	assert.True(t, supported)
}

// fsWithoutSymlinkSupport wraps an afero.Fs without re-exporting
// SymlinkIfPossible, so it never satisfies afero.Symlinker regardless of
// what the embedded Fs itself supports — used to exercise the
// no-symlink-permission fallback path deterministically.
type fsWithoutSymlinkSupport struct {
	afero.Fs
}

func TestSymlinksSupportedFalseWhenUnderlyingFsLacksSymlinker(t *testing.T) {
	f := New(fsWithoutSymlinkSupport{afero.NewMemMapFs()})

	supported, err := f.SymlinksSupported()
	require.NoError(t, err)
	assert.False(t, supported)
}
