// Package fsys is the single seam between the core reconciliation
// components and the real filesystem. Every operation returns a structured
// outcome; none of them panic or return raw syscall errors to the caller
// without classification.
package fsys

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/arthur-debert/dotter/pkg/errors"
	"github.com/spf13/afero"
)

// ObjectKind identifies what metadata found at a path.
type ObjectKind int

const (
	KindMissing ObjectKind = iota
	KindRegular
	KindDir
	KindSymlink
	KindOther
)

// Metadata is the structured result of a Stat/Lstat call.
type Metadata struct {
	Kind  ObjectKind
	Mode  fs.FileMode
	Size  int64
	Owner string
	Group string
}

// EnsureDirResult reports whether EnsureDir actually created the directory.
type EnsureDirResult int

const (
	Created EnsureDirResult = iota
	AlreadyExisted
)

// RemoveDirResult reports whether RemoveDirIfEmpty actually removed the
// directory, so a caller can distinguish "gone" from "left alone because
// something else is in there" without parsing an error string.
type RemoveDirResult int

const (
	Removed RemoveDirResult = iota
	DirNotEmpty
)

// CompareResult is the outcome of a byte-level comparison.
type CompareResult int

const (
	Equal CompareResult = iota
	Differ
	Missing
)

// FS is the Filesystem Abstraction from §4.1. Implementations never throw:
// every failure is surfaced as a (zero-value, error) pair with a
// *errors.DirError of code ErrFilesystem, except where a missing path is a
// valid outcome (Metadata, CompareBytes) in which case it is reported in
// the returned value, not as an error.
type FS interface {
	ReadBytes(path string) ([]byte, error)
	WriteBytesAtomic(target string, data []byte, modeHint fs.FileMode) error
	ReadLink(path string) (string, error)
	MakeSymlink(target, linkDest string) error
	Unlink(path string) error
	Metadata(path string) (Metadata, error)
	EnsureDir(path string) (EnsureDirResult, error)
	RemoveDirIfEmpty(path string) (RemoveDirResult, error)
	SetOwner(path, user, group string) error
	CompareBytes(path string, want []byte) (CompareResult, error)
	NormalizeForCompare(path string) string
	// WalkRegularFiles lists every regular file under root, as paths
	// relative to root, for the Planner's directory-recursion expansion
	// (§4.4). Order is unspecified; callers sort if determinism matters.
	WalkRegularFiles(root string) ([]string, error)
	// SymlinksSupported probes whether the underlying filesystem can
	// create symlinks at all, by creating and removing a throwaway one,
	// mirroring the original implementation's symlinks_enabled probe.
	// Used by the no-symlink-permission fallback.
	SymlinksSupported() (bool, error)
}

// aferoFS is the production/testable implementation: afero.OsFs for real
// deployments, afero.MemMapFs for unit tests of the Classifier/Planner.
type aferoFS struct {
	fs afero.Fs
	// tmpCounter gives WriteBytesAtomic's temp files unique names without
	// pulling in a random source, which the surrounding instructions forbid
	// for determinism reasons anyway.
	tmpCounter uint64
}

// New wraps an afero.Fs as the Filesystem Abstraction.
func New(underlying afero.Fs) FS {
	return &aferoFS{fs: underlying}
}

// NewOS returns the Filesystem Abstraction backed by the real OS filesystem.
func NewOS() FS {
	return New(afero.NewOsFs())
}

func (a *aferoFS) ReadBytes(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "read %q", path)
	}
	return data, nil
}

func (a *aferoFS) WriteBytesAtomic(target string, data []byte, modeHint fs.FileMode) error {
	dir := filepath.Dir(target)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "create parent of %q", target)
	}

	n := atomic.AddUint64(&a.tmpCounter, 1)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.dotter-tmp.%d", filepath.Base(target), n))

	if err := afero.WriteFile(a.fs, tmp, data, modeHint); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "write temp file for %q", target)
	}
	if err := a.fs.Rename(tmp, target); err != nil {
		_ = a.fs.Remove(tmp)
		return errors.Wrapf(err, errors.ErrFilesystem, "rename temp file into %q", target)
	}
	return nil
}

func (a *aferoFS) ReadLink(path string) (string, error) {
	linker, ok := a.fs.(afero.LinkReader)
	if !ok {
		return "", errors.Newf(errors.ErrFilesystem, "underlying filesystem does not support reading links for %q", path)
	}
	dest, err := linker.ReadlinkIfPossible(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFilesystem, "read link %q", path)
	}
	return dest, nil
}

func (a *aferoFS) MakeSymlink(target, linkDest string) error {
	symlinker, ok := a.fs.(afero.Symlinker)
	if !ok {
		return errors.Newf(errors.ErrFilesystem, "underlying filesystem does not support symlinks, cannot link %q", target)
	}
	dir := filepath.Dir(target)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "create parent of %q", target)
	}
	_ = a.fs.Remove(target)
	if err := symlinker.SymlinkIfPossible(linkDest, target); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "symlink %q -> %q", target, linkDest)
	}
	return nil
}

// SymlinksSupported probes once rather than trusting the type assertion
// in MakeSymlink alone: afero.OsFs satisfies afero.Symlinker on every
// platform, but actually creating one can still fail on permission
// grounds (e.g. Windows without developer mode), which the original
// implementation's own probe exists to catch.
func (a *aferoFS) SymlinksSupported() (bool, error) {
	symlinker, ok := a.fs.(afero.Symlinker)
	if !ok {
		return false, nil
	}

	probe := filepath.Join(os.TempDir(), fmt.Sprintf(".dotter-symlink-probe-%d", os.Getpid()))
	_ = a.fs.Remove(probe)
	defer func() { _ = a.fs.Remove(probe) }()

	if err := symlinker.SymlinkIfPossible("dotter-symlink-probe-target", probe); err != nil {
		if os.IsPermission(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.ErrFilesystem, "probe symlink support at %q", probe)
	}
	return true, nil
}

func (a *aferoFS) Unlink(path string) error {
	if err := a.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrFilesystem, "unlink %q", path)
	}
	return nil
}

func (a *aferoFS) Metadata(path string) (Metadata, error) {
	var info fs.FileInfo
	var err error

	if lstater, ok := a.fs.(afero.Lstater); ok {
		info, _, err = lstater.LstatIfPossible(path)
	} else {
		info, err = a.fs.Stat(path)
	}

	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{Kind: KindMissing}, nil
		}
		return Metadata{}, errors.Wrapf(err, errors.ErrFilesystem, "stat %q", path)
	}

	md := Metadata{Mode: info.Mode(), Size: info.Size()}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		md.Kind = KindSymlink
	case info.IsDir():
		md.Kind = KindDir
	case info.Mode().IsRegular():
		md.Kind = KindRegular
	default:
		md.Kind = KindOther
	}

	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		md.Owner = strconv.FormatUint(uint64(sys.Uid), 10)
		md.Group = strconv.FormatUint(uint64(sys.Gid), 10)
	}

	return md, nil
}

func (a *aferoFS) EnsureDir(path string) (EnsureDirResult, error) {
	if info, err := a.fs.Stat(path); err == nil && info.IsDir() {
		return AlreadyExisted, nil
	}
	if err := a.fs.MkdirAll(path, 0o755); err != nil {
		return AlreadyExisted, errors.Wrapf(err, errors.ErrFilesystem, "create directory %q", path)
	}
	return Created, nil
}

func (a *aferoFS) RemoveDirIfEmpty(path string) (RemoveDirResult, error) {
	entries, err := afero.ReadDir(a.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Removed, nil
		}
		return DirNotEmpty, errors.Wrapf(err, errors.ErrFilesystem, "list %q", path)
	}
	if len(entries) > 0 {
		return DirNotEmpty, nil
	}
	if err := a.fs.Remove(path); err != nil {
		return DirNotEmpty, errors.Wrapf(err, errors.ErrFilesystem, "remove empty directory %q", path)
	}
	return Removed, nil
}

func (a *aferoFS) SetOwner(path, user, group string) error {
	chowner, ok := a.fs.(interface {
		Chown(name string, uid, gid int) error
	})
	if !ok {
		return nil
	}
	uid, gid, err := resolveOwner(user, group)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "resolve owner %s:%s", user, group)
	}
	if err := chowner.Chown(path, uid, gid); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "chown %q to %s:%s", path, user, group)
	}
	return nil
}

func (a *aferoFS) CompareBytes(path string, want []byte) (CompareResult, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, errors.Wrapf(err, errors.ErrFilesystem, "read %q for comparison", path)
	}
	if string(data) == string(want) {
		return Equal, nil
	}
	return Differ, nil
}

func (a *aferoFS) WalkRegularFiles(root string) ([]string, error) {
	var out []string
	err := afero.Walk(a.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "walk %q", root)
	}
	return out, nil
}

// NormalizeForCompare collapses a path to the form the Classifier should
// use for equality checks, per the §9 portability note. On POSIX hosts this
// is filepath.Clean; it is the single seam a future host family's
// short-path handling would hook into.
func (a *aferoFS) NormalizeForCompare(path string) string {
	return filepath.Clean(path)
}
