// Package classify implements the State Classifier (§4.3): given a
// FileEntry, its CacheEntry (if any) and an observation of the actual
// filesystem, it decides which of the seven reconciliation states applies.
package classify

import (
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/types"
)

// State is one cell of the §4.3 classification matrix.
type State int

const (
	New State = iota
	AlreadyCorrect
	AlreadyCorrectAdopt
	Collision
	Vanished
	Changed
	UserModified
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case AlreadyCorrect:
		return "AlreadyCorrect"
	case AlreadyCorrectAdopt:
		return "AlreadyCorrect-Adopt"
	case Collision:
		return "Collision"
	case Vanished:
		return "Vanished"
	case Changed:
		return "Changed"
	case UserModified:
		return "UserModified"
	}
	return "Unknown"
}

// Result is the Classifier's verdict for one target, carrying whatever the
// Planner needs to build the corresponding action without re-observing
// the filesystem.
type Result struct {
	State State
	// Expected is the rendered bytes (Template) or link destination
	// (Symbolic) the entry should have.
	Expected []byte
	// Actual is the observed bytes/link text, when relevant to a diff.
	Actual []byte
	// TargetExists reports whether anything at all occupies Target.
	TargetExists bool
}

// Classifier holds the collaborators needed to observe and render an entry.
type Classifier struct {
	FS       fsys.FS
	Renderer Renderer
}

// Renderer is the subset of render.Renderer the Classifier needs; kept as
// an interface here so classify can be unit-tested without pulling in the
// real template engine.
type Renderer interface {
	Render(templateBytes []byte, vars types.VariableContext) ([]byte, error)
}

// NewClassifier builds a Classifier.
func NewClassifier(fs fsys.FS, renderer Renderer) *Classifier {
	return &Classifier{FS: fs, Renderer: renderer}
}

// Classify implements the §4.3 matrix for a single FileEntry.
func (c *Classifier) Classify(entry *types.FileEntry, cache *types.CacheEntry, vars types.VariableContext) (Result, error) {
	switch entry.Kind {
	case types.KindTemplate:
		return c.classifyTemplate(entry, cache, vars)
	default:
		return c.classifySymbolic(entry, cache)
	}
}

func (c *Classifier) classifyTemplate(entry *types.FileEntry, cache *types.CacheEntry, vars types.VariableContext) (Result, error) {
	source, err := c.FS.ReadBytes(entry.Source)
	if err != nil {
		return Result{}, err
	}

	rendered, err := c.Renderer.Render(source, vars)
	if err != nil {
		return Result{}, err
	}
	rendered = applyAppendPrepend(entry, rendered)

	md, err := c.FS.Metadata(entry.Target)
	if err != nil {
		return Result{}, err
	}

	if md.Kind == fsys.KindMissing {
		if cache == nil {
			return Result{State: New, Expected: rendered}, nil
		}
		return Result{State: Vanished, Expected: rendered}, nil
	}

	if md.Kind != fsys.KindRegular {
		// A symlink or directory where a regular file was expected is
		// never a match; treat like "differs from everything".
		if cache == nil {
			return Result{State: Collision, Expected: rendered, TargetExists: true}, nil
		}
		return Result{State: UserModified, Expected: rendered, TargetExists: true}, nil
	}

	actual, err := c.FS.ReadBytes(entry.Target)
	if err != nil {
		return Result{}, err
	}

	matchesExpected := string(actual) == string(rendered)

	if cache == nil {
		if matchesExpected {
			return Result{State: AlreadyCorrectAdopt, Expected: rendered, Actual: actual, TargetExists: true}, nil
		}
		return Result{State: Collision, Expected: rendered, Actual: actual, TargetExists: true}, nil
	}

	matchesCache := cache.ContentHash != "" && cache.ContentHash == hashOf(actual)

	switch {
	case matchesExpected:
		return Result{State: AlreadyCorrect, Expected: rendered, Actual: actual, TargetExists: true}, nil
	case matchesCache:
		return Result{State: Changed, Expected: rendered, Actual: actual, TargetExists: true}, nil
	default:
		return Result{State: UserModified, Expected: rendered, Actual: actual, TargetExists: true}, nil
	}
}

func (c *Classifier) classifySymbolic(entry *types.FileEntry, cache *types.CacheEntry) (Result, error) {
	wantDest := entry.Source

	md, err := c.FS.Metadata(entry.Target)
	if err != nil {
		return Result{}, err
	}

	if md.Kind == fsys.KindMissing {
		if cache == nil {
			return Result{State: New, Expected: []byte(wantDest)}, nil
		}
		return Result{State: Vanished, Expected: []byte(wantDest)}, nil
	}

	if md.Kind != fsys.KindSymlink {
		// A regular file where a symlink was expected counts as differ,
		// per §4.3.
		if cache == nil {
			return Result{State: Collision, Expected: []byte(wantDest), TargetExists: true}, nil
		}
		return Result{State: UserModified, Expected: []byte(wantDest), TargetExists: true}, nil
	}

	actualDest, err := c.FS.ReadLink(entry.Target)
	if err != nil {
		return Result{}, err
	}

	matchesExpected := c.FS.NormalizeForCompare(actualDest) == c.FS.NormalizeForCompare(wantDest)

	if cache == nil {
		if matchesExpected {
			return Result{State: AlreadyCorrectAdopt, Expected: []byte(wantDest), Actual: []byte(actualDest), TargetExists: true}, nil
		}
		return Result{State: Collision, Expected: []byte(wantDest), Actual: []byte(actualDest), TargetExists: true}, nil
	}

	matchesCache := c.FS.NormalizeForCompare(cache.LinkDest) == c.FS.NormalizeForCompare(actualDest)

	switch {
	case matchesExpected:
		return Result{State: AlreadyCorrect, Expected: []byte(wantDest), Actual: []byte(actualDest), TargetExists: true}, nil
	case matchesCache:
		return Result{State: Changed, Expected: []byte(wantDest), Actual: []byte(actualDest), TargetExists: true}, nil
	default:
		return Result{State: UserModified, Expected: []byte(wantDest), Actual: []byte(actualDest), TargetExists: true}, nil
	}
}

// SymlinkFallback rewrites every Symbolic entry to Template when fs
// reports it cannot create symlinks in this environment — the
// no-symlink-permission fallback: deploy by copying the rendered source
// bytes instead of failing every single link. The probe runs once per
// call, since the capability is environment-wide, not per-entry; it
// never mutates the Manifest's own FileEntry values.
func SymlinkFallback(fs fsys.FS, entries map[string]*types.FileEntry) (map[string]*types.FileEntry, bool, error) {
	supported, err := fs.SymlinksSupported()
	if err != nil {
		return nil, false, err
	}
	if supported {
		return entries, false, nil
	}

	fellBack := false
	for source, entry := range entries {
		if entry.Kind != types.KindSymbolic {
			continue
		}
		resolved := *entry
		resolved.Kind = types.KindTemplate
		entries[source] = &resolved
		fellBack = true
	}
	return entries, fellBack, nil
}

func applyAppendPrepend(entry *types.FileEntry, rendered []byte) []byte {
	out := rendered
	if entry.Prepend != nil {
		out = append([]byte(*entry.Prepend), out...)
	}
	if entry.Append != nil {
		out = append(out, []byte(*entry.Append)...)
	}
	return out
}
