// Package types holds the data model shared by the Classifier, Planner and
// Executor: the desired deployment manifest, the on-disk cache, and the
// primitives (FileEntry, VariableContext) that describe one deployed file.
package types

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/dotter/pkg/errors"
)

// FileKind distinguishes the two ways a FileEntry can be materialized.
type FileKind string

const (
	// KindSymbolic realizes the entry as a symbolic link from target to source.
	KindSymbolic FileKind = "symlink"
	// KindTemplate realizes the entry by rendering source through the
	// Template Renderer and writing the result to target.
	KindTemplate FileKind = "template"
	// KindAutomatic defers the Symbolic/Template choice to render.DetectKind
	// (the supplemental automatic-template-detection feature).
	KindAutomatic FileKind = "automatic"
)

// Owner is a best-effort post-write chown target; a nil Owner means
// "inherit", per FileEntry's owner semantics in the data model.
type Owner struct {
	User  string
	Group string
}

// FileEntry is one deployed file, as constructed by the external manifest
// loader and consumed read-only by the Planner and Executor.
type FileEntry struct {
	// Source is an absolute path: the loader resolves the configured
	// repository-relative path against the repository root.
	Source string
	// Target is an absolute path on the host.
	Target string
	Kind   FileKind
	Owner  *Owner

	// Append and Prepend are applied to rendered Template bytes before the
	// byte-equality check and before writing (supplemental feature, ported
	// from the original implementation's TemplateTarget).
	Append  *string
	Prepend *string
}

// VariableContext is a nested mapping from identifier to value; value
// domain is primitives, arrays, or nested maps, per the data model.
type VariableContext map[string]interface{}

// Merge deep-merges other into a copy of v, with other's values winning on
// conflict — the "later package overrides winning" merge law of §6.1.
func (v VariableContext) Merge(other VariableContext) VariableContext {
	result := make(VariableContext, len(v))
	for k, val := range v {
		result[k] = val
	}
	for k, val := range other {
		if existing, ok := result[k]; ok {
			if existingMap, ok1 := existing.(VariableContext); ok1 {
				if valMap, ok2 := val.(VariableContext); ok2 {
					result[k] = existingMap.Merge(valMap)
					continue
				}
			}
			if existingMap, ok1 := existing.(map[string]interface{}); ok1 {
				if valMap, ok2 := val.(map[string]interface{}); ok2 {
					result[k] = VariableContext(existingMap).Merge(VariableContext(valMap))
					continue
				}
			}
		}
		result[k] = val
	}
	return result
}

const disabledSentinel = "disabled"

// IsDisabled reports whether a FileEntry's target was overridden to the
// "disabled" sentinel, meaning it should be elided from the merged manifest
// per §6.1's "local overrides win" law.
func IsDisabled(target string) bool {
	return target == disabledSentinel
}

// Manifest is the fully-merged, immutable deployment plan the core
// consumes for the duration of one invocation.
type Manifest struct {
	// Files is keyed by SourcePath.
	Files map[string]*FileEntry
	// Variables is the deep-merged union of every selected package's
	// variables, after local/patch overrides.
	Variables VariableContext
	// Helpers maps a user-supplied helper name to the SourcePath of its script.
	Helpers map[string]string
	// RecurseRules is the set of SourcePaths whose directory sources should
	// be expanded into one FileEntry per regular file underneath (§4.4).
	RecurseRules map[string]bool
	// RepoRoot is the absolute path to the source repository root, used by
	// invariant I5.
	RepoRoot string
}

// NewManifest returns an empty, ready-to-populate Manifest.
func NewManifest(repoRoot string) *Manifest {
	return &Manifest{
		Files:        make(map[string]*FileEntry),
		Variables:    make(VariableContext),
		Helpers:      make(map[string]string),
		RecurseRules: make(map[string]bool),
		RepoRoot:     repoRoot,
	}
}

// Validate checks invariants I3, I4 and I5 against the current file set.
// It is meant to run once, before any mutation, per §7's ConfigurationError.
func (m *Manifest) Validate(isDir func(source string) (bool, error)) error {
	targets := make(map[string]string, len(m.Files))

	sources := make([]string, 0, len(m.Files))
	for source := range m.Files {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		entry := m.Files[source]

		// I3: no two FileEntry share a target.
		if owner, exists := targets[entry.Target]; exists {
			return errors.Newf(errors.ErrConfiguration,
				"target %q is claimed by both %q and %q", entry.Target, owner, source)
		}
		targets[entry.Target] = source

		// I4: a Template source must be a regular file.
		if entry.Kind == KindTemplate && isDir != nil {
			dir, err := isDir(entry.Source)
			if err != nil {
				return errors.Wrapf(err, errors.ErrConfiguration, "stat source %q", entry.Source)
			}
			if dir {
				return errors.Newf(errors.ErrConfiguration,
					"template source %q must be a regular file, not a directory", entry.Source)
			}
		}

		// I5: target must not be an ancestor of the repo root, and must not
		// equal a source path (checked lexically).
		if m.RepoRoot != "" && isAncestor(entry.Target, m.RepoRoot) {
			return errors.Newf(errors.ErrConfiguration,
				"target %q is an ancestor of the repository root %q", entry.Target, m.RepoRoot)
		}
		if entry.Target == entry.Source {
			return errors.Newf(errors.ErrConfiguration,
				"target %q must not equal its own source path", entry.Target)
		}
	}

	return nil
}

func isAncestor(candidateAncestor, path string) bool {
	if candidateAncestor == path {
		return true
	}
	prefix := candidateAncestor
	if len(prefix) > 0 && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix
}

// String renders a FileEntry for logs and diagnostics.
func (f *FileEntry) String() string {
	return fmt.Sprintf("%s(%s -> %s)", f.Kind, f.Source, f.Target)
}
