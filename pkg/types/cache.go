package types

// CacheEntry records what the Executor last observed to be true on disk
// for one target, per the data model's I1 invariant.
type CacheEntry struct {
	Source string   `toml:"source"`
	Target string   `toml:"target"`
	Kind   FileKind `toml:"kind"`

	// ContentHash is set for Template entries: the hash of the rendered
	// bytes last written.
	ContentHash string `toml:"content_hash,omitempty"`
	// LinkDest is set for Symbolic entries: the literal link text last written.
	LinkDest string `toml:"link_dest,omitempty"`

	// OwnerMarker records the owner applied at last commit, or empty for
	// "inherited".
	OwnerMarker string `toml:"owner,omitempty"`
	// WasSymbolicActual records whether the on-disk object was actually a
	// symlink at last commit (it may differ from Kind under the
	// no-symlink-permission fallback).
	WasSymbolicActual bool `toml:"was_symbolic_actual"`
}

// Cache is the persisted record of the previous deployment, loaded at the
// start of an invocation and atomically overwritten at the end.
type Cache struct {
	// Entries is keyed by TargetPath.
	Entries map[string]*CacheEntry `toml:"files"`
	// CreatedDirs is an ordered set of directories dotter created, in the
	// order they were first created, so undeploy can attempt removal
	// deepest-first (§4.4 ordering rule 3).
	CreatedDirs []string `toml:"symlinked_directories"`

	// Extra preserves unrecognized top-level keys verbatim, per §6.2's
	// "unrecognized top-level keys are preserved verbatim" schema rule.
	Extra map[string]interface{} `toml:"-"`
}

// NewCache returns an empty Cache ready for a fresh deployment.
func NewCache() *Cache {
	return &Cache{
		Entries:     make(map[string]*CacheEntry),
		CreatedDirs: nil,
	}
}

// Clone returns a deep copy so the Executor can mutate a working copy while
// leaving the loaded cache available for diagnostics on failure.
func (c *Cache) Clone() *Cache {
	clone := &Cache{
		Entries:     make(map[string]*CacheEntry, len(c.Entries)),
		CreatedDirs: append([]string(nil), c.CreatedDirs...),
		Extra:       c.Extra,
	}
	for k, v := range c.Entries {
		entryCopy := *v
		clone.Entries[k] = &entryCopy
	}
	return clone
}

// AddCreatedDir records a newly-created directory, preserving I2: only call
// this when the directory did not pre-exist, and only once per directory.
func (c *Cache) AddCreatedDir(path string) {
	for _, existing := range c.CreatedDirs {
		if existing == path {
			return
		}
	}
	c.CreatedDirs = append(c.CreatedDirs, path)
}

// RemoveCreatedDir drops path from the tracked set, once the directory has
// actually been removed from disk.
func (c *Cache) RemoveCreatedDir(path string) {
	out := make([]string, 0, len(c.CreatedDirs))
	for _, existing := range c.CreatedDirs {
		if existing != path {
			out = append(out, existing)
		}
	}
	c.CreatedDirs = out
}
