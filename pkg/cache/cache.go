// Package cache loads and atomically persists the Cache (§6.2), preserving
// unrecognized top-level keys verbatim across a load/save round trip.
package cache

import (
	"errors"
	iofs "io/fs"

	"github.com/pelletier/go-toml/v2"

	direrrors "github.com/arthur-debert/dotter/pkg/errors"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/types"
)

// Load reads and parses the cache file at path. A missing file is not an
// error: it returns a fresh, empty Cache, mirroring the original
// implementation's load_file "Ok(None) on NotFound" contract.
func Load(fs fsys.FS, path string) (*types.Cache, error) {
	data, err := fs.ReadBytes(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return types.NewCache(), nil
		}
		return nil, direrrors.Wrapf(err, direrrors.ErrCachePersist, "read cache file %q", path)
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, direrrors.Wrapf(err, direrrors.ErrCachePersist, "parse cache file %q", path)
	}

	var c types.Cache
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, direrrors.Wrapf(err, direrrors.ErrCachePersist, "parse cache file %q", path)
	}
	if c.Entries == nil {
		c.Entries = make(map[string]*types.CacheEntry)
	}

	c.Extra = extraKeys(raw)
	return &c, nil
}

// knownKeys lists the top-level TOML keys the Cache struct itself owns;
// everything else round-trips through Extra untouched, per §6.2's schema
// rule.
var knownKeys = map[string]bool{
	"files":                 true,
	"symlinked_directories": true,
}

func extraKeys(raw map[string]interface{}) map[string]interface{} {
	extra := make(map[string]interface{})
	for k, v := range raw {
		if !knownKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// Save atomically overwrites the cache file at path with c, merging back
// any unrecognized top-level keys captured at Load time.
func Save(fs fsys.FS, path string, c *types.Cache) error {
	out := make(map[string]interface{}, len(c.Extra)+2)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["files"] = c.Entries
	out["symlinked_directories"] = c.CreatedDirs

	data, err := toml.Marshal(out)
	if err != nil {
		return direrrors.Wrapf(err, direrrors.ErrCachePersist, "serialize cache")
	}

	if err := fs.WriteBytesAtomic(path, data, 0o644); err != nil {
		return direrrors.Wrapf(err, direrrors.ErrCachePersist, "write cache file %q", path)
	}
	return nil
}
