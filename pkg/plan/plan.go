// Package plan implements the Reconciliation Planner (§4.4): it turns a
// Manifest, a Cache and the Classifier's verdicts into an ordered
// ActionList the Executor can run without further decision-making.
package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotter/pkg/classify"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/logging"
	"github.com/arthur-debert/dotter/pkg/render"
	"github.com/arthur-debert/dotter/pkg/types"
)

// ActionKind enumerates the action vocabulary from §4.4.
type ActionKind int

const (
	CreateParentDir ActionKind = iota
	DeploySymlink
	DeployTemplate
	AdoptExisting
	UpdateTemplate
	RelinkSymbolic
	RemoveDeployed
	RemoveCreatedDir
	Skip
)

func (k ActionKind) String() string {
	switch k {
	case CreateParentDir:
		return "CreateParentDir"
	case DeploySymlink:
		return "DeploySymlink"
	case DeployTemplate:
		return "DeployTemplate"
	case AdoptExisting:
		return "AdoptExisting"
	case UpdateTemplate:
		return "UpdateTemplate"
	case RelinkSymbolic:
		return "RelinkSymbolic"
	case RemoveDeployed:
		return "RemoveDeployed"
	case RemoveCreatedDir:
		return "RemoveCreatedDir"
	case Skip:
		return "Skip"
	}
	return "Unknown"
}

// SkipReason names why a Skip action was emitted.
type SkipReason string

const (
	ReasonCollision     SkipReason = "collision"
	ReasonUserModified  SkipReason = "user_modified"
	ReasonDirNotRemoved SkipReason = "dir_not_removed"
)

// Action is one step of the plan. Which fields are populated depends on
// Kind; see the §4.4 action-kind list for the shape each one carries.
type Action struct {
	Kind   ActionKind
	Target string

	Entry      *types.FileEntry
	CacheEntry *types.CacheEntry

	NewBytes []byte
	OldBytes []byte
	NewDest  string
	OldDest  string

	Reason SkipReason
}

func (a Action) String() string {
	if a.Kind == Skip {
		return fmt.Sprintf("Skip(%s, %s)", a.Target, a.Reason)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Target)
}

// Options configures one planning pass.
type Options struct {
	DryRun                     bool
	Force                      bool
	AutoConfirmEmptyDirRemoval bool
	// ConfirmEmptyDirRemoval is consulted when AutoConfirmEmptyDirRemoval
	// is false; a nil func means "no interactive caller", i.e. never
	// consents.
	ConfirmEmptyDirRemoval func(path string) bool
}

// Planner builds an ActionList from a Manifest/Cache pair.
type Planner struct {
	FS         fsys.FS
	Classifier *classify.Classifier
	Logger     zerolog.Logger
}

// New builds a Planner.
func New(fs fsys.FS, classifier *classify.Classifier) *Planner {
	return &Planner{FS: fs, Classifier: classifier, Logger: logging.GetLogger("plan")}
}

// Plan runs the full reconciliation: expand directory-recursion entries,
// classify each target, map states to actions, then order the result per
// the four §4.4 ordering rules.
func (p *Planner) Plan(manifest *types.Manifest, cache *types.Cache, opts Options) ([]Action, error) {
	entries, err := p.expandEntries(manifest)
	if err != nil {
		return nil, err
	}

	var deployActions []Action
	parentDirs := map[string]bool{}

	sources := make([]string, 0, len(entries))
	for source := range entries {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	seenTargets := map[string]bool{}

	for _, source := range sources {
		entry := entries[source]
		seenTargets[entry.Target] = true

		var cacheEntry *types.CacheEntry
		if cache != nil {
			cacheEntry = cache.Entries[entry.Target]
		}

		result, err := p.Classifier.Classify(entry, cacheEntry, manifest.Variables)
		if err != nil {
			return nil, err
		}

		action, emit := mapStateToAction(entry, cacheEntry, result, opts.Force)
		if emit {
			deployActions = append(deployActions, action)
		}

		if action.Kind == DeploySymlink || action.Kind == DeployTemplate {
			parentDirs[filepath.Dir(entry.Target)] = true
		}
	}

	var removeActions []Action
	if cache != nil {
		targets := make([]string, 0, len(cache.Entries))
		for target := range cache.Entries {
			targets = append(targets, target)
		}
		sort.Strings(targets)

		for _, target := range targets {
			if seenTargets[target] {
				continue
			}
			removeActions = append(removeActions, Action{
				Kind:       RemoveDeployed,
				Target:     target,
				CacheEntry: cache.Entries[target],
			})
		}
	}

	dirActions := p.planParentDirs(parentDirs)
	removeDirActions := p.planCreatedDirRemovals(cache, removeActions, opts)

	return orderActions(dirActions, deployActions, removeActions, removeDirActions), nil
}

// expandEntries applies the directory-recursion rule: a directory Source
// in RecurseRules becomes one FileEntry per regular file beneath it,
// preserving relative layout; any other directory Source stays a single
// Symbolic entry.
func (p *Planner) expandEntries(manifest *types.Manifest) (map[string]*types.FileEntry, error) {
	out := make(map[string]*types.FileEntry, len(manifest.Files))

	for source, entry := range manifest.Files {
		if !manifest.RecurseRules[source] {
			out[source] = entry
			continue
		}

		md, err := p.FS.Metadata(source)
		if err != nil {
			return nil, err
		}
		if md.Kind != fsys.KindDir {
			out[source] = entry
			continue
		}

		rels, err := p.FS.WalkRegularFiles(source)
		if err != nil {
			return nil, err
		}
		sort.Strings(rels)

		for _, rel := range rels {
			childSource := filepath.Join(source, rel)
			childEntry := &types.FileEntry{
				Source: childSource,
				Target: filepath.Join(entry.Target, rel),
				Kind:   entry.Kind,
				Owner:  entry.Owner,
			}
			out[childSource] = childEntry
		}
	}

	resolved, err := p.resolveAutomaticKinds(out)
	if err != nil {
		return nil, err
	}
	return p.applySymlinkFallback(resolved)
}

// applySymlinkFallback consults the Filesystem Abstraction once per Plan
// call and, if it reports symlinks aren't usable in this environment,
// routes every Symbolic entry through classify.SymlinkFallback so it
// deploys as a Template copy instead of failing outright.
func (p *Planner) applySymlinkFallback(entries map[string]*types.FileEntry) (map[string]*types.FileEntry, error) {
	resolved, fellBack, err := classify.SymlinkFallback(p.FS, entries)
	if err != nil {
		return nil, err
	}
	if fellBack {
		p.Logger.Warn().Msg("symlinks are not supported in this environment; deploying symbolic entries as file copies")
	}
	return resolved, nil
}

// resolveAutomaticKinds sniffs every KindAutomatic entry's source bytes to
// decide Symbolic vs Template, per the supplemental automatic-detection
// feature; a directory source resolves to Symbolic without being read. It
// never mutates the Manifest's own FileEntry values.
func (p *Planner) resolveAutomaticKinds(entries map[string]*types.FileEntry) (map[string]*types.FileEntry, error) {
	for source, entry := range entries {
		if entry.Kind != types.KindAutomatic {
			continue
		}
		if md, mdErr := p.FS.Metadata(source); mdErr == nil && md.Kind == fsys.KindDir {
			resolved := *entry
			resolved.Kind = types.KindSymbolic
			entries[source] = &resolved
			continue
		}
		data, err := p.FS.ReadBytes(source)
		if err != nil {
			return nil, err
		}
		resolved := *entry
		resolved.Kind = render.DetectKind(data)
		entries[source] = &resolved
	}
	return entries, nil
}

// mapStateToAction returns the action for a classified entry, and whether
// it should be emitted at all — AlreadyCorrect with an unchanged owner is
// a genuine no-op per the §4.4 state→action table, not a Skip.
func mapStateToAction(entry *types.FileEntry, cacheEntry *types.CacheEntry, result classify.Result, force bool) (Action, bool) {
	deployKind := DeploySymlink
	if entry.Kind == types.KindTemplate {
		deployKind = DeployTemplate
	}

	switch result.State {
	case classify.New, classify.Vanished:
		return Action{Kind: deployKind, Target: entry.Target, Entry: entry, NewBytes: result.Expected, NewDest: string(result.Expected)}, true

	case classify.AlreadyCorrect:
		if ownerChanged(entry, cacheEntry) {
			return Action{Kind: AdoptExisting, Target: entry.Target, Entry: entry, NewBytes: result.Expected, NewDest: string(result.Expected)}, true
		}
		return Action{}, false

	case classify.AlreadyCorrectAdopt:
		return Action{Kind: AdoptExisting, Target: entry.Target, Entry: entry, NewBytes: result.Expected, NewDest: string(result.Expected)}, true

	case classify.Changed:
		if entry.Kind == types.KindTemplate {
			return Action{Kind: UpdateTemplate, Target: entry.Target, Entry: entry, NewBytes: result.Expected, OldBytes: result.Actual}, true
		}
		return Action{Kind: RelinkSymbolic, Target: entry.Target, Entry: entry, NewDest: string(result.Expected), OldDest: string(result.Actual)}, true

	case classify.Collision:
		if force {
			return Action{Kind: deployKind, Target: entry.Target, Entry: entry, NewBytes: result.Expected, NewDest: string(result.Expected)}, true
		}
		return Action{Kind: Skip, Target: entry.Target, Entry: entry, Reason: ReasonCollision}, true

	case classify.UserModified:
		if force {
			if entry.Kind == types.KindTemplate {
				return Action{Kind: UpdateTemplate, Target: entry.Target, Entry: entry, NewBytes: result.Expected, OldBytes: result.Actual}, true
			}
			return Action{Kind: RelinkSymbolic, Target: entry.Target, Entry: entry, NewDest: string(result.Expected), OldDest: string(result.Actual)}, true
		}
		return Action{Kind: Skip, Target: entry.Target, Entry: entry, Reason: ReasonUserModified}, true
	}

	return Action{Kind: Skip, Target: entry.Target, Entry: entry, Reason: "unknown_state"}, true
}

func ownerChanged(entry *types.FileEntry, cacheEntry *types.CacheEntry) bool {
	if cacheEntry == nil {
		return entry.Owner != nil
	}
	wantUser, wantGroup := "", ""
	if entry.Owner != nil {
		wantUser, wantGroup = entry.Owner.User, entry.Owner.Group
	}
	return cacheEntry.OwnerMarker != ownerMarker(wantUser, wantGroup)
}

func ownerMarker(user, group string) string {
	if user == "" && group == "" {
		return ""
	}
	return user + ":" + group
}

// planParentDirs emits one CreateParentDir per distinct directory that
// needs to exist before a deploy action can run, ordered parent-before-child
// via ordering rule 1.
func (p *Planner) planParentDirs(dirs map[string]bool) []Action {
	paths := make([]string, 0, len(dirs))
	for d := range dirs {
		paths = append(paths, d)
	}

	ordered := toposortDirs(paths)

	actions := make([]Action, 0, len(ordered))
	for _, d := range ordered {
		actions = append(actions, Action{Kind: CreateParentDir, Target: d})
	}
	return actions
}

// toposortDirs orders directories so that every ancestor directory
// precedes its descendants, using the same gammazero/toposort library the
// Executor's underlying operation pipeline already depends on.
func toposortDirs(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}

	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
		for anc := filepath.Dir(p); anc != "/" && anc != "." && anc != ""; anc = filepath.Dir(anc) {
			set[anc] = true
		}
	}

	all := make([]string, 0, len(set))
	for p := range set {
		all = append(all, p)
	}
	sort.Strings(all)

	var edges []toposort.Edge
	for _, p := range all {
		parent := filepath.Dir(p)
		if parent != p && set[parent] {
			edges = append(edges, toposort.Edge{parent, p})
		}
	}

	if len(edges) == 0 {
		// No edges: still produce a stable, depth-ascending order.
		sort.Slice(all, func(i, j int) bool { return depthOf(all[i]) < depthOf(all[j]) })
		return filterRequested(all, set, paths)
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		sort.Slice(all, func(i, j int) bool { return depthOf(all[i]) < depthOf(all[j]) })
		return filterRequested(all, set, paths)
	}

	ordered := make([]string, 0, len(sorted))
	for _, v := range sorted {
		ordered = append(ordered, v.(string))
	}
	return filterRequested(ordered, set, paths)
}

// filterRequested drops ancestor directories from the toposort result that
// were only added to establish ordering, keeping the caller's originally
// requested set, in the computed order.
func filterRequested(ordered []string, _ map[string]bool, requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, p := range requested {
		want[p] = true
	}
	out := make([]string, 0, len(requested))
	for _, p := range ordered {
		if want[p] {
			out = append(out, p)
		}
	}
	return out
}

func depthOf(path string) int {
	return strings.Count(filepath.Clean(path), string(filepath.Separator))
}

// planCreatedDirRemovals emits RemoveCreatedDir actions for every
// created_dirs entry whose file entries are all being removed, applying
// the emptiness-confirmation rule.
func (p *Planner) planCreatedDirRemovals(cache *types.Cache, removals []Action, opts Options) []Action {
	if cache == nil || len(cache.CreatedDirs) == 0 {
		return nil
	}

	removedTargets := make(map[string]bool, len(removals))
	for _, a := range removals {
		removedTargets[a.Target] = true
	}
	if len(removedTargets) == 0 {
		return nil
	}

	dirs := append([]string(nil), cache.CreatedDirs...)
	sort.Slice(dirs, func(i, j int) bool { return depthOf(dirs[i]) > depthOf(dirs[j]) }) // deepest first, rule 3

	var actions []Action
	for _, dir := range dirs {
		// A directory that still holds a kept cache entry is not empty
		// after this run's removals.
		kept := false
		prefix := dir + string(filepath.Separator)
		for target := range cache.Entries {
			if !removedTargets[target] && strings.HasPrefix(target, prefix) {
				kept = true
				break
			}
		}
		if kept {
			continue
		}
		consent := opts.AutoConfirmEmptyDirRemoval
		if !consent && opts.ConfirmEmptyDirRemoval != nil {
			consent = opts.ConfirmEmptyDirRemoval(dir)
		}
		if !consent {
			actions = append(actions, Action{Kind: Skip, Target: dir, Reason: ReasonDirNotRemoved})
			continue
		}
		actions = append(actions, Action{Kind: RemoveCreatedDir, Target: dir})
	}
	return actions
}

// orderActions applies ordering rules 1-4: dirs before deploys, removals
// before created-dir removal, created-dir removal deepest-first (already
// established by planCreatedDirRemovals), and target-path sort within
// each kind.
func orderActions(dirActions, deployActions, removeActions, removeDirActions []Action) []Action {
	sortByTarget(deployActions)
	sortByTarget(removeActions)

	out := make([]Action, 0, len(dirActions)+len(deployActions)+len(removeActions)+len(removeDirActions))
	out = append(out, dirActions...)
	out = append(out, deployActions...)
	out = append(out, removeActions...)
	out = append(out, removeDirActions...)
	return out
}

func sortByTarget(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Target < actions[j].Target })
}
