// Package exec implements the Action Executor (§4.5): it runs a Planner
// ActionList sequentially, committing the in-memory cache after each
// successful action, and returns the final cache for the caller to persist.
package exec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	synthfs "github.com/arthur-debert/synthfs/pkg/synthfs"
	"github.com/arthur-debert/synthfs/pkg/synthfs/core"
	synthfsfs "github.com/arthur-debert/synthfs/pkg/synthfs/filesystem"
	"github.com/arthur-debert/synthfs/pkg/synthfs/operations"

	"github.com/arthur-debert/dotter/pkg/errors"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/hooks"
	"github.com/arthur-debert/dotter/pkg/logging"
	"github.com/arthur-debert/dotter/pkg/plan"
	"github.com/arthur-debert/dotter/pkg/types"
)

// Executor runs a plan against the real (or test) filesystem.
type Executor struct {
	FS     fsys.FS
	Synth  synthfs.FileSystem
	Hooks  *hooks.Runner
	Logger zerolog.Logger

	// DiffContext is the unified-diff context window, default 3 per §4.5.
	DiffContext int
	// Verbosity gates whether diffs are emitted at all (verbosity >= 1).
	Verbosity int
}

// New builds an Executor rooted at root for synthfs's OS-backed mutations.
func New(fs fsys.FS, root string) *Executor {
	return &Executor{
		FS:          fs,
		Synth:       synthfsfs.NewOSFileSystem(root),
		Logger:      logging.GetLogger("exec"),
		DiffContext: 3,
	}
}

// Run executes actions in order, mutating a clone of cache and returning
// it alongside the aggregated diagnostic for any per-action failures.
// DryRun suppresses all mutation: actions and diffs are logged but never
// committed, and the returned cache is the unmodified input.
func (e *Executor) Run(ctx context.Context, actions []plan.Action, cache *types.Cache, dryRun bool, hookVars types.VariableContext) (*types.Cache, error) {
	return e.run(ctx, actions, cache, dryRun, hookVars, hooks.PreDeploy, hooks.PostDeploy)
}

// RunUndeploy is Run with the undeploy hook pair; the action list itself
// (an empty-manifest plan) is what makes an invocation an undeploy, not
// any difference in how actions are executed or cached.
func (e *Executor) RunUndeploy(ctx context.Context, actions []plan.Action, cache *types.Cache, dryRun bool, hookVars types.VariableContext) (*types.Cache, error) {
	return e.run(ctx, actions, cache, dryRun, hookVars, hooks.PreUndeploy, hooks.PostUndeploy)
}

func (e *Executor) run(ctx context.Context, actions []plan.Action, cache *types.Cache, dryRun bool, hookVars types.VariableContext, preHook, postHook hooks.Name) (*types.Cache, error) {
	defer logging.LogOperationStart(e.Logger, string(preHook))()

	diag := &errors.MultiError{}
	working := cache.Clone()

	if dryRun {
		for _, action := range actions {
			e.logIntent(action)
		}
		return cache, diag.ErrOrNil()
	}

	if e.Hooks != nil && hasMutation(actions) {
		if err := e.Hooks.Run(preHook, hookVars); err != nil {
			diag.Add(err)
		}
	}

	failedDirs := map[string]bool{}

	for _, action := range actions {
		if action.Kind == plan.CreateParentDir {
			created, err := e.execute(ctx, action)
			if err != nil {
				diag.Add(err)
				failedDirs[action.Target] = true
				continue
			}
			if created {
				working.AddCreatedDir(action.Target)
			}
			continue
		}

		if action.Entry != nil && failedDirs[filepath.Dir(action.Target)] {
			diag.Add(errors.Newf(errors.ErrFilesystem, "skipping %q: parent directory was not created", action.Target))
			continue
		}

		effected, err := e.execute(ctx, action)
		if err != nil {
			diag.Add(err)
			continue
		}

		if action.Kind == plan.RemoveCreatedDir && !effected {
			e.Logger.Info().Str("target", action.Target).Str("reason", string(plan.ReasonDirNotRemoved)).Msg("skipped")
			continue
		}

		e.commitCache(working, action)
	}

	if e.Hooks != nil && hasMutation(actions) {
		if err := e.Hooks.Run(postHook, hookVars); err != nil {
			diag.Add(err)
		}
	}

	return working, diag.ErrOrNil()
}

func hasMutation(actions []plan.Action) bool {
	for _, a := range actions {
		if a.Kind != plan.Skip {
			return true
		}
	}
	return false
}

// execute runs one action's filesystem effect. Diff emission happens
// before mutation so the log reflects what's about to change. The bool
// result is only meaningful for CreateParentDir (false when the directory
// already existed, per I2) and RemoveCreatedDir (false when the directory
// turned out non-empty, which run() must treat as a silent
// Skip(dir_not_removed) rather than touching the cache); every other kind
// returns false and run() does not read it.
func (e *Executor) execute(ctx context.Context, action plan.Action) (bool, error) {
	if e.Verbosity >= 1 {
		e.emitDiff(action)
	}

	switch action.Kind {
	case plan.CreateParentDir:
		result, err := e.FS.EnsureDir(action.Target)
		return result == fsys.Created, err

	case plan.AdoptExisting:
		// Cache-only: the target already holds the expected content.
		return false, nil

	case plan.DeploySymlink:
		if action.Entry != nil && action.Entry.Kind == types.KindSymbolic {
			return false, e.runSynthOp(ctx, e.symlinkOp(action.Target, action.NewDest))
		}
		return false, e.runWriteFile(action.Target, action.NewBytes)

	case plan.DeployTemplate:
		return false, e.runWriteFile(action.Target, action.NewBytes)

	case plan.UpdateTemplate:
		return false, e.runWriteFile(action.Target, action.NewBytes)

	case plan.RelinkSymbolic:
		_ = e.FS.Unlink(action.Target)
		return false, e.runSynthOp(ctx, e.symlinkOp(action.Target, action.NewDest))

	case plan.RemoveDeployed:
		return false, e.runSynthOp(ctx, e.deleteOp(action.Target))

	case plan.RemoveCreatedDir:
		result, err := e.FS.RemoveDirIfEmpty(action.Target)
		return result == fsys.Removed, err

	case plan.Skip:
		e.Logger.Info().Str("target", action.Target).Str("reason", string(action.Reason)).Msg("skipped")
		return false, skipError(action)
	}

	return false, errors.Newf(errors.ErrFilesystem, "unsupported action kind %s", action.Kind)
}

// skipError reports a Skip as a non-fatal per-entry diagnostic for the
// two reasons §7 names as error kinds (CollisionError/UserModifiedError)
// so the end-of-run diagnostic — and the process exit code — reflects
// them, per §7's propagation rule and scenario 3. ReasonDirNotRemoved
// is the expected outcome of scenario 4, not a per-entry error, so it
// stays silent.
func skipError(action plan.Action) error {
	switch action.Reason {
	case plan.ReasonCollision:
		return errors.Newf(errors.ErrCollision, "skipped %q: existing content differs from both cache and desired state", action.Target)
	case plan.ReasonUserModified:
		return errors.Newf(errors.ErrUserModified, "skipped %q: deployed content was modified outside Dotter", action.Target)
	default:
		return nil
	}
}

// runWriteFile goes through fsys's atomic write rather than a synthfs
// CreateFileOperation: §4.1's write-tmp-then-rename guarantee is the FS
// abstraction's contract, and AdoptExisting never touches the file at all
// when it's a template (cache-only), so routing through fsys keeps both
// cases correct without duplicating the atomicity logic in synthfs.
func (e *Executor) runWriteFile(target string, data []byte) error {
	return e.FS.WriteBytesAtomic(target, data, 0o644)
}

func (e *Executor) symlinkOp(target, dest string) synthfs.Operation {
	relPath := relOrAbs(target)
	relDest := relOrAbs(dest)
	opID := core.OperationID(fmt.Sprintf("symlink-%s", target))
	op := operations.NewCreateSymlinkOperation(opID, relPath)
	op.SetDescriptionDetail("target", relDest)
	op.SetItem(&symlinkItem{path: relPath, target: relDest})
	return synthfs.NewOperationsPackageAdapter(op)
}

func (e *Executor) deleteOp(target string) synthfs.Operation {
	relPath := relOrAbs(target)
	opID := core.OperationID(fmt.Sprintf("delete-%s", target))
	op := operations.NewDeleteOperation(opID, relPath)
	return synthfs.NewOperationsPackageAdapter(op)
}

func relOrAbs(path string) string {
	rel, err := filepath.Rel("/", path)
	if err != nil {
		return path
	}
	return rel
}

func (e *Executor) runSynthOp(ctx context.Context, op synthfs.Operation) error {
	if e.Synth == nil {
		return errors.New(errors.ErrFilesystem, "executor has no synthfs filesystem configured")
	}
	pipeline := synthfs.NewMemPipeline()
	if err := pipeline.Add(op); err != nil {
		return errors.Wrap(err, errors.ErrFilesystem, "add operation to pipeline")
	}
	result := synthfs.NewExecutor().Run(ctx, pipeline, e.Synth)
	if result.GetError() != nil {
		return errors.Wrap(result.GetError(), errors.ErrFilesystem, "execute operation")
	}
	return nil
}

// commitCache advances the in-memory cache exactly per the state machine
// in §4.5: each successful action either writes or removes one CacheEntry.
func (e *Executor) commitCache(working *types.Cache, action plan.Action) {
	switch action.Kind {
	case plan.DeploySymlink, plan.AdoptExisting, plan.RelinkSymbolic:
		if action.Entry == nil {
			return
		}
		if action.Kind == plan.AdoptExisting && action.Entry.Kind == types.KindTemplate {
			e.commitCache(working, plan.Action{Kind: plan.DeployTemplate, Target: action.Target, Entry: action.Entry, NewBytes: action.NewBytes})
			return
		}
		entry := &types.CacheEntry{
			Source:            action.Entry.Source,
			Target:            action.Target,
			Kind:              action.Entry.Kind,
			LinkDest:          action.NewDest,
			WasSymbolicActual: action.Entry.Kind == types.KindSymbolic,
		}
		if action.Entry.Owner != nil {
			entry.OwnerMarker = action.Entry.Owner.User + ":" + action.Entry.Owner.Group
		}
		working.Entries[action.Target] = entry

	case plan.DeployTemplate, plan.UpdateTemplate:
		if action.Entry == nil {
			return
		}
		entry := &types.CacheEntry{
			Source:      action.Entry.Source,
			Target:      action.Target,
			Kind:        types.KindTemplate,
			ContentHash: hashOf(action.NewBytes),
		}
		if action.Entry.Owner != nil {
			entry.OwnerMarker = action.Entry.Owner.User + ":" + action.Entry.Owner.Group
		}
		working.Entries[action.Target] = entry

	case plan.RemoveDeployed:
		delete(working.Entries, action.Target)

	case plan.RemoveCreatedDir:
		working.RemoveCreatedDir(action.Target)
	}
}

func (e *Executor) emitDiff(action plan.Action) {
	if action.Kind != plan.UpdateTemplate && action.Kind != plan.RelinkSymbolic {
		return
	}

	var old, new string
	if action.Kind == plan.UpdateTemplate {
		old, new = string(action.OldBytes), string(action.NewBytes)
	} else {
		old, new = action.OldDest, action.NewDest
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: action.Target + " (current)",
		ToFile:   action.Target + " (desired)",
		Context:  e.DiffContext,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return
	}
	e.Logger.Info().Str("target", action.Target).Msg("\n" + text)
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e *Executor) logIntent(action plan.Action) {
	if e.Verbosity >= 1 {
		e.emitDiff(action)
	}
	e.Logger.Info().Str("action", action.Kind.String()).Str("target", action.Target).Msg("would execute (dry run)")
}
