// Package cli wires the pkg/config, pkg/classify, pkg/plan, pkg/exec,
// pkg/cache and pkg/watch collaborators into the command surface the
// cobra tree in commands.go dispatches to. Nothing here knows about
// cobra; it only knows about the pipeline and the options a command
// needs to drive it.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/dotter/internal/commands"
	"github.com/arthur-debert/dotter/pkg/cache"
	"github.com/arthur-debert/dotter/pkg/classify"
	"github.com/arthur-debert/dotter/pkg/config"
	"github.com/arthur-debert/dotter/pkg/exec"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/hooks"
	"github.com/arthur-debert/dotter/pkg/plan"
	"github.com/arthur-debert/dotter/pkg/render"
	"github.com/arthur-debert/dotter/pkg/types"
)

// PathOptions names every file the run touches, one field per --*-config/
// --cache-* / hook flag in commands.go.
type PathOptions struct {
	GlobalConfig string
	LocalConfig  string
	CacheFile    string
	PreDeploy    string
	PostDeploy   string
	PreUndeploy  string
	PostUndeploy string
}

// RunOptions configures one deploy/undeploy invocation. It's the
// flag-independent core of what commands.go collects from cobra.
type RunOptions struct {
	Paths       PathOptions
	DryRun      bool
	Force       bool
	NoConfirm   bool
	Patch       bool
	Verbosity   int
	DiffContext int
	Stdin       *os.File
	Stdout      *os.File
}

// Pipeline bundles the collaborators one Load/Plan/Execute/Save pass
// needs, built once per invocation from RunOptions.
type Pipeline struct {
	FS       fsys.FS
	RepoRoot string
	Manifest *types.Manifest
	Cache    *types.Cache
	Planner  *plan.Planner
	Executor *exec.Executor
	Opts     RunOptions
}

// hookPaths collects the four independent hook flags into the map
// pkg/hooks.Runner expects.
func hookPaths(p PathOptions) map[hooks.Name]string {
	return map[hooks.Name]string{
		hooks.PreDeploy:    p.PreDeploy,
		hooks.PostDeploy:   p.PostDeploy,
		hooks.PreUndeploy:  p.PreUndeploy,
		hooks.PostUndeploy: p.PostUndeploy,
	}
}

// NewPipeline loads the manifest and cache, and builds the renderer,
// classifier, planner and executor the run needs, rooted at the real
// filesystem at cwd.
func NewPipeline(opts RunOptions) (*Pipeline, error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf(commands.MsgErrInitPaths, err)
	}

	fs := fsys.NewOS()

	var patchReader *os.File
	if opts.Patch {
		if opts.Stdin != nil {
			patchReader = opts.Stdin
		} else {
			patchReader = os.Stdin
		}
	}

	loadOpts := config.Options{
		GlobalConfigPath: opts.Paths.GlobalConfig,
		LocalConfigPath:  opts.Paths.LocalConfig,
		RepoRoot:         repoRoot,
	}
	if patchReader != nil {
		loadOpts.Patch = patchReader
	}

	manifest, err := config.Load(fs, loadOpts)
	if err != nil {
		return nil, fmt.Errorf(commands.MsgErrLoadManifest, err)
	}

	c, err := cache.Load(fs, opts.Paths.CacheFile)
	if err != nil {
		return nil, fmt.Errorf(commands.MsgErrLoadCache, err)
	}

	renderer := renderForManifest(manifest)
	classifier := classify.NewClassifier(fs, renderer)
	planner := plan.New(fs, classifier)

	executor := exec.New(fs, "/")
	executor.Hooks = hooks.New(fs, renderer, hookPaths(opts.Paths), repoRoot)
	executor.DiffContext = opts.DiffContext
	executor.Verbosity = opts.Verbosity

	return &Pipeline{
		FS:       fs,
		RepoRoot: repoRoot,
		Manifest: manifest,
		Cache:    c,
		Planner:  planner,
		Executor: executor,
		Opts:     opts,
	}, nil
}

func renderForManifest(manifest *types.Manifest) *render.Renderer {
	opts := make([]render.Option, 0, len(manifest.Helpers))
	for name, scriptPath := range manifest.Helpers {
		opts = append(opts, render.WithScriptHelper(name, scriptPath))
	}
	return render.New(opts...)
}

// planOptions builds the plan.Options the CLI's confirmation policy maps
// to: --noconfirm/--force/--patch all auto-confirm, otherwise a stdlib
// bufio prompt on stdin asks per directory. No confirmation-prompt
// library exists anywhere in the corpus, so this one corner stays on
// bufio/os.Stdin.
func (p *Pipeline) planOptions() plan.Options {
	o := plan.Options{
		DryRun:                     p.Opts.DryRun,
		Force:                      p.Opts.Force,
		AutoConfirmEmptyDirRemoval: p.Opts.NoConfirm || p.Opts.Force || p.Opts.Patch,
	}
	if !o.AutoConfirmEmptyDirRemoval {
		o.ConfirmEmptyDirRemoval = p.confirmEmptyDirRemoval
	}
	return o
}

func (p *Pipeline) confirmEmptyDirRemoval(path string) bool {
	stdin := p.Opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := p.Opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	fmt.Fprintf(stdout, "Remove now-empty directory %q? [y/N] ", path)
	scanner := bufio.NewScanner(stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// Deploy runs the full reconciliation pass: plan against the loaded
// manifest, execute, and persist the resulting cache.
func (p *Pipeline) Deploy(ctx context.Context) ([]plan.Action, error) {
	actions, err := p.Planner.Plan(p.Manifest, p.Cache, p.planOptions())
	if err != nil {
		return nil, fmt.Errorf(commands.MsgErrPlan, err)
	}

	newCache, runErr := p.Executor.Run(ctx, actions, p.Cache, p.Opts.DryRun, p.Manifest.Variables)
	p.Cache = newCache

	if !p.Opts.DryRun {
		if err := cache.Save(p.FS, p.Opts.Paths.CacheFile, p.Cache); err != nil {
			return actions, fmt.Errorf(commands.MsgErrSaveCache, err)
		}
	}
	if runErr != nil {
		return actions, fmt.Errorf(commands.MsgErrExecute, runErr)
	}
	return actions, nil
}

// Undeploy plans against an empty manifest: every cache entry becomes a
// RemoveDeployed action and every created directory becomes a guarded
// RemoveCreatedDir, with no new Planner logic needed to get there.
func (p *Pipeline) Undeploy(ctx context.Context) ([]plan.Action, error) {
	empty := types.NewManifest(p.Manifest.RepoRoot)

	actions, err := p.Planner.Plan(empty, p.Cache, p.planOptions())
	if err != nil {
		return nil, fmt.Errorf(commands.MsgErrPlan, err)
	}

	newCache, runErr := p.Executor.RunUndeploy(ctx, actions, p.Cache, p.Opts.DryRun, p.Manifest.Variables)
	p.Cache = newCache

	if !p.Opts.DryRun {
		if err := cache.Save(p.FS, p.Opts.Paths.CacheFile, p.Cache); err != nil {
			return actions, fmt.Errorf(commands.MsgErrSaveCache, err)
		}
	}
	if runErr != nil {
		return actions, fmt.Errorf(commands.MsgErrExecute, runErr)
	}
	return actions, nil
}

// Init scans the current directory for regular files and writes a
// starter global/local configuration pair selecting a single "default"
// package, mirroring the original implementation's save_dummy_config:
// every discovered file maps to an empty-string (disabled) placeholder
// target for the user to fill in.
func Init(fs fsys.FS, paths PathOptions) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf(commands.MsgErrInitPaths, err)
	}

	entries, err := os.ReadDir(cwd)
	if err != nil {
		return err
	}

	files := map[string]interface{}{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files[entry.Name()] = ""
	}

	globalDoc := map[string]interface{}{
		"default": map[string]interface{}{
			"files": files,
		},
	}
	localDoc := map[string]interface{}{
		"packages": []string{"default"},
	}

	if err := writeTOMLConfig(fs, paths.GlobalConfig, globalDoc); err != nil {
		return err
	}
	return writeTOMLConfig(fs, paths.LocalConfig, localDoc)
}

func writeTOMLConfig(fs fsys.FS, path string, doc map[string]interface{}) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return fs.WriteBytesAtomic(path, data, 0o644)
}
