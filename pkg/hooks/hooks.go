// Package hooks runs the pre/post deploy and undeploy scripts the
// Executor invokes around its mutation phase (§4.5, §6.4).
package hooks

import (
	"os/exec"
	"strings"

	"github.com/arthur-debert/dotter/pkg/errors"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/render"
	"github.com/arthur-debert/dotter/pkg/types"
)

// Name identifies one of the four hook points.
type Name string

const (
	PreDeploy    Name = "pre_deploy"
	PostDeploy   Name = "post_deploy"
	PreUndeploy  Name = "pre_undeploy"
	PostUndeploy Name = "post_undeploy"
)

// Runner locates and executes hook scripts. A missing script file is not
// an error — it simply means the hook point is unused, per the original
// implementation's run_hook.
type Runner struct {
	FS       fsys.FS
	Renderer *render.Renderer
	// Paths maps each hook point to its configured script path, one
	// independent --pre-deploy/--post-deploy/... flag per Name, mirroring
	// the original implementation's Options (no shared hooks directory is
	// assumed).
	Paths map[Name]string
	// WorkDir is the working directory hook commands run from —
	// normally the repository root, per the supplemental
	// hook-working-directory feature.
	WorkDir string
}

// New builds a Runner from one script path per hook point.
func New(fs fsys.FS, renderer *render.Renderer, paths map[Name]string, workDir string) *Runner {
	return &Runner{FS: fs, Renderer: renderer, Paths: paths, WorkDir: workDir}
}

// Run executes the named hook if its script file exists, templating the
// script body through vars first (the supplemental templated-hook-command
// feature). A hook failure is returned as a *errors.DirError with code
// ErrHook; callers decide whether that aborts the run.
func (r *Runner) Run(name Name, vars types.VariableContext) error {
	path := r.Paths[name]
	if path == "" {
		return nil
	}

	script, err := r.FS.ReadBytes(path)
	if err != nil {
		return nil // missing hook file is not an error
	}

	rendered, err := r.Renderer.Render(script, vars)
	if err != nil {
		return errors.Wrapf(err, errors.ErrHook, "render hook %q", name)
	}

	cmd := exec.Command("sh", "-c", string(rendered))
	cmd.Dir = r.WorkDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, errors.ErrHook, "hook %q failed: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}
