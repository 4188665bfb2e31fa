// Package commands holds the Msg* constants shared by the root command and
// its subcommands, following the teacher's convention of keeping
// user-facing help text out of the command wiring itself.
package commands

const (
	MsgRootShort = "A declarative dotfile deployment engine"
	MsgRootLong  = `dotter reconciles a declarative deployment manifest against the
filesystem: it creates and updates symlinks and rendered template files,
refuses to clobber changes it can't account for, and undoes what it
previously deployed.`

	MsgDeployShort = "Deploy the configured files"
	MsgDeployLong  = `Deploy renders the merged manifest, classifies every target against
the cache and the actual filesystem, and applies the resulting actions:
creating parent directories, symlinks and rendered templates.`
	MsgDeployExample = `  # Deploy everything the local configuration selects
  dotter deploy

  # Preview what would change
  dotter deploy --dry-run

  # Overwrite files dotter doesn't recognize
  dotter deploy --force`

	MsgUndeployShort = "Remove everything dotter has deployed"
	MsgUndeployLong  = `Undeploy removes every file and symlink recorded in the cache and
deletes any directory dotter created that is now empty, then clears the cache.`
	MsgUndeployExample = `  dotter undeploy
  dotter undeploy --noconfirm`

	MsgInitShort = "Create a starter global and local configuration"
	MsgInitLong  = `Init scans the current directory for files and writes a global
configuration with a single package listing them, and a local
configuration selecting that package.`
	MsgInitExample = `  dotter init`

	MsgWatchShort = "Watch the repository and redeploy on changes"
	MsgWatchLong  = `Watch runs deploy once, then watches the repository root,
redeploying after a short debounce period whenever a file in it changes.
Changes under .dotter and to the configuration and cache files are
ignored. Can be combined with --dry-run.`
	MsgWatchExample = `  dotter watch
  dotter watch --dry-run`

	MsgGenCompletionsShort = "Generate shell completion scripts"
	MsgGenCompletionsLong  = `Generate a completion script for bash, zsh, fish or powershell.`
	MsgGenCompletionsExample = `  dotter gen-completions bash > /etc/bash_completion.d/dotter
  dotter gen-completions zsh > "${fpath[1]}/_dotter"`

	MsgVersionShort = "Print version information"
	MsgVersionLong  = "Print detailed version information including commit hash and build date"

	MsgFlagVerbose     = "Increase verbosity (-v info, -vv debug, -vvv trace)"
	MsgFlagDryRun       = "Preview changes without executing them"
	MsgFlagQuiet        = "Only print errors"
	MsgFlagForce        = "Overwrite files whose content dotter doesn't recognize"
	MsgFlagNoConfirm    = "Assume yes when asked to remove an empty directory"
	MsgFlagPatch        = "Read an additional files/variables patch from stdin, applied last"
	MsgFlagDiffContext  = "Number of context lines printed around a diff hunk"
	MsgFlagGlobalConfig = "Location of the global configuration"
	MsgFlagLocalConfig  = "Location of the local configuration"
	MsgFlagCacheFile    = "Location of the cache file"
	MsgFlagPreDeploy    = "Location of the optional pre-deploy hook"
	MsgFlagPostDeploy   = "Location of the optional post-deploy hook"
	MsgFlagPreUndeploy  = "Location of the optional pre-undeploy hook"
	MsgFlagPostUndeploy = "Location of the optional post-undeploy hook"

	MsgDryRunNotice = "\ndry run: no changes were made\n"
	MsgNoActions    = "Nothing to do.\n"

	MsgErrInitPaths    = "resolve repository root: %w"
	MsgErrLoadManifest = "load configuration: %w"
	MsgErrLoadCache    = "load cache: %w"
	MsgErrPlan         = "plan actions: %w"
	MsgErrExecute      = "execute plan: %w"
	MsgErrSaveCache    = "save cache: %w"

	MsgVersionFormat = "dotter version %s\n"
	MsgCommitFormat  = "commit: %s\n"
	MsgBuiltFormat   = "built:  %s\n"
)
