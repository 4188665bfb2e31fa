package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/dotter/internal/commands"
	"github.com/arthur-debert/dotter/internal/version"
	"github.com/arthur-debert/dotter/pkg/fsys"
	"github.com/arthur-debert/dotter/pkg/logging"
	"github.com/arthur-debert/dotter/pkg/plan"
	"github.com/arthur-debert/dotter/pkg/watch"
)

type globalFlags struct {
	verbosity   int
	dryRun      bool
	quiet       bool
	force       bool
	noConfirm   bool
	patch       bool
	diffContext int

	globalConfig string
	localConfig  string
	cacheFile    string
	preDeploy    string
	postDeploy   string
	preUndeploy  string
	postUndeploy string
}

const (
	defaultGlobalConfig = ".dotter/global.toml"
	defaultLocalConfig  = ".dotter/local.toml"
	defaultCacheFile    = ".dotter/cache.toml"
	defaultPreDeploy    = ".dotter/pre_deploy.sh"
	defaultPostDeploy   = ".dotter/post_deploy.sh"
	defaultPreUndeploy  = ".dotter/pre_undeploy.sh"
	defaultPostUndeploy = ".dotter/post_undeploy.sh"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "dotter",
		Short:   commands.MsgRootShort,
		Long:    commands.MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.dryRun && flags.verbosity == 0 {
				flags.verbosity = 1
			}
			if flags.quiet {
				logging.SetQuiet()
			} else {
				logging.SetupLogger(flags.verbosity)
			}
			log.Debug().Str("command", cmd.Name()).Msg("command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, flags)
		},
	}

	addPathFlags(rootCmd, flags)
	addRunFlags(rootCmd, flags)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDeployCmd(flags))
	rootCmd.AddCommand(newUndeployCmd(flags))
	rootCmd.AddCommand(newInitCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))
	rootCmd.AddCommand(newGenCompletionsCmd())

	return rootCmd
}

func addPathFlags(cmd *cobra.Command, flags *globalFlags) {
	cmd.PersistentFlags().StringVar(&flags.globalConfig, "global-config", defaultGlobalConfig, commands.MsgFlagGlobalConfig)
	cmd.PersistentFlags().StringVar(&flags.localConfig, "local-config", defaultLocalConfig, commands.MsgFlagLocalConfig)
	cmd.PersistentFlags().StringVar(&flags.cacheFile, "cache-file", defaultCacheFile, commands.MsgFlagCacheFile)
	cmd.PersistentFlags().StringVar(&flags.preDeploy, "pre-deploy", defaultPreDeploy, commands.MsgFlagPreDeploy)
	cmd.PersistentFlags().StringVar(&flags.postDeploy, "post-deploy", defaultPostDeploy, commands.MsgFlagPostDeploy)
	cmd.PersistentFlags().StringVar(&flags.preUndeploy, "pre-undeploy", defaultPreUndeploy, commands.MsgFlagPreUndeploy)
	cmd.PersistentFlags().StringVar(&flags.postUndeploy, "post-undeploy", defaultPostUndeploy, commands.MsgFlagPostUndeploy)
}

func addRunFlags(cmd *cobra.Command, flags *globalFlags) {
	cmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", commands.MsgFlagVerbose)
	cmd.PersistentFlags().BoolVarP(&flags.dryRun, "dry-run", "d", false, commands.MsgFlagDryRun)
	cmd.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, commands.MsgFlagQuiet)
	cmd.PersistentFlags().BoolVarP(&flags.force, "force", "f", false, commands.MsgFlagForce)
	cmd.PersistentFlags().BoolVarP(&flags.noConfirm, "noconfirm", "y", false, commands.MsgFlagNoConfirm)
	cmd.PersistentFlags().BoolVarP(&flags.patch, "patch", "p", false, commands.MsgFlagPatch)
	cmd.PersistentFlags().IntVar(&flags.diffContext, "diff-context-lines", 3, commands.MsgFlagDiffContext)
}

func (f *globalFlags) pathOptions() PathOptions {
	return PathOptions{
		GlobalConfig: f.globalConfig,
		LocalConfig:  f.localConfig,
		CacheFile:    f.cacheFile,
		PreDeploy:    f.preDeploy,
		PostDeploy:   f.postDeploy,
		PreUndeploy:  f.preUndeploy,
		PostUndeploy: f.postUndeploy,
	}
}

func (f *globalFlags) runOptions() RunOptions {
	noConfirm := f.noConfirm
	if f.patch {
		// --patch implies --noconfirm per the original implementation's
		// Options::patch handling: a piped patch has no terminal to prompt.
		noConfirm = true
	}
	verbosity := f.verbosity
	if f.dryRun && verbosity == 0 {
		verbosity = 1
	}
	return RunOptions{
		Paths:       f.pathOptions(),
		DryRun:      f.dryRun,
		Force:       f.force,
		NoConfirm:   noConfirm,
		Patch:       f.patch,
		Verbosity:   verbosity,
		DiffContext: f.diffContext,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: commands.MsgVersionShort,
		Long:  commands.MsgVersionLong,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf(commands.MsgVersionFormat, version.Version)
			fmt.Printf(commands.MsgCommitFormat, version.Commit)
			fmt.Printf(commands.MsgBuiltFormat, version.Date)
		},
	}
}

func newDeployCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "deploy",
		Short:   commands.MsgDeployShort,
		Long:    commands.MsgDeployLong,
		Example: commands.MsgDeployExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, flags)
		},
	}
}

func runDeploy(cmd *cobra.Command, flags *globalFlags) error {
	pipeline, err := NewPipeline(flags.runOptions())
	if err != nil {
		return err
	}

	actions, err := pipeline.Deploy(cmd.Context())
	if err != nil {
		return err
	}

	reportActions(cmd, actions, flags.dryRun)
	return nil
}

func newUndeployCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "undeploy",
		Short:   commands.MsgUndeployShort,
		Long:    commands.MsgUndeployLong,
		Example: commands.MsgUndeployExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := NewPipeline(flags.runOptions())
			if err != nil {
				return err
			}

			actions, err := pipeline.Undeploy(cmd.Context())
			if err != nil {
				return err
			}

			reportActions(cmd, actions, flags.dryRun)
			return nil
		},
	}
}

func newInitCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "init",
		Short:   commands.MsgInitShort,
		Long:    commands.MsgInitLong,
		Example: commands.MsgInitExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Init(fsys.NewOS(), flags.pathOptions())
		},
	}
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   commands.MsgWatchShort,
		Long:    commands.MsgWatchLong,
		Example: commands.MsgWatchExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}
}

func runWatch(cmd *cobra.Command, flags *globalFlags) error {
	opts := flags.runOptions()

	trigger := func(ctx context.Context, changed []string) error {
		pipeline, err := NewPipeline(opts)
		if err != nil {
			return err
		}
		log.Info().Strs("changed", changed).Msg("redeploying after change")
		actions, err := pipeline.Deploy(ctx)
		if err != nil {
			return err
		}
		reportActions(cmd, actions, opts.DryRun)
		return nil
	}

	if err := trigger(cmd.Context(), nil); err != nil {
		return err
	}

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf(commands.MsgErrInitPaths, err)
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.IgnorePatterns = append(watchOpts.IgnorePatterns,
		opts.Paths.CacheFile, opts.Paths.GlobalConfig, opts.Paths.LocalConfig)

	w, err := watch.New([]string{root}, trigger, watchOpts)
	if err != nil {
		return err
	}
	return w.Run(cmd.Context())
}

func newGenCompletionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "gen-completions [bash|zsh|fish|powershell]",
		Short:     commands.MsgGenCompletionsShort,
		Long:      commands.MsgGenCompletionsLong,
		Example:   commands.MsgGenCompletionsExample,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}

func reportActions(cmd *cobra.Command, actions []plan.Action, dryRun bool) {
	out := cmd.OutOrStdout()
	mutated := 0
	for _, a := range actions {
		if a.Kind != plan.Skip {
			mutated++
		}
	}
	if mutated == 0 {
		fmt.Fprint(out, commands.MsgNoActions)
	}
	if dryRun {
		fmt.Fprint(out, commands.MsgDryRunNotice)
	}
}
