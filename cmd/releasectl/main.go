package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dceres/releasectl/internal/config"
	"github.com/dceres/releasectl/internal/logging"
	"github.com/dceres/releasectl/internal/release"
	"github.com/dceres/releasectl/internal/trigger"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "releasectl: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	revision   string
	paths      []string
	pathsFrom  string
	forced     bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "releasectl",
		Short:         "Release orchestrator for the transformer-model service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "releasectl.toml", "path to release configuration")

	deploy := &cobra.Command{
		Use:   "deploy",
		Short: "Detect changes, build gated images, reconcile, and verify",
		RunE: func(cmd *cobra.Command, args []string) error {
			trig, err := flags.deployTrigger()
			if err != nil {
				return err
			}
			return runOnce(cmd, flags.configPath, trig)
		},
	}
	deploy.Flags().StringVar(&flags.revision, "revision", "", "revision identifier for this release")
	deploy.Flags().StringSliceVar(&flags.paths, "path", nil, "changed path (repeatable)")
	deploy.Flags().StringVar(&flags.pathsFrom, "paths-from", "", "file with newline-separated changed paths")
	deploy.Flags().BoolVar(&flags.forced, "force", false, "build and deploy every component regardless of changes")

	plan := &cobra.Command{
		Use:   "plan",
		Short: "Show the pending infrastructure diff without applying",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, flags.configPath, trigger.Manual(trigger.ActionPlan, flags.revision, false))
		},
	}
	plan.Flags().StringVar(&flags.revision, "revision", "", "revision identifier")

	destroy := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down the environment's infrastructure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, flags.configPath, trigger.Manual(trigger.ActionDestroy, flags.revision, false))
		},
	}
	destroy.Flags().StringVar(&flags.revision, "revision", "", "revision identifier")

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Run scheduled health checks and serve run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags.configPath)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(flags.configPath, flags.forced); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flags.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&flags.forced, "force", false, "overwrite an existing config file")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadReleaseConfig(flags.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", flags.configPath)
			return nil
		},
	}

	root.AddCommand(deploy, plan, destroy, watch, initCmd, validate)
	return root
}

func (f *rootFlags) deployTrigger() (trigger.Trigger, error) {
	paths := append([]string(nil), f.paths...)
	if f.pathsFrom != "" {
		fromFile, err := readPathsFile(f.pathsFrom)
		if err != nil {
			return trigger.Trigger{}, err
		}
		paths = append(paths, fromFile...)
	}
	if f.forced {
		trig := trigger.Manual(trigger.ActionDeploy, f.revision, true)
		trig.Paths = paths
		return trig, nil
	}
	return trigger.Push(f.revision, paths), nil
}

// runOnce executes a single run and maps a failed verdict to exit code 1.
func runOnce(cmd *cobra.Command, configPath string, trig trigger.Trigger) error {
	orch, cfg, err := buildOrchestrator(configPath)
	if err != nil {
		return err
	}

	report := orch.Run(cmd.Context(), trig)
	if err := report.Write(cfg.ReportDir); err != nil {
		log.Error().Err(err).Msg("report write failed")
	}
	if report.Failed() {
		return fmt.Errorf("run %s failed: %s", report.RunID, failureDetail(report))
	}
	return nil
}

func failureDetail(report release.Report) string {
	switch {
	case report.RunError != "":
		return report.RunError
	case report.ReconcileError != "":
		return report.ReconcileError
	default:
		return "see release report"
	}
}
