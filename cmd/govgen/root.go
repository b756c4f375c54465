package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"govgen/internal/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "govgen",
		Short: "Generate GOV.UK Design System pages from plain-language descriptions",
		Long: `govgen keeps a small set of named pages, asks a language model to write
GOV.UK Design System markup for them and previews the result in the browser.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				setupLogger(opts.logLevel, os.Stderr)
				return nil
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			setupLogger(cfg.Log.Level, os.Stderr)
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultFileName, "config file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newPagesCmd(opts),
		newGenerateCmd(opts),
		newExportCmd(opts),
		newOpenCmd(opts),
		newKeyCmd(opts),
		newProviderCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// withApp opens the wired components for the duration of fn.
func (o *rootOptions) withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
