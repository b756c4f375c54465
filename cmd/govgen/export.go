package main

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [PAGE]",
		Short: "Write a page's HTML to a file",
		Long: `Write a page's generated HTML exactly as stored. The file name defaults to
the page name in lower case with spaces replaced by hyphens. Use -o - for
standard output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				p, err := a.resolvePage(firstArg(args))
				if err != nil {
					return err
				}
				name, body, err := a.session.Export(p.ID)
				if err != nil {
					return err
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(body)
					return err
				}
				if output != "" {
					name = output
				}
				if err := os.WriteFile(name, body, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, - for stdout")
	return cmd
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open [PAGE]",
		Short: "Open a page in the browser as a standalone document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				p, err := a.resolvePage(firstArg(args))
				if err != nil {
					return err
				}
				doc, err := a.session.StandaloneDocument(p.ID)
				if err != nil {
					return err
				}
				f, err := os.CreateTemp("", "govgen-*.html")
				if err != nil {
					return fmt.Errorf("create temp file: %w", err)
				}
				if _, err := f.WriteString(doc); err != nil {
					f.Close()
					return fmt.Errorf("write temp file: %w", err)
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("close temp file: %w", err)
				}
				return browser.OpenFile(f.Name())
			})
		},
	}
}
