package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"govgen/internal/pages"
)

func newPagesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "List and manage pages",
	}

	var description string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a page and select it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				return fmt.Errorf("page name must not be empty")
			}
			return opts.withApp(cmd.Context(), func(a *app) error {
				p, err := a.session.AddPage(cmd.Context(), name, description)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "page description")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pages, marking the selected one",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(cmd.Context(), func(a *app) error {
					return printPages(cmd.OutOrStdout(), a.pages.Pages(), a.pages.CurrentID())
				})
			},
		},
		add,
		&cobra.Command{
			Use:   "rename PAGE NAME",
			Short: "Rename a page",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := strings.TrimSpace(strings.Join(args[1:], " "))
				if name == "" {
					return fmt.Errorf("page name must not be empty")
				}
				return opts.withApp(cmd.Context(), func(a *app) error {
					p, err := a.resolvePage(args[0])
					if err != nil {
						return err
					}
					_, err = a.session.RenamePage(cmd.Context(), p.ID, name)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "delete PAGE",
			Short: "Delete a page; the last page is kept",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), func(a *app) error {
					p, err := a.resolvePage(args[0])
					if err != nil {
						return err
					}
					if len(a.pages.Pages()) <= 1 {
						fmt.Fprintln(cmd.ErrOrStderr(), "the last page cannot be deleted")
						return nil
					}
					return a.session.DeletePage(cmd.Context(), p.ID)
				})
			},
		},
		&cobra.Command{
			Use:   "select PAGE",
			Short: "Select a page by id or name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), func(a *app) error {
					p, err := a.resolvePage(args[0])
					if err != nil {
						return err
					}
					_, err = a.session.SelectPage(cmd.Context(), p.ID)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "show [PAGE]",
			Short: "Print a page's generated HTML",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), func(a *app) error {
					p, err := a.resolvePage(firstArg(args))
					if err != nil {
						return err
					}
					_, err = io.WriteString(cmd.OutOrStdout(), p.GeneratedCode)
					return err
				})
			},
		},
	)
	return cmd
}

func printPages(w io.Writer, all []pages.Page, currentID string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tMODIFIED\tSIZE")
	for _, p := range all {
		mark := ""
		if p.ID == currentID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", mark, p.ID, p.Name, p.LastModified.Local().Format("2006-01-02 15:04"), len(p.GeneratedCode))
	}
	return tw.Flush()
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
