package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"govgen/internal/credentials"
	"govgen/internal/providers"
)

func newKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage stored API keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set PROVIDER [KEY]",
			Short: "Store an API key; prompts when KEY is omitted",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				provider := strings.ToLower(args[0])
				key := ""
				if len(args) == 2 {
					key = args[1]
				} else {
					k, err := promptKey(provider)
					if err != nil {
						return err
					}
					key = k
				}
				return opts.withApp(cmd.Context(), func(a *app) error {
					if err := a.creds.SetKey(cmd.Context(), provider, key); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s\n", provider)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which vendors have a key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(cmd.Context(), func(a *app) error {
					printStatus(cmd.OutOrStdout(), a.creds.Status())
					return nil
				})
			},
		},
	)
	return cmd
}

func newProviderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Choose the language model vendor",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "set PROVIDER",
		Short:     "Select openai or anthropic",
		Args:      cobra.ExactArgs(1),
		ValidArgs: providers.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				if err := a.creds.SetProvider(cmd.Context(), args[0]); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), a.creds.Status())
				return nil
			})
		},
	})
	return cmd
}

func printStatus(w io.Writer, st credentials.Status) {
	fmt.Fprintf(w, "provider: %s\n", st.Provider)
	for _, p := range providers.Names {
		state := "not set"
		if st.HasKey[p] {
			state = "set"
		}
		fmt.Fprintf(w, "  %s key: %s\n", p, state)
	}
	if st.Sealed {
		fmt.Fprintln(w, "keys are encrypted at rest")
	}
}
