package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"govgen/internal/credentials"
	"govgen/internal/pages"
	"govgen/internal/prompt"
	"govgen/internal/providers"
	"govgen/internal/session"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		pageRef      string
		pageType     string
		components   []string
		requirements string
		model        string
	)

	cmd := &cobra.Command{
		Use:   "generate DESCRIPTION",
		Short: "Generate HTML for the selected page",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return opts.withApp(ctx, func(a *app) error {
				if pageRef != "" {
					p, err := a.resolvePage(pageRef)
					if err != nil {
						return err
					}
					if _, err := a.session.SelectPage(ctx, p.ID); err != nil {
						return err
					}
				}
				if err := ensureKey(ctx, a.creds); err != nil {
					return err
				}

				req := session.GenerateRequest{
					PageType:           pageType,
					Description:        strings.Join(args, " "),
					CustomRequirements: requirements,
					Model:              model,
				}
				if cmd.Flags().Changed("components") {
					req.Components = components
				}

				ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.RequestTimeout)
				defer cancel()

				stop := spinner("Generating " + a.creds.Provider())
				p, err := a.session.Generate(ctx, req)
				stop()
				if err != nil {
					return describeError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%d bytes)\n", p.Name, len(p.GeneratedCode))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pageRef, "page", "", "page id or name to select first")
	cmd.Flags().StringVar(&pageType, "type", "", "page type ("+optionValues(prompt.PageTypes)+")")
	cmd.Flags().StringSliceVar(&components, "components", nil, "components to include, comma separated")
	cmd.Flags().StringVar(&requirements, "requirements", "", "additional requirements")
	cmd.Flags().StringVar(&model, "model", "", "model to use instead of the fallback list")
	return cmd
}

func optionValues(opts []prompt.Option) string {
	values := make([]string, 0, len(opts))
	for _, o := range opts {
		values = append(values, o.Value)
	}
	return strings.Join(values, ", ")
}

// ensureKey asks for the selected vendor's key on a terminal when none is
// stored.
func ensureKey(ctx context.Context, creds *credentials.Store) error {
	if creds.IsKeySet() {
		return nil
	}
	if !interactive() {
		return fmt.Errorf("no API key stored for %s; run: govgen key set %s", creds.Provider(), creds.Provider())
	}
	key, err := promptKey(creds.Provider())
	if err != nil {
		return err
	}
	return creds.SetKey(ctx, creds.Provider(), key)
}

func promptKey(provider string) (string, error) {
	p := promptui.Prompt{
		Label: "API key for " + provider,
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return credentials.ErrValidation
			}
			return nil
		},
	}
	key, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("api key prompt: %w", err)
	}
	return key, nil
}

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// spinner animates on stderr until the returned func is called.
func spinner(description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		_ = bar.Finish()
	}
}

// describeError turns generation failures into one actionable line.
func describeError(err error) error {
	switch {
	case errors.Is(err, session.ErrEmptyDescription):
		return err
	case errors.Is(err, providers.ErrAuth):
		return fmt.Errorf("the provider rejected the API key: %w", err)
	case errors.Is(err, providers.ErrModelUnavailable):
		return fmt.Errorf("no candidate model is available to this account: %w", err)
	case errors.Is(err, session.ErrInFlight):
		return fmt.Errorf("another generation is running for this page: %w", err)
	case errors.Is(err, session.ErrStale):
		return fmt.Errorf("the selected page changed while generating: %w", err)
	case errors.Is(err, pages.ErrNotFound):
		return fmt.Errorf("no page is selected: %w", err)
	case errors.Is(err, context.Canceled):
		return errors.New("generation cancelled")
	default:
		return err
	}
}
