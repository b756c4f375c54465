// Package session coordinates one user's editing session: conversation
// context per page, generation against the current page, navigation and
// change notifications.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"govgen/internal/credentials"
	"govgen/internal/generate"
	"govgen/internal/inflight"
	"govgen/internal/pages"
	"govgen/internal/preview"
	"govgen/internal/prompt"
	"govgen/internal/providers"
	"govgen/internal/storage"
)

var (
	ErrInFlight         = errors.New("a generation is already running for this page")
	ErrStale            = errors.New("page selection changed during generation, result discarded")
	ErrEmptyDescription = errors.New("page description must not be empty")
)

type Generator interface {
	Generate(ctx context.Context, apiKey, provider, prompt, modelOverride string) (generate.Result, error)
}

type Config struct {
	Pages       *pages.Store
	Credentials *credentials.Store
	Generator   Generator
	Guard       inflight.Guard
	History     storage.History
	Preview     preview.Options
	Logger      zerolog.Logger
}

type Controller struct {
	pages     *pages.Store
	creds     *credentials.Store
	generator Generator
	guard     inflight.Guard
	history   storage.History
	preview   preview.Options
	log       zerolog.Logger
	events    *broker

	mu       sync.Mutex
	contexts map[string]string
}

func New(cfg Config) *Controller {
	log := cfg.Logger.With().Str("component", "session").Logger()
	guard := cfg.Guard
	if guard == nil {
		guard = inflight.NewMemory(0)
	}
	return &Controller{
		pages:     cfg.Pages,
		creds:     cfg.Credentials,
		generator: cfg.Generator,
		guard:     guard,
		history:   cfg.History,
		preview:   cfg.Preview,
		log:       log,
		events:    newBroker(log),
		contexts:  map[string]string{},
	}
}

type GenerateRequest struct {
	PageType           string   `json:"pageType"`
	Description        string   `json:"description"`
	Components         []string `json:"components"`
	CustomRequirements string   `json:"customRequirements"`
	Model              string   `json:"model"`
}

// Generate produces new code for the current page. The page is captured
// when the call starts; if the selection has moved on by the time the
// vendor answers, the result is dropped and ErrStale returned.
func (c *Controller) Generate(ctx context.Context, req GenerateRequest) (pages.Page, error) {
	if strings.TrimSpace(req.Description) == "" {
		return pages.Page{}, ErrEmptyDescription
	}
	page, ok := c.pages.Current()
	if !ok {
		return pages.Page{}, fmt.Errorf("current page: %w", pages.ErrNotFound)
	}
	provider := c.creds.Provider()
	apiKey, ok := c.creds.Key(provider)
	if !ok {
		return pages.Page{}, &providers.Error{Kind: providers.ErrAuth, Message: "no API key stored for " + provider}
	}

	release, err := c.guard.Acquire(ctx, page.ID)
	if errors.Is(err, inflight.ErrBusy) {
		return pages.Page{}, ErrInFlight
	}
	if err != nil {
		return pages.Page{}, err
	}
	defer release()

	c.mu.Lock()
	prior := c.contexts[page.ID]
	c.contexts[page.ID] = prompt.AppendContext(prior, req.Description)
	c.mu.Unlock()

	components := req.Components
	if components == nil {
		components = prompt.DefaultComponents()
	}
	instruction := prompt.Compose(prompt.Request{
		PageType:           req.PageType,
		Description:        req.Description,
		Components:         components,
		CustomRequirements: req.CustomRequirements,
		PriorContext:       prior,
		PageName:           page.Name,
	})

	res, err := c.generator.Generate(ctx, apiKey, provider, instruction, req.Model)
	if err != nil {
		c.record(ctx, page.ID, "generate_failed", provider, res, err)
		return pages.Page{}, err
	}

	if c.pages.CurrentID() != page.ID {
		c.record(ctx, page.ID, "generate_discarded", provider, res, ErrStale)
		c.log.Info().Str("page_id", page.ID).Msg("selection changed during generation, result discarded")
		return pages.Page{}, ErrStale
	}

	if err := c.pages.UpdatePageCode(ctx, page.ID, res.HTML); err != nil {
		return pages.Page{}, err
	}
	c.record(ctx, page.ID, "generate", provider, res, nil)

	updated, _ := c.pages.Page(page.ID)
	c.publish(EventPageUpdated, updated)
	return updated, nil
}

func (c *Controller) record(ctx context.Context, pageID, action, provider string, res generate.Result, genErr error) {
	if c.history == nil {
		return
	}
	meta := map[string]any{
		"provider": provider,
		"model":    res.Model,
		"attempts": res.Attempts,
	}
	if genErr != nil {
		meta["error"] = genErr.Error()
	}
	b, _ := json.Marshal(meta)
	if err := c.history.LogAction(context.WithoutCancel(ctx), storage.AuditEntry{
		PageID:   pageID,
		Action:   action,
		MetaJSON: string(b),
	}); err != nil {
		c.log.Warn().Err(err).Str("page_id", pageID).Msg("failed to record generation")
	}
}

// Context returns the accumulated conversation for a page.
func (c *Controller) Context(pageID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contexts[pageID]
}

func (c *Controller) AddPage(ctx context.Context, name, description string) (pages.Page, error) {
	p, err := c.pages.AddPage(ctx, name, description)
	if err != nil {
		return pages.Page{}, err
	}
	c.publish(EventPageAdded, p)
	return p, nil
}

func (c *Controller) RenamePage(ctx context.Context, id, name string) (pages.Page, error) {
	if err := c.pages.RenamePage(ctx, id, name); err != nil {
		return pages.Page{}, err
	}
	p, _ := c.pages.Page(id)
	c.publish(EventPageRenamed, p)
	return p, nil
}

func (c *Controller) SelectPage(ctx context.Context, id string) (pages.Page, error) {
	if err := c.pages.SelectPage(ctx, id); err != nil {
		return pages.Page{}, err
	}
	p, _ := c.pages.Page(id)
	c.publish(EventPageSelected, p)
	return p, nil
}

// DeletePage removes a page and forgets its conversation. Deleting the only
// page leaves everything as it was.
func (c *Controller) DeletePage(ctx context.Context, id string) error {
	_, known := c.pages.Page(id)
	if err := c.pages.DeletePage(ctx, id); err != nil {
		return err
	}
	if _, still := c.pages.Page(id); still || !known {
		return nil
	}

	c.mu.Lock()
	delete(c.contexts, id)
	c.mu.Unlock()

	c.events.publish(Event{Type: EventPageDeleted, PageID: id, At: time.Now().UTC()})
	if cur, ok := c.pages.Current(); ok {
		c.publish(EventPageSelected, cur)
	}
	return nil
}

// Navigate follows an internal preview link to the page it names.
func (c *Controller) Navigate(ctx context.Context, href string) (pages.Page, error) {
	target, ok := preview.Resolve(href, c.pages.Pages())
	if !ok {
		return pages.Page{}, fmt.Errorf("navigate %q: %w", href, pages.ErrNotFound)
	}
	return c.SelectPage(ctx, target.ID)
}

func (c *Controller) Pages() []pages.Page { return c.pages.Pages() }

func (c *Controller) Current() (pages.Page, bool) { return c.pages.Current() }

func (c *Controller) Page(id string) (pages.Page, bool) { return c.pages.Page(id) }

func (c *Controller) Credentials() *credentials.Store { return c.creds }

// Subscribe returns a channel of page events and a function that ends the
// subscription.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

func (c *Controller) publish(typ string, p pages.Page) {
	c.events.publish(Event{Type: typ, PageID: p.ID, Page: &p, At: time.Now().UTC()})
}
