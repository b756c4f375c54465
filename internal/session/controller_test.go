package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govgen/internal/credentials"
	"govgen/internal/generate"
	"govgen/internal/govuk"
	"govgen/internal/pages"
	"govgen/internal/providers"
	"govgen/internal/storage"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	models  []string
	hook    func()
	html    string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, apiKey, provider, prompt, model string) (generate.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.err != nil {
		return generate.Result{Attempts: 1}, f.err
	}
	return generate.Result{HTML: f.html, Model: "gpt-4o-mini", Attempts: 1}, nil
}

type chatFunc func(context.Context, providers.ChatRequest) (providers.ChatResponse, error)

func (f chatFunc) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return f(ctx, req)
}

type fixture struct {
	ctl   *Controller
	pages *pages.Store
	creds *credentials.Store
	kv    *storage.Memory
}

func newFixture(t *testing.T, gen Generator) fixture {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemory()

	ps, err := pages.Open(ctx, pages.Config{KV: kv, Logger: zerolog.Nop()})
	require.NoError(t, err)
	cs, err := credentials.Open(ctx, credentials.Config{KV: kv, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, cs.SetKey(ctx, providers.OpenAI, "sk-test"))

	ctl := New(Config{
		Pages:       ps,
		Credentials: cs,
		Generator:   gen,
		History:     kv,
		Logger:      zerolog.Nop(),
	})
	return fixture{ctl: ctl, pages: ps, creds: cs, kv: kv}
}

func TestGenerateContactPageScenario(t *testing.T) {
	ctx := context.Background()
	var seen providers.ChatRequest
	gen := generate.New(generate.Config{
		Models: map[string][]string{providers.OpenAI: {"gpt-4o-mini"}},
		Logger: zerolog.Nop(),
		Build: func(provider, apiKey string) (providers.Provider, error) {
			return chatFunc(func(_ context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
				seen = req
				return providers.ChatResponse{Text: "<div>ok</div>"}, nil
			}), nil
		},
	})
	f := newFixture(t, gen)

	_, err := f.ctl.AddPage(ctx, "Contact", "")
	require.NoError(t, err)

	updated, err := f.ctl.Generate(ctx, GenerateRequest{
		PageType:    "form",
		Description: "a contact form",
		Components:  []string{"input", "buttons"},
	})
	require.NoError(t, err)

	cur, ok := f.pages.Current()
	require.True(t, ok)
	assert.Equal(t, updated.ID, cur.ID)
	assert.Equal(t, govuk.Normalize("<div>ok</div>"), cur.GeneratedCode)
	assert.Contains(t, cur.GeneratedCode, govuk.HeaderMarker)
	assert.Contains(t, cur.GeneratedCode, govuk.FooterMarker)
	assert.Contains(t, cur.GeneratedCode, "<div>ok</div>")

	assert.Contains(t, seen.UserPrompt, `The page is named "Contact". `)
	assert.Contains(t, seen.UserPrompt, "The page is for: a contact form. ")
	assert.Contains(t, seen.UserPrompt, "Include these components: input, buttons. ")

	history, err := f.kv.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "generate", history[0].Action)
	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(history[0].MetaJSON), &meta))
	assert.Equal(t, "gpt-4o-mini", meta["model"])
}

func TestGenerateAccumulatesContextPerPage(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{html: "<p>x</p>"}
	f := newFixture(t, gen)

	_, err := f.ctl.Generate(ctx, GenerateRequest{PageType: "landing", Description: "a start page"})
	require.NoError(t, err)
	_, err = f.ctl.Generate(ctx, GenerateRequest{PageType: "landing", Description: "add a button"})
	require.NoError(t, err)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "The page is for: a start page. ")
	assert.Contains(t, gen.prompts[0], "Include these components: header, footer. ")
	assert.Contains(t, gen.prompts[1], "Based on our previous conversation: a start page. New instructions: add a button. ")
	assert.Equal(t, "a start page User requested: add a button", f.ctl.Context(pages.DefaultID))

	other, err := f.ctl.AddPage(ctx, "Other", "")
	require.NoError(t, err)
	assert.Empty(t, f.ctl.Context(other.ID))
}

func TestGenerateWithoutKeyIsAuthError(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{html: "<p>x</p>"}
	f := newFixture(t, gen)
	require.NoError(t, f.creds.SetProvider(ctx, providers.Anthropic))

	_, err := f.ctl.Generate(ctx, GenerateRequest{Description: "x"})
	require.ErrorIs(t, err, providers.ErrAuth)
	assert.Empty(t, gen.prompts)
}

func TestGenerateRejectsBlankDescription(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})
	_, err := f.ctl.Generate(context.Background(), GenerateRequest{Description: "  "})
	require.ErrorIs(t, err, ErrEmptyDescription)
}

func TestGenerateDiscardsStaleResult(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{html: "<p>late</p>"}
	f := newFixture(t, gen)

	other, err := f.ctl.AddPage(ctx, "Other", "")
	require.NoError(t, err)
	require.NoError(t, f.pages.SelectPage(ctx, pages.DefaultID))

	gen.hook = func() {
		_ = f.pages.SelectPage(ctx, other.ID)
	}
	_, err = f.ctl.Generate(ctx, GenerateRequest{Description: "x"})
	require.ErrorIs(t, err, ErrStale)

	home, _ := f.pages.Page(pages.DefaultID)
	assert.Empty(t, home.GeneratedCode)
	assert.Equal(t, other.ID, f.pages.CurrentID())
}

func TestGenerateRejectsSecondInFlightRequest(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	unblock := make(chan struct{})
	gen := &fakeGenerator{html: "<p>x</p>"}
	gen.hook = func() {
		close(started)
		<-unblock
	}
	f := newFixture(t, gen)

	done := make(chan error, 1)
	go func() {
		_, err := f.ctl.Generate(ctx, GenerateRequest{Description: "first"})
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first generation never started")
	}

	_, err := f.ctl.Generate(ctx, GenerateRequest{Description: "second"})
	require.ErrorIs(t, err, ErrInFlight)

	close(unblock)
	require.NoError(t, <-done)
}

func TestGenerateFailureLeavesCodeAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{err: &providers.Error{Kind: providers.ErrProvider, Message: "boom"}}
	f := newFixture(t, gen)

	_, err := f.ctl.Generate(ctx, GenerateRequest{Description: "x", Model: "gpt-4o"})
	require.ErrorIs(t, err, providers.ErrProvider)
	assert.Equal(t, []string{"gpt-4o"}, gen.models)

	home, _ := f.pages.Page(pages.DefaultID)
	assert.Empty(t, home.GeneratedCode)

	history, err := f.kv.RecentActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "generate_failed", history[0].Action)
}

func TestNavigate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeGenerator{})
	contact, err := f.ctl.AddPage(ctx, "Contact Us", "")
	require.NoError(t, err)

	p, err := f.ctl.Navigate(ctx, "/home.html")
	require.NoError(t, err)
	assert.Equal(t, pages.DefaultID, p.ID)
	assert.Equal(t, pages.DefaultID, f.pages.CurrentID())

	p, err = f.ctl.Navigate(ctx, "contact%20us")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, p.ID)

	_, err = f.ctl.Navigate(ctx, "/nowhere")
	require.ErrorIs(t, err, pages.ErrNotFound)
	assert.Equal(t, contact.ID, f.pages.CurrentID())
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeGenerator{})
	p, err := f.ctl.AddPage(ctx, "Apply For A Licence", "")
	require.NoError(t, err)
	require.NoError(t, f.pages.UpdatePageCode(ctx, p.ID, "<p>exact bytes</p>\n"))

	name, body, err := f.ctl.Export(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "apply-for-a-licence.html", name)
	assert.Equal(t, []byte("<p>exact bytes</p>\n"), body)

	_, _, err = f.ctl.Export("missing")
	require.ErrorIs(t, err, pages.ErrNotFound)

	assert.Equal(t, "govuk-generated-page.html", ExportFilename("  "))
	assert.Equal(t, "a-b.html", ExportFilename("a/b"))
}

func TestStandaloneDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeGenerator{})
	require.NoError(t, f.pages.UpdatePageCode(ctx, pages.DefaultID, "<p>standalone</p>"))

	doc, err := f.ctl.StandaloneDocument("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<title>Home</title>")
	assert.Contains(t, doc, "<p>standalone</p>")
}

func TestEventsArePublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeGenerator{html: "<p>x</p>"})
	events, cancel := f.ctl.Subscribe(8)
	defer cancel()

	added, err := f.ctl.AddPage(ctx, "Second", "")
	require.NoError(t, err)
	_, err = f.ctl.RenamePage(ctx, added.ID, "Renamed")
	require.NoError(t, err)
	_, err = f.ctl.Generate(ctx, GenerateRequest{Description: "x"})
	require.NoError(t, err)
	require.NoError(t, f.ctl.DeletePage(ctx, added.ID))

	want := []string{EventPageAdded, EventPageRenamed, EventPageUpdated, EventPageDeleted, EventPageSelected}
	for _, typ := range want {
		select {
		case e := <-events:
			assert.Equal(t, typ, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing event %s", typ)
		}
	}
}

func TestDeleteSolePagePublishesNothing(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})
	events, cancel := f.ctl.Subscribe(1)
	defer cancel()

	require.NoError(t, f.ctl.DeletePage(context.Background(), pages.DefaultID))
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
	assert.Len(t, f.ctl.Pages(), 1)
}
