package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govgen/internal/credentials"
	"govgen/internal/generate"
	"govgen/internal/inflight"
	"govgen/internal/pages"
	"govgen/internal/providers"
	"govgen/internal/session"
	"govgen/internal/storage"
)

type stubGenerator struct {
	html string
	err  error
}

func (g stubGenerator) Generate(context.Context, string, string, string, string) (generate.Result, error) {
	if g.err != nil {
		return generate.Result{Attempts: 1}, g.err
	}
	return generate.Result{HTML: g.html, Model: "gpt-4o-mini", Attempts: 1}, nil
}

type harness struct {
	srv   *httptest.Server
	pages *pages.Store
	creds *credentials.Store
	guard *inflight.Memory
}

func newHarness(t *testing.T, gen session.Generator, withKey bool) harness {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemory()

	ps, err := pages.Open(ctx, pages.Config{KV: kv, Logger: zerolog.Nop()})
	require.NoError(t, err)
	cs, err := credentials.Open(ctx, credentials.Config{KV: kv, Logger: zerolog.Nop()})
	require.NoError(t, err)
	if withKey {
		require.NoError(t, cs.SetKey(ctx, providers.OpenAI, "sk-test"))
	}
	guard := inflight.NewMemory(time.Minute)

	ctl := session.New(session.Config{
		Pages:       ps,
		Credentials: cs,
		Generator:   gen,
		Guard:       guard,
		History:     kv,
		Logger:      zerolog.Nop(),
	})
	s := New(Config{
		RequestTimeout: 5 * time.Second,
		Session:        ctl,
		Models:         map[string][]string{providers.OpenAI: {"gpt-4o-mini"}},
		Logger:         zerolog.Nop(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return harness{srv: ts, pages: ps, creds: cs, guard: guard}
}

func (h harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)
	resp := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, resp)["status"])
}

func TestIndexServesUI(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)
	resp := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sandbox="allow-scripts"`)
}

func TestPageLifecycle(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)

	list := decodeBody[pageList](t, h.do(t, http.MethodGet, "/api/pages", nil))
	require.Len(t, list.Pages, 1)
	assert.Equal(t, pages.DefaultID, list.CurrentPageID)

	resp := h.do(t, http.MethodPost, "/api/pages", map[string]string{"name": "Contact"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decodeBody[pages.Page](t, resp)
	assert.Equal(t, "Contact", added.Name)
	assert.Equal(t, added.ID, h.pages.CurrentID())

	resp = h.do(t, http.MethodPatch, "/api/pages/"+added.ID, map[string]string{"name": "Contact us"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Contact us", decodeBody[pages.Page](t, resp).Name)

	resp = h.do(t, http.MethodPost, "/api/pages/"+pages.DefaultID+"/select", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pages.DefaultID, h.pages.CurrentID())

	resp = h.do(t, http.MethodGet, "/api/pages/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pages.DefaultID, decodeBody[pages.Page](t, resp).ID)

	resp = h.do(t, http.MethodDelete, "/api/pages/"+pages.DefaultID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, added.ID, h.pages.CurrentID())

	// the last page stays
	resp = h.do(t, http.MethodDelete, "/api/pages/"+added.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, h.pages.Pages(), 1)
}

func TestPageErrors(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)

	resp := h.do(t, http.MethodPost, "/api/pages/nope/select", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, decodeBody[map[string]string](t, resp)["error"])

	resp = h.do(t, http.MethodPost, "/api/pages", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/pages", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestGenerateStatusMapping(t *testing.T) {
	unavailable := &providers.Error{Kind: providers.ErrModelUnavailable, Model: "gpt-4o", Message: "overloaded"}

	tests := []struct {
		name    string
		gen     stubGenerator
		withKey bool
		body    session.GenerateRequest
		want    int
	}{
		{"ok", stubGenerator{html: "<p>hi</p>"}, true, session.GenerateRequest{Description: "a start page"}, http.StatusOK},
		{"blank description", stubGenerator{}, true, session.GenerateRequest{Description: " "}, http.StatusBadRequest},
		{"no key", stubGenerator{}, false, session.GenerateRequest{Description: "x"}, http.StatusUnauthorized},
		{"vendor auth", stubGenerator{err: &providers.Error{Kind: providers.ErrAuth, Status: 401}}, true, session.GenerateRequest{Description: "x"}, http.StatusUnauthorized},
		{"model unavailable", stubGenerator{err: unavailable}, true, session.GenerateRequest{Description: "x"}, http.StatusBadGateway},
		{"provider", stubGenerator{err: &providers.Error{Kind: providers.ErrProvider, Status: 500}}, true, session.GenerateRequest{Description: "x"}, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.gen, tc.withKey)
			resp := h.do(t, http.MethodPost, "/api/generate", tc.body)
			require.Equal(t, tc.want, resp.StatusCode)
			if tc.want == http.StatusOK {
				p := decodeBody[pages.Page](t, resp)
				assert.Contains(t, p.GeneratedCode, "<p>hi</p>")
				return
			}
			assert.NotEmpty(t, decodeBody[map[string]string](t, resp)["error"])
		})
	}
}

func TestGenerateInFlightConflict(t *testing.T) {
	h := newHarness(t, stubGenerator{html: "<p>x</p>"}, true)
	release, err := h.guard.Acquire(context.Background(), h.pages.CurrentID())
	require.NoError(t, err)
	defer release()

	resp := h.do(t, http.MethodPost, "/api/generate", session.GenerateRequest{Description: "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCredentials(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)

	st := decodeBody[credentials.Status](t, h.do(t, http.MethodGet, "/api/credentials", nil))
	assert.Equal(t, providers.OpenAI, st.Provider)
	assert.False(t, st.IsKeySet)

	resp := h.do(t, http.MethodPut, "/api/credentials/openai", map[string]string{"apiKey": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, h.creds.IsKeySet())

	resp = h.do(t, http.MethodPut, "/api/credentials/openai", map[string]string{"apiKey": "sk-live"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[credentials.Status](t, resp).IsKeySet)

	resp = h.do(t, http.MethodPut, "/api/credentials/provider", map[string]string{"provider": "anthropic"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[credentials.Status](t, resp)
	assert.Equal(t, providers.Anthropic, st.Provider)
	assert.False(t, st.IsKeySet)
	assert.True(t, st.HasKey[providers.OpenAI])

	resp = h.do(t, http.MethodPut, "/api/credentials/provider", map[string]string{"provider": "gemini"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNavigateAndLinks(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)
	ctx := context.Background()
	contact, err := h.pages.AddPage(ctx, "Contact", "")
	require.NoError(t, err)
	require.NoError(t, h.pages.UpdatePageCode(ctx, pages.DefaultID, `<a href="/contact.html">c</a><a href="/missing.html">m</a>`))
	require.NoError(t, h.pages.SelectPage(ctx, pages.DefaultID))

	resp := h.do(t, http.MethodPost, "/api/navigate", map[string]string{"href": "/contact.html?from=home"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, contact.ID, h.pages.CurrentID())

	resp = h.do(t, http.MethodPost, "/api/navigate", map[string]string{"href": "/nowhere.html"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, contact.ID, h.pages.CurrentID())

	resp = h.do(t, http.MethodGet, "/api/pages/"+pages.DefaultID+"/links", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	links := decodeBody[struct {
		Links []struct {
			Href     string `json:"href"`
			PageID   string `json:"pageId"`
			Dangling bool   `json:"dangling"`
		} `json:"links"`
	}](t, resp).Links
	require.Len(t, links, 2)
	assert.Equal(t, contact.ID, links[0].PageID)
	assert.True(t, links[1].Dangling)
}

func TestPreviewAndExport(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)
	ctx := context.Background()
	p, err := h.pages.AddPage(ctx, "Apply Now", "")
	require.NoError(t, err)
	require.NoError(t, h.pages.UpdatePageCode(ctx, p.ID, "<p>apply</p>"))

	resp := h.do(t, http.MethodGet, "/preview/"+p.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sandbox allow-scripts", resp.Header.Get("Content-Security-Policy"))
	doc, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<p>apply</p>")
	assert.Contains(t, string(doc), "<title>Apply Now</title>")

	resp = h.do(t, http.MethodGet, "/export/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="apply-now.html"`, resp.Header.Get("Content-Disposition"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>apply</p>", string(body))

	resp = h.do(t, http.MethodGet, "/export/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketPushesEvents(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap session.Event
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, EventSnapshot, snap.Type)
	assert.Equal(t, pages.DefaultID, snap.PageID)

	resp := h.do(t, http.MethodPost, "/api/pages", map[string]string{"name": "Contact"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ev session.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, session.EventPageAdded, ev.Type)
	require.NotNil(t, ev.Page)
	assert.Equal(t, "Contact", ev.Page.Name)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t, stubGenerator{}, false)
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"

	hdr := http.Header{}
	hdr.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrStale))
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrInFlight))
	assert.Equal(t, http.StatusBadRequest, statusFor(credentials.ErrValidation))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
