package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"govgen/internal/credentials"
	"govgen/internal/pages"
	"govgen/internal/prompt"
	"govgen/internal/providers"
	"govgen/internal/session"
)

var errBadRequest = errors.New("malformed request body")

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api/pages", func(r chi.Router) {
		r.Get("/", s.handleListPages())
		r.Post("/", s.handleAddPage())
		r.Get("/current", s.handleCurrentPage())
		r.Patch("/{id}", s.handleRenamePage())
		r.Delete("/{id}", s.handleDeletePage())
		r.Post("/{id}/select", s.handleSelectPage())
		r.Get("/{id}/links", s.handlePageLinks())
		r.Get("/{id}/context", s.handlePageContext())
	})

	r.Get("/api/catalogue", s.handleCatalogue())
	r.Post("/api/generate", s.handleGenerate())
	r.Post("/api/navigate", s.handleNavigate())

	r.Route("/api/credentials", func(r chi.Router) {
		r.Get("/", s.handleCredentialStatus())
		r.Put("/provider", s.handleSetProvider())
		r.Put("/{provider}", s.handleSetKey())
	})

	r.Get("/preview/{id}", s.handlePreview())
	r.Get("/export/{id}", s.handleExport())
}

type pageList struct {
	Pages         []pages.Page `json:"pages"`
	CurrentPageID string       `json:"currentPageId"`
}

func (s *Server) handleListPages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := pageList{Pages: s.session.Pages()}
		if cur, ok := s.session.Current(); ok {
			list.CurrentPageID = cur.ID
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleAddPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if !decode(w, r, &body) {
			return
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "page name must not be empty")
			return
		}
		p, err := s.session.AddPage(r.Context(), name, body.Description)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func (s *Server) handleCurrentPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.session.Current()
		if !ok {
			s.fail(w, r, pages.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleRenamePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if !decode(w, r, &body) {
			return
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "page name must not be empty")
			return
		}
		p, err := s.session.RenamePage(r.Context(), chi.URLParam(r, "id"), name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleDeletePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.session.DeletePage(r.Context(), chi.URLParam(r, "id")); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSelectPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.session.SelectPage(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handlePageLinks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := s.session.Links(chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"links": links})
	}
}

func (s *Server) handlePageContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := s.session.Page(id); !ok {
			s.fail(w, r, pages.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"context": s.session.Context(id)})
	}
}

type catalogue struct {
	PageTypes         []prompt.Option     `json:"pageTypes"`
	Components        []prompt.Option     `json:"components"`
	DefaultPageType   string              `json:"defaultPageType"`
	DefaultComponents []string            `json:"defaultComponents"`
	Models            map[string][]string `json:"models"`
}

func (s *Server) handleCatalogue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, catalogue{
			PageTypes:         prompt.PageTypes,
			Components:        prompt.Components,
			DefaultPageType:   prompt.DefaultPageType,
			DefaultComponents: prompt.DefaultComponents(),
			Models:            s.cfg.Models,
		})
	}
}

func (s *Server) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.GenerateRequest
		if !decode(w, r, &req) {
			return
		}

		// A browser that navigates away must not abort a paid call.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.RequestTimeout)
		defer cancel()

		p, err := s.session.Generate(ctx, req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleNavigate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Href string `json:"href"`
		}
		if !decode(w, r, &body) {
			return
		}
		p, err := s.session.Navigate(r.Context(), body.Href)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleCredentialStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.session.Credentials().Status())
	}
}

func (s *Server) handleSetProvider() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Provider string `json:"provider"`
		}
		if !decode(w, r, &body) {
			return
		}
		creds := s.session.Credentials()
		if err := creds.SetProvider(r.Context(), body.Provider); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, creds.Status())
	}
}

func (s *Server) handleSetKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			APIKey string `json:"apiKey"`
		}
		if !decode(w, r, &body) {
			return
		}
		creds := s.session.Credentials()
		if err := creds.SetKey(r.Context(), chi.URLParam(r, "provider"), body.APIKey); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, creds.Status())
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.session.StandaloneDocument(pageParam(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(doc))
	}
}

func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, body, err := s.session.Export(pageParam(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Write(body)
	}
}

// pageParam reads the {id} segment; "current" addresses the selected page.
func pageParam(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if id == "current" {
		return ""
	}
	return id
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, credentials.ErrValidation),
		errors.Is(err, credentials.ErrUnknownProvider),
		errors.Is(err, session.ErrEmptyDescription):
		return http.StatusBadRequest
	case errors.Is(err, providers.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, pages.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInFlight), errors.Is(err, session.ErrStale):
		return http.StatusConflict
	case errors.Is(err, providers.ErrModelUnavailable), errors.Is(err, providers.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadRequest, err).Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
