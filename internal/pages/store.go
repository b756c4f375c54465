// Package pages owns the named pages being edited and the current
// selection. Every mutation is written through to the persistence port
// before it returns.
package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"govgen/internal/metrics"
	"govgen/internal/storage"
)

const (
	pagesKey   = "govuk-pages"
	currentKey = "govuk-current-page-id"

	DefaultID          = "1"
	DefaultName        = "Home"
	DefaultDescription = "Default home page"
)

var ErrNotFound = errors.New("page not found")

type Page struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	GeneratedCode string    `json:"generatedCode"`
	LastModified  time.Time `json:"lastModified"`
}

type Config struct {
	KV      storage.KV
	Now     func() time.Time
	NewID   func() string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Store struct {
	mu      sync.Mutex
	kv      storage.KV
	now     func() time.Time
	newID   func() string
	log     zerolog.Logger
	metrics *metrics.Metrics

	pages   []Page
	current string
}

// Open restores pages and the selection from kv. With no saved pages a
// single default page is created and persisted.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("pages: kv is nil")
	}
	s := &Store{
		kv:      cfg.KV,
		now:     cfg.Now,
		newID:   cfg.NewID,
		log:     cfg.Logger.With().Str("component", "pages").Logger(),
		metrics: cfg.Metrics,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Round(0) }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	pages, cur, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.pages = pages

	synthesized := false
	if len(s.pages) == 0 {
		s.pages = []Page{{
			ID:           DefaultID,
			Name:         DefaultName,
			Description:  DefaultDescription,
			LastModified: s.now(),
		}}
		synthesized = true
	}

	if s.indexOf(cur) >= 0 {
		s.current = cur
	} else {
		s.current = s.pages[0].ID
	}

	if synthesized {
		if err := s.persist(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load reads the saved pages and selection. Missing or unreadable pages
// come back as nil.
func (s *Store) load(ctx context.Context) ([]Page, string, error) {
	raw, found, err := s.kv.Get(ctx, pagesKey)
	if err != nil {
		return nil, "", fmt.Errorf("load pages: %w", err)
	}
	var pages []Page
	if found && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &pages); err != nil {
			s.log.Error().Err(err).Msg("stored pages are unreadable, starting with the default page")
			pages = nil
		}
	}
	cur, _, err := s.kv.Get(ctx, currentKey)
	if err != nil {
		return nil, "", fmt.Errorf("load current page id: %w", err)
	}
	return pages, cur, nil
}

// refresh adopts whatever another process sharing the kv has saved since
// this store last read or wrote it. Callers hold mu.
func (s *Store) refresh(ctx context.Context) error {
	pages, cur, err := s.load(ctx)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	s.pages = pages
	if s.indexOf(cur) >= 0 {
		s.current = cur
	} else if s.indexOf(s.current) < 0 {
		s.current = s.pages[0].ID
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.pages {
		if s.pages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist(ctx context.Context) error {
	b, err := json.Marshal(s.pages)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}
	if err := s.kv.Set(ctx, pagesKey, string(b)); err != nil {
		return fmt.Errorf("persist pages: %w", err)
	}
	if err := s.kv.Set(ctx, currentKey, s.current); err != nil {
		return fmt.Errorf("persist current page id: %w", err)
	}
	return nil
}

// errUnchanged lets a mutation report that it had nothing to do.
var errUnchanged = errors.New("unchanged")

// mutate reloads the saved record, applies fn under the lock and writes the
// result through. On a failed write the in-memory state is restored.
func (s *Store) mutate(ctx context.Context, op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(ctx); err != nil {
		return err
	}
	prevPages := append([]Page(nil), s.pages...)
	prevCurrent := s.current

	if err := fn(); err != nil {
		s.pages, s.current = prevPages, prevCurrent
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if err := s.persist(ctx); err != nil {
		s.pages, s.current = prevPages, prevCurrent
		s.log.Error().Err(err).Str("op", op).Msg("page mutation rolled back")
		return err
	}
	if s.metrics != nil {
		s.metrics.PageMutations.WithLabelValues(op).Inc()
	}
	return nil
}

// AddPage appends a page with empty code and selects it.
func (s *Store) AddPage(ctx context.Context, name, description string) (Page, error) {
	var added Page
	err := s.mutate(ctx, "add", func() error {
		added = Page{
			ID:           s.newID(),
			Name:         name,
			Description:  description,
			LastModified: s.now(),
		}
		s.pages = append(s.pages, added)
		s.current = added.ID
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return added, nil
}

// SelectPage makes id the current page. Unknown ids are rejected.
func (s *Store) SelectPage(ctx context.Context, id string) error {
	return s.mutate(ctx, "select", func() error {
		if s.indexOf(id) < 0 {
			return fmt.Errorf("select %q: %w", id, ErrNotFound)
		}
		s.current = id
		return nil
	})
}

// RenamePage changes a page's name. Names need not be unique.
func (s *Store) RenamePage(ctx context.Context, id, name string) error {
	return s.mutate(ctx, "rename", func() error {
		i := s.indexOf(id)
		if i < 0 {
			return fmt.Errorf("rename %q: %w", id, ErrNotFound)
		}
		s.pages[i].Name = name
		s.pages[i].LastModified = s.now()
		return nil
	})
}

// DeletePage removes a page. Deleting the only page or an unknown id does
// nothing. When the current page is removed the first remaining page is
// selected.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete", func() error {
		i := s.indexOf(id)
		if len(s.pages) <= 1 || i < 0 {
			return errUnchanged
		}
		s.pages = append(s.pages[:i:i], s.pages[i+1:]...)
		if s.current == id {
			s.current = s.pages[0].ID
		}
		return nil
	})
}

// UpdatePageCode replaces a page's generated HTML.
func (s *Store) UpdatePageCode(ctx context.Context, id, code string) error {
	return s.mutate(ctx, "update", func() error {
		i := s.indexOf(id)
		if i < 0 {
			return fmt.Errorf("update %q: %w", id, ErrNotFound)
		}
		s.pages[i].GeneratedCode = code
		s.pages[i].LastModified = s.now()
		return nil
	})
}

// Pages returns a snapshot of every page in order.
func (s *Store) Pages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Page(nil), s.pages...)
}

func (s *Store) Page(id string) (Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.pages[i], true
	}
	return Page{}, false
}

// FindByName returns the first page whose name matches case-insensitively.
func (s *Store) FindByName(name string) (Page, bool) {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p, true
		}
	}
	return Page{}, false
}

func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Current returns the selected page.
func (s *Store) Current() (Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(s.current); i >= 0 {
		return s.pages[i], true
	}
	return Page{}, false
}
