package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"govgen/internal/pages"
)

const (
	EventPageAdded    = "page.added"
	EventPageRenamed  = "page.renamed"
	EventPageDeleted  = "page.deleted"
	EventPageSelected = "page.selected"
	EventPageUpdated  = "page.updated"
)

type Event struct {
	Type   string      `json:"type"`
	PageID string      `json:"pageId"`
	Page   *pages.Page `json:"page,omitempty"`
	At     time.Time   `json:"at"`
}

// broker fans events out to subscribers. A subscriber that falls behind
// loses events rather than blocking the publisher.
type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
	log  zerolog.Logger
}

func newBroker(log zerolog.Logger) *broker {
	return &broker{subs: map[int]chan Event{}, log: log}
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.Warn().Int("subscriber", id).Str("event", e.Type).Msg("subscriber is slow, event dropped")
		}
	}
}
