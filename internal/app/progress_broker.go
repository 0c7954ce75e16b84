package app

import (
	"sync"

	"github.com/yourusername/streamsave-go/internal/domain"
)

// ProgressUpdate is one observation of a session, fanned out to live
// subscribers (the WebSocket handler)
type ProgressUpdate struct {
	ID       string       `json:"id"`
	Phase    domain.Phase `json:"phase"`
	Progress int          `json:"progress"`
	Status   string       `json:"status"`
	FileName string       `json:"file_name,omitempty"`
	Error    bool         `json:"error"`
}

// ProgressBroker fans session progress out to any number of subscribers per
// session id. Publishing never blocks: slow subscribers lose updates rather
// than stalling the download.
type ProgressBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan ProgressUpdate]struct{}
}

// NewProgressBroker creates an empty broker
func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{
		subs: make(map[string]map[chan ProgressUpdate]struct{}),
	}
}

// Subscribe registers for updates about one session id
func (b *ProgressBroker) Subscribe(id string) chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 16)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[id] == nil {
		b.subs[id] = make(map[chan ProgressUpdate]struct{})
	}
	b.subs[id][ch] = struct{}{}

	return ch
}

// Unsubscribe removes a subscriber channel
func (b *ProgressBroker) Unsubscribe(id string, ch chan ProgressUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[id]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, id)
		}
	}
}

// Publish delivers an update to all subscribers of its session id
func (b *ProgressBroker) Publish(update ProgressUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[update.ID] {
		select {
		case ch <- update:
		default:
		}
	}
}
