// Package stream fans audit entries out to live subscribers, such as a bot
// adapter mirroring moderation activity into a log channel.
package stream

import (
	"context"
	"sync"

	"github.com/bredsky212/Logiq212/internal/audit"
)

// Hub fans out entries to every subscriber of the entry's community.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	communityID string
	ch          chan audit.Entry
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for communityID ("" receives every
// community). The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, communityID string) <-chan audit.Entry {
	ch := make(chan audit.Entry, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{communityID: communityID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers e to matching subscribers. Slow subscribers miss entries
// rather than block the writer.
func (h *Hub) Publish(e audit.Entry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.communityID != "" && s.communityID != e.CommunityID {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
