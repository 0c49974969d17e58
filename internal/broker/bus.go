package broker

import (
	"sync"

	"example.com/tinysns/internal/models"
)

// Bus carries post-created events from the server façade to timeline
// sessions (and, in kafka mode, to the archiver). Events are wake hints:
// sessions re-read the store after each event, so a dropped event delays
// delivery until the next poll tick but never loses a post.
type Bus interface {
	Publish(post models.Post) error
	// PublishUser announces a newly registered username so the archiver
	// learns about users who never post.
	PublishUser(username string) error
	// Subscribe returns a channel of post events and a cancel func that
	// unregisters the subscription and closes the channel.
	Subscribe() (<-chan models.Post, func())
	Close() error
}

const subscriberBuffer = 64

// MemoryBus is the in-process Bus used in single-server deployments.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[int]chan models.Post
	nextID int
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan models.Post)}
}

func (b *MemoryBus) Publish(post models.Post) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- post:
		default:
			// subscriber is behind; it will catch up on its poll tick
		}
	}
	return nil
}

// PublishUser is a no-op in-process: timeline sessions only care about post
// events, and without Kafka there is no archiver listening.
func (b *MemoryBus) PublishUser(string) error { return nil }

func (b *MemoryBus) Subscribe() (<-chan models.Post, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan models.Post)
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	ch := make(chan models.Post, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
