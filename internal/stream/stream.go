package stream

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"greenroom.fm/internal/ids"
)

// Event kinds carried on the live activity feed.
const (
	KindPurchase           = "purchase.confirmed"
	KindProposalCreated    = "proposal.created"
	KindProposalClosed     = "proposal.closed"
	KindVoteCast           = "vote.cast"
	KindRevenueRecorded    = "revenue.recorded"
	KindRevenueDistributed = "revenue.distributed"
)

// Event is one item on the live activity feed (SSE clients).
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ArtistID  uint64    `json:"artist_id,omitempty"`
	UserID    uint64    `json:"user_id,omitempty"`
	SubjectID uint64    `json:"subject_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs feed events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
	rnd  *rand.Rand
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan Event),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish stamps the event id and timestamp if unset, then fan-outs to all
// subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = ids.New()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

var demoSources = []string{"bandcamp", "tour", "merch", "sync_license", "vinyl"}

var demoKinds = []string{
	KindPurchase, KindPurchase, KindPurchase,
	KindVoteCast, KindVoteCast, KindVoteCast, KindVoteCast,
	KindProposalCreated,
	KindRevenueRecorded, KindRevenueRecorded,
	KindRevenueDistributed,
}

// RandomDemoEvent creates artificial feed activity for demo installs.
func (s *Stream) RandomDemoEvent() Event {
	kind := demoKinds[s.rnd.Intn(len(demoKinds))]
	evt := Event{
		Kind:      kind,
		ArtistID:  uint64(1 + s.rnd.Intn(8)),
		UserID:    uint64(1 + s.rnd.Intn(200)),
		SubjectID: uint64(1 + s.rnd.Intn(40)),
		Timestamp: time.Now().UTC(),
	}
	if kind == KindRevenueRecorded || kind == KindRevenueDistributed {
		evt.Detail = demoSources[s.rnd.Intn(len(demoSources))]
	}
	return evt
}

// StartDemo emits random events at the provided interval until the returned stop
// function is called.
func (s *Stream) StartDemo(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Publish(s.RandomDemoEvent())
			}
		}
	}()
	return cancel
}
