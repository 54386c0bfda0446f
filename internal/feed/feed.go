// Package feed keeps live subscriptions to store documents and collections and
// hands every new full state to a handler.
package feed

import (
	"context"
	"fmt"
	"sync"

	"hosa-study-board/internal/docstore"

	"github.com/rs/zerolog/log"
)

// Target is what a feed follows: one document, or every document matched by
// a collection query.
type Target struct {
	doc   *docstore.Ref
	query *docstore.Query
}

func DocTarget(ref docstore.Ref) Target {
	return Target{doc: &ref}
}

func QueryTarget(q docstore.Query) Target {
	return Target{query: &q}
}

func (t Target) collection() string {
	if t.doc != nil {
		return t.doc.Collection
	}
	return t.query.Collection
}

func (t Target) String() string {
	if t.doc != nil {
		return t.doc.Path()
	}
	return t.query.Collection
}

// concerns reports whether a change can affect the target.
func (t Target) concerns(c docstore.Change) bool {
	if t.doc == nil {
		return true
	}
	return c.ID == "" || c.ID == t.doc.ID
}

// Snapshot is the complete state of a target. Doc is set for document
// targets, Docs for query targets.
type Snapshot struct {
	Seq  uint64
	Doc  docstore.Snapshot
	Docs []docstore.Snapshot
}

type Handler func(Snapshot)

func read(ctx context.Context, store docstore.Store, t Target) (Snapshot, error) {
	if t.doc != nil {
		snap, err := store.Get(ctx, *t.doc)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Seq: snap.Seq, Doc: snap}, nil
	}
	res, err := store.Query(ctx, *t.query)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Seq: res.Seq, Docs: res.Docs}, nil
}

// Manager owns at most one live subscription per feed id.
type Manager struct {
	store    docstore.Store
	notifier docstore.Notifier

	mu     sync.Mutex
	feeds  map[string]*liveFeed
	closed bool
}

func NewManager(store docstore.Store, notifier docstore.Notifier) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		feeds:    make(map[string]*liveFeed),
	}
}

type liveFeed struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe starts following target under feedID. handler is called with the
// initial state and again after every change, one call at a time. Calling
// Subscribe for a feed id that is already live does nothing.
func (m *Manager) Subscribe(ctx context.Context, feedID string, target Target, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("feed manager closed")
	}
	if _, ok := m.feeds[feedID]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	// Listen before the first read so no change can fall between the two.
	sub, err := m.notifier.Subscribe(ctx, target.collection())
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s: %w", target, err)
	}

	f := &liveFeed{cancel: cancel, done: make(chan struct{})}
	m.feeds[feedID] = f

	go func() {
		defer close(f.done)
		defer sub.Close()
		m.run(ctx, feedID, target, sub, handler)
	}()
	return nil
}

func (m *Manager) run(ctx context.Context, feedID string, target Target, sub docstore.Subscription, handler Handler) {
	logger := log.With().Str("feed", feedID).Str("target", target.String()).Logger()

	var (
		last      uint64
		delivered bool
	)
	deliver := func() {
		snap, err := read(ctx, m.store, target)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("feed read failed, keeping last state")
			}
			return
		}
		if delivered && snap.Seq <= last {
			logger.Debug().Uint64("seq", snap.Seq).Uint64("last", last).Msg("dropping stale snapshot")
			return
		}
		last, delivered = snap.Seq, true
		handler(snap)
	}

	deliver()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.Changes():
			if !ok {
				if ctx.Err() == nil {
					logger.Warn().Msg("change stream closed")
				}
				return
			}
			if delivered && c.Seq <= last {
				continue
			}
			if !target.concerns(c) {
				continue
			}
			deliver()
		}
	}
}

// Unsubscribe stops feedID and waits until its handler can no longer run. It
// must not be called from inside that handler.
func (m *Manager) Unsubscribe(feedID string) {
	m.mu.Lock()
	f, ok := m.feeds[feedID]
	delete(m.feeds, feedID)
	m.mu.Unlock()

	if ok {
		f.cancel()
		<-f.done
	}
}

// Active reports whether feedID is live.
func (m *Manager) Active(feedID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.feeds[feedID]
	return ok
}

// Close stops every feed. Subscribe fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	feeds := m.feeds
	m.feeds = make(map[string]*liveFeed)
	m.closed = true
	m.mu.Unlock()

	for _, f := range feeds {
		f.cancel()
	}
	for _, f := range feeds {
		<-f.done
	}
}
