package docstore

import (
	"context"
	"sync"
)

// LocalNotifier fans changes out to subscribers in the same process. It is
// used when Redis is unavailable and in tests.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[*localSubscription]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[*localSubscription]struct{})}
}

func (n *LocalNotifier) Publish(ctx context.Context, change Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[change.Collection] {
		sub.offer(change)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context, collection string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &localSubscription{
		ch: make(chan Change, SubscriptionBuffer),
		close: func(s *localSubscription) {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[collection], s)
		},
	}

	n.mu.Lock()
	if n.subs[collection] == nil {
		n.subs[collection] = make(map[*localSubscription]struct{})
	}
	n.subs[collection][sub] = struct{}{}
	n.mu.Unlock()

	return sub, nil
}

// SubscriptionBuffer is how many undelivered changes a subscriber may hold.
const SubscriptionBuffer = 16

// OfferChange queues c on ch without blocking. When ch is full, one queued
// change is evicted and c goes in as a bulk change (empty ID) carrying the
// higher of the two seqs, so every feed on the collection re-reads at least
// once more. ch must have a single sender.
func OfferChange(ch chan Change, c Change) {
	select {
	case ch <- c:
		return
	default:
	}

	marker := Change{Collection: c.Collection, Seq: c.Seq}
	select {
	case evicted := <-ch:
		if evicted.Seq > marker.Seq {
			marker.Seq = evicted.Seq
		}
	default:
	}
	select {
	case ch <- marker:
	default:
	}
}

type localSubscription struct {
	ch    chan Change
	once  sync.Once
	close func(*localSubscription)
}

func (s *localSubscription) offer(c Change) {
	OfferChange(s.ch, c)
}

func (s *localSubscription) Changes() <-chan Change {
	return s.ch
}

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.close(s)
		close(s.ch)
	})
	return nil
}
