package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"hosa-study-board/internal/docstore"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Notifier carries store changes between server instances over Redis pub/sub,
// one channel per collection.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func channel(collection string) string {
	return "feed:" + collection
}

func (n *Notifier) Publish(ctx context.Context, change docstore.Change) error {
	payload, err := encodeChange(change)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channel(change.Collection), payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so any change
// published afterwards is delivered.
func (n *Notifier) Subscribe(ctx context.Context, collection string) (docstore.Subscription, error) {
	ps := n.client.Subscribe(ctx, channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel(collection), err)
	}

	sub := &subscription{
		ps:   ps,
		ch:   make(chan docstore.Change, docstore.SubscriptionBuffer),
		done: make(chan struct{}),
	}
	go sub.pump(ps.Channel())
	return sub, nil
}

type subscription struct {
	ps   *redis.PubSub
	ch   chan docstore.Change
	done chan struct{}
	once sync.Once
}

func (s *subscription) pump(msgs <-chan *redis.Message) {
	defer close(s.done)
	defer close(s.ch)
	for msg := range msgs {
		change, err := decodeChange([]byte(msg.Payload))
		if err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change")
			continue
		}
		docstore.OfferChange(s.ch, change)
	}
}

func (s *subscription) Changes() <-chan docstore.Change {
	return s.ch
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		<-s.done
	})
	return err
}

func encodeChange(c docstore.Change) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"collection": c.Collection,
		"id":         c.ID,
		"seq":        strconv.FormatUint(c.Seq, 10),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

func decodeChange(payload []byte) (docstore.Change, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return docstore.Change{}, err
	}
	fields := msg.GetFields()
	seq, err := strconv.ParseUint(fields["seq"].GetStringValue(), 10, 64)
	if err != nil {
		return docstore.Change{}, fmt.Errorf("change seq: %w", err)
	}
	collection := fields["collection"].GetStringValue()
	if collection == "" {
		return docstore.Change{}, fmt.Errorf("change without collection")
	}
	return docstore.Change{
		Collection: collection,
		ID:         fields["id"].GetStringValue(),
		Seq:        seq,
	}, nil
}
