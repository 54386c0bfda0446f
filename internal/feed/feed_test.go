package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hosa-study-board/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	N int `json:"n"`
}

func setup() (*docstore.MemStore, *docstore.LocalNotifier, *Manager) {
	n := docstore.NewLocalNotifier()
	s := docstore.NewMemStore(n, docstore.DefaultRetryPolicy)
	return s, n, NewManager(s, n)
}

func collect() (Handler, chan Snapshot) {
	ch := make(chan Snapshot, 32)
	return func(s Snapshot) { ch <- s }, ch
}

func next(t *testing.T, ch chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func none(t *testing.T, ch chan Snapshot) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("unexpected snapshot seq %d", s.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_DocFeedDeliversInitialAndChanges(t *testing.T) {
	s, _, m := setup()
	defer m.Close()
	ctx := context.Background()
	ref := docstore.Doc("meta", "points")

	handler, ch := collect()
	require.NoError(t, m.Subscribe(ctx, "points", DocTarget(ref), handler))

	first := next(t, ch)
	assert.False(t, first.Doc.Exists)

	require.NoError(t, s.Set(ctx, ref, item{N: 1}))
	second := next(t, ch)
	require.True(t, second.Doc.Exists)
	assert.Greater(t, second.Seq, first.Seq)

	var got item
	require.NoError(t, second.Doc.DataTo(&got))
	assert.Equal(t, 1, got.N)
}

func TestManager_DocFeedIgnoresSiblingDocuments(t *testing.T) {
	s, _, m := setup()
	defer m.Close()
	ctx := context.Background()

	handler, ch := collect()
	require.NoError(t, m.Subscribe(ctx, "todos", DocTarget(docstore.Doc("meta", "todos")), handler))
	next(t, ch)

	require.NoError(t, s.Set(ctx, docstore.Doc("meta", "points"), item{N: 2}))
	none(t, ch)
}

func TestManager_QueryFeedSeesWholeCollection(t *testing.T) {
	s, _, m := setup()
	defer m.Close()
	ctx := context.Background()

	handler, ch := collect()
	q := docstore.Query{Collection: "notes", OrderBy: "n", Desc: true}
	require.NoError(t, m.Subscribe(ctx, "notes", QueryTarget(q), handler))
	assert.Empty(t, next(t, ch).Docs)

	_, err := s.Add(ctx, "notes", item{N: 1})
	require.NoError(t, err)
	assert.Len(t, next(t, ch).Docs, 1)

	_, err = s.Add(ctx, "notes", item{N: 5})
	require.NoError(t, err)
	snap := next(t, ch)
	require.Len(t, snap.Docs, 2)
	var top item
	require.NoError(t, snap.Docs[0].DataTo(&top))
	assert.Equal(t, 5, top.N)

	require.NoError(t, s.DeleteAll(ctx, "notes"))
	assert.Empty(t, next(t, ch).Docs)
}

func TestManager_SiblingBurstDoesNotHideOwnChange(t *testing.T) {
	s, _, m := setup()
	defer m.Close()
	ctx := context.Background()
	todos := docstore.Doc("meta", "todos")

	release := make(chan struct{})
	var once sync.Once
	ch := make(chan Snapshot, 32)
	handler := func(snap Snapshot) {
		ch <- snap
		// hold the feed after the first delivery so changes pile up
		once.Do(func() { <-release })
	}
	require.NoError(t, m.Subscribe(ctx, "todos", DocTarget(todos), handler))
	assert.False(t, next(t, ch).Doc.Exists)

	for i := range docstore.SubscriptionBuffer + 4 {
		require.NoError(t, s.Set(ctx, docstore.Doc("meta", "points"), item{N: i}))
	}
	require.NoError(t, s.Set(ctx, todos, item{N: 42}))
	close(release)

	snap := next(t, ch)
	require.True(t, snap.Doc.Exists)
	var got item
	require.NoError(t, snap.Doc.DataTo(&got))
	assert.Equal(t, 42, got.N)
}

func TestManager_SubscribeIsIdempotent(t *testing.T) {
	s, _, m := setup()
	defer m.Close()
	ctx := context.Background()
	ref := docstore.Doc("meta", "points")

	first, ch1 := collect()
	second, ch2 := collect()
	require.NoError(t, m.Subscribe(ctx, "points", DocTarget(ref), first))
	require.NoError(t, m.Subscribe(ctx, "points", DocTarget(ref), second))
	next(t, ch1)

	require.NoError(t, s.Set(ctx, ref, item{N: 1}))
	next(t, ch1)
	none(t, ch2)
}

func TestManager_UnsubscribeReleasesListener(t *testing.T) {
	s, _, m := setup()
	defer m.Close()
	ctx := context.Background()
	ref := docstore.Doc("meta", "points")

	handler, ch := collect()
	require.NoError(t, m.Subscribe(ctx, "points", DocTarget(ref), handler))
	next(t, ch)

	m.Unsubscribe("points")
	assert.False(t, m.Active("points"))

	require.NoError(t, s.Set(ctx, ref, item{N: 1}))
	none(t, ch)

	// The id can be reused once released.
	require.NoError(t, m.Subscribe(ctx, "points", DocTarget(ref), handler))
	assert.True(t, next(t, ch).Doc.Exists)
}

func TestManager_CloseRejectsNewFeeds(t *testing.T) {
	_, _, m := setup()
	m.Close()

	err := m.Subscribe(context.Background(), "x", DocTarget(docstore.Doc("meta", "x")), func(Snapshot) {})

	assert.Error(t, err)
}

// scriptedStore answers Get with queued results.
type scriptedStore struct {
	docstore.Store
	mu      sync.Mutex
	results []result
}

type result struct {
	seq uint64
	err error
}

func (s *scriptedStore) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Seq: r.seq, Data: []byte(`{}`)}, r.err
}

func TestManager_DropsStaleAndFailedReads(t *testing.T) {
	n := docstore.NewLocalNotifier()
	store := &scriptedStore{results: []result{
		{seq: 5},
		{seq: 4},
		{err: errors.New("unavailable")},
		{seq: 7},
	}}
	m := NewManager(store, n)
	defer m.Close()
	ctx := context.Background()

	handler, ch := collect()
	require.NoError(t, m.Subscribe(ctx, "points", DocTarget(docstore.Doc("meta", "points")), handler))
	assert.Equal(t, uint64(5), next(t, ch).Seq)

	// Change seqs at or below the last delivered one are skipped outright.
	require.NoError(t, n.Publish(ctx, docstore.Change{Collection: "meta", ID: "points", Seq: 3}))
	none(t, ch)

	require.NoError(t, n.Publish(ctx, docstore.Change{Collection: "meta", ID: "points", Seq: 6}))
	none(t, ch)
	require.NoError(t, n.Publish(ctx, docstore.Change{Collection: "meta", ID: "points", Seq: 6}))
	none(t, ch)
	require.NoError(t, n.Publish(ctx, docstore.Change{Collection: "meta", ID: "points", Seq: 7}))
	assert.Equal(t, uint64(7), next(t, ch).Seq)
}
