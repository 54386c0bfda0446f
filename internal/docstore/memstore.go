package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDoc struct {
	data      []byte
	version   uint64
	created   uint64
	updatedAt time.Time
}

// MemStore keeps every collection in process memory. It backs development
// runs without Postgres and the tests.
type MemStore struct {
	mu        sync.RWMutex
	docs      map[string]map[string]*memDoc
	seqs      map[string]uint64
	created   uint64
	publisher Publisher
	policy    RetryPolicy

	hookMu       sync.Mutex
	beforeCommit func()
}

func NewMemStore(publisher Publisher, policy RetryPolicy) *MemStore {
	return &MemStore{
		docs:      make(map[string]map[string]*memDoc),
		seqs:      make(map[string]uint64),
		publisher: publisher,
		policy:    policy,
	}
}

// OnBeforeCommit installs a hook that runs before every transaction commit
// attempt, outside the store lock. It lets callers simulate a concurrent writer.
func (s *MemStore) OnBeforeCommit(hook func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.beforeCommit = hook
}

func (s *MemStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemStore) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(ref), nil
}

func (s *MemStore) snapshotLocked(ref Ref) Snapshot {
	snap := Snapshot{Ref: ref, Seq: s.seqs[ref.Collection]}
	if d, ok := s.docs[ref.Collection][ref.ID]; ok {
		snap.Exists = true
		snap.Version = d.version
		snap.Data = append(json.RawMessage(nil), d.data...)
		snap.UpdatedAt = d.updatedAt
	}
	return snap
}

func (s *MemStore) Set(ctx context.Context, ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.putLocked(ref, data)
	change := s.bumpLocked(ref.Collection, ref.ID)
	s.mu.Unlock()

	publish(ctx, s.publisher, []Change{change})
	return nil
}

func (s *MemStore) Update(ctx context.Context, ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.docs[ref.Collection][ref.ID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("updating %s: %w", ref.Path(), ErrNotFound)
	}
	s.putLocked(ref, data)
	change := s.bumpLocked(ref.Collection, ref.ID)
	s.mu.Unlock()

	publish(ctx, s.publisher, []Change{change})
	return nil
}

func (s *MemStore) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.docs[ref.Collection][ref.ID]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.docs[ref.Collection], ref.ID)
	change := s.bumpLocked(ref.Collection, ref.ID)
	s.mu.Unlock()

	publish(ctx, s.publisher, []Change{change})
	return nil
}

func (s *MemStore) Add(ctx context.Context, collection string, v any) (Ref, error) {
	ref := Doc(collection, uuid.NewString())
	if err := s.Set(ctx, ref, v); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (s *MemStore) DeleteAll(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if len(s.docs[collection]) == 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.docs, collection)
	change := s.bumpLocked(collection, "")
	s.mu.Unlock()

	publish(ctx, s.publisher, []Change{change})
	return nil
}

func (s *MemStore) Seq(ctx context.Context, collection string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seqs[collection], nil
}

func (s *MemStore) Query(ctx context.Context, q Query) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}

	s.mu.RLock()
	type row struct {
		snap    Snapshot
		fields  map[string]any
		created uint64
	}
	rows := make([]row, 0, len(s.docs[q.Collection]))
	for id, d := range s.docs[q.Collection] {
		var fields map[string]any
		if err := json.Unmarshal(d.data, &fields); err != nil {
			s.mu.RUnlock()
			return QueryResult{}, fmt.Errorf("decoding %s/%s: %w", q.Collection, id, err)
		}
		if !matches(fields, q.Where) {
			continue
		}
		rows = append(rows, row{
			snap:    s.snapshotLocked(Doc(q.Collection, id)),
			fields:  fields,
			created: d.created,
		})
	}
	seq := s.seqs[q.Collection]
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].created < rows[j].created })
	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := numberField(rows[i].fields, q.OrderBy), numberField(rows[j].fields, q.OrderBy)
			if q.Desc {
				return a > b
			}
			return a < b
		})
	}

	result := QueryResult{Docs: make([]Snapshot, 0, len(rows)), Seq: seq}
	for _, r := range rows {
		result.Docs = append(result.Docs, r.snap)
	}
	return result, nil
}

func (s *MemStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return s.policy.run(ctx, func() error {
		tx := &memTx{store: s, reads: make(map[Ref]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		s.hookMu.Lock()
		hook := s.beforeCommit
		s.hookMu.Unlock()
		if hook != nil {
			hook()
		}

		changes, err := s.commit(tx)
		if err != nil {
			return err
		}
		publish(ctx, s.publisher, changes)
		return nil
	})
}

func (s *MemStore) commit(tx *memTx) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ref, version := range tx.reads {
		var current uint64
		if d, ok := s.docs[ref.Collection][ref.ID]; ok {
			current = d.version
		}
		if current != version {
			return nil, fmt.Errorf("%s changed since read: %w", ref.Path(), ErrConflict)
		}
	}

	changes := make([]Change, 0, len(tx.writes))
	for _, w := range tx.writes {
		if w.delete {
			delete(s.docs[w.ref.Collection], w.ref.ID)
		} else {
			s.putLocked(w.ref, w.data)
		}
		changes = append(changes, s.bumpLocked(w.ref.Collection, w.ref.ID))
	}
	return changes, nil
}

func (s *MemStore) putLocked(ref Ref, data []byte) {
	coll, ok := s.docs[ref.Collection]
	if !ok {
		coll = make(map[string]*memDoc)
		s.docs[ref.Collection] = coll
	}
	now := time.Now().UTC()
	if d, ok := coll[ref.ID]; ok {
		d.data = data
		d.version++
		d.updatedAt = now
		return
	}
	s.created++
	coll[ref.ID] = &memDoc{data: data, version: 1, created: s.created, updatedAt: now}
}

func (s *MemStore) bumpLocked(collection, id string) Change {
	s.seqs[collection]++
	return Change{Collection: collection, ID: id, Seq: s.seqs[collection]}
}

type memWrite struct {
	ref    Ref
	data   []byte
	delete bool
}

type memTx struct {
	store  *MemStore
	reads  map[Ref]uint64
	writes []memWrite
}

func (t *memTx) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	snap, err := t.store.Get(ctx, ref)
	if err != nil {
		return Snapshot{}, err
	}
	if _, seen := t.reads[ref]; !seen {
		t.reads[ref] = snap.Version
	}
	return snap, nil
}

func (t *memTx) Set(ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, memWrite{ref: ref, data: data})
	return nil
}

func (t *memTx) Delete(ref Ref) {
	t.writes = append(t.writes, memWrite{ref: ref, delete: true})
}

func matches(fields map[string]any, where []Filter) bool {
	for _, f := range where {
		v, ok := fields[f.Field]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func numberField(fields map[string]any, name string) float64 {
	if n, ok := fields[name].(float64); ok {
		return n
	}
	return 0
}
