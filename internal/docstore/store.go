// Package docstore is a small document database: named documents grouped in
// collections, optimistic read-modify-write transactions and per-collection
// change notification. Document bodies are JSON.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a transaction lost every attempt to a concurrent writer.
	ErrConflict = errors.New("transaction conflict")
)

// Ref addresses one document inside a collection.
type Ref struct {
	Collection string
	ID         string
}

func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// ParseRef accepts "collection/id".
func ParseRef(path string) (Ref, error) {
	collection, id, ok := strings.Cut(path, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return Ref{}, fmt.Errorf("invalid document path %q", path)
	}
	return Ref{Collection: collection, ID: id}, nil
}

func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Snapshot is the full value of one document at read time.
type Snapshot struct {
	Ref       Ref
	Exists    bool
	Version   uint64
	Data      json.RawMessage
	UpdatedAt time.Time
	// Seq is the collection sequence observed before the document was read.
	Seq uint64
}

// DataTo decodes the document body into v.
func (s Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("%s: %w", s.Ref.Path(), ErrNotFound)
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", s.Ref.Path(), err)
	}
	return nil
}

// Filter is an equality match on a top-level string field.
type Filter struct {
	Field string
	Value string
}

type Query struct {
	Collection string
	Where      []Filter
	// OrderBy names a numeric top-level field; documents without it sort as 0.
	OrderBy string
	Desc    bool
}

type QueryResult struct {
	Docs []Snapshot
	Seq  uint64
}

// Tx is the handle passed to a transaction function. Reads go to the store,
// writes are buffered and committed only if every read is still current.
type Tx interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ref Ref, v any) error
	Delete(ref Ref)
}

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	// Get never returns ErrNotFound; check Snapshot.Exists.
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ctx context.Context, ref Ref, v any) error
	// Update replaces the body of an existing document.
	Update(ctx context.Context, ref Ref, v any) error
	Delete(ctx context.Context, ref Ref) error
	Add(ctx context.Context, collection string, v any) (Ref, error)
	Query(ctx context.Context, q Query) (QueryResult, error)
	DeleteAll(ctx context.Context, collection string) error
	// Seq returns the collection's current write sequence.
	Seq(ctx context.Context, collection string) (uint64, error)
	// RunTransaction may invoke fn several times; fn must not have side effects.
	RunTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
}

// Change announces that a collection moved to Seq. ID is empty for bulk changes.
type Change struct {
	Collection string
	ID         string
	Seq        uint64
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

type Subscription interface {
	Changes() <-chan Change
	Close() error
}

type Notifier interface {
	Publisher
	Subscribe(ctx context.Context, collection string) (Subscription, error)
}

func encode(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return append([]byte(nil), raw...), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return b, nil
}

func publish(ctx context.Context, p Publisher, changes []Change) {
	if p == nil {
		return
	}
	for _, c := range changes {
		if err := p.Publish(ctx, c); err != nil {
			logPublishError(c, err)
		}
	}
}
