package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one row of the documents table.
type Document struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:64"`
	Data       string `gorm:"type:json;not null"` // json, not jsonb: key order is significant
	Version    uint64 `gorm:"not null;default:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Document) TableName() string {
	return "documents"
}

// CollectionSeq counts writes per collection; feeds use it to order snapshots.
type CollectionSeq struct {
	Name string `gorm:"primaryKey;size:64"`
	Seq  uint64 `gorm:"not null;default:0"`
}

func (CollectionSeq) TableName() string {
	return "collection_seqs"
}

// Models lists the tables GormStore needs migrated.
func Models() []any {
	return []any{&Document{}, &CollectionSeq{}}
}

type GormStore struct {
	db        *gorm.DB
	publisher Publisher
	policy    RetryPolicy
}

func NewGormStore(db *gorm.DB, publisher Publisher, policy RetryPolicy) *GormStore {
	return &GormStore{db: db, publisher: publisher, policy: policy}
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// seq first: a snapshot may be newer than its seq, never older
		seq, err := currentSeq(tx, ref.Collection)
		if err != nil {
			return err
		}
		snap, err = getDocument(tx, ref)
		snap.Seq = seq
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("getting %s: %w", ref.Path(), err)
	}
	return snap, nil
}

func (s *GormStore) Set(ctx context.Context, ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}

	var change Change
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertDocument(tx, ref, data); err != nil {
			return err
		}
		change, err = bumpSeq(tx, ref.Collection, ref.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("setting %s: %w", ref.Path(), err)
	}

	publish(ctx, s.publisher, []Change{change})
	return nil
}

func (s *GormStore) Update(ctx context.Context, ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}

	var change Change
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Document{}).
			Where("collection = ? AND id = ?", ref.Collection, ref.ID).
			Updates(map[string]any{
				"data":       string(data),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		change, err = bumpSeq(tx, ref.Collection, ref.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating %s: %w", ref.Path(), err)
	}

	publish(ctx, s.publisher, []Change{change})
	return nil
}

func (s *GormStore) Delete(ctx context.Context, ref Ref) error {
	var (
		change  Change
		deleted bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("collection = ? AND id = ?", ref.Collection, ref.ID).Delete(&Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		var err error
		change, err = bumpSeq(tx, ref.Collection, ref.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", ref.Path(), err)
	}

	if deleted {
		publish(ctx, s.publisher, []Change{change})
	}
	return nil
}

func (s *GormStore) Add(ctx context.Context, collection string, v any) (Ref, error) {
	ref := Doc(collection, uuid.NewString())
	if err := s.Set(ctx, ref, v); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (s *GormStore) DeleteAll(ctx context.Context, collection string) error {
	var (
		change  Change
		deleted bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("collection = ?", collection).Delete(&Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		var err error
		change, err = bumpSeq(tx, collection, "")
		return err
	})
	if err != nil {
		return fmt.Errorf("clearing %s: %w", collection, err)
	}

	if deleted {
		publish(ctx, s.publisher, []Change{change})
	}
	return nil
}

func (s *GormStore) Seq(ctx context.Context, collection string) (uint64, error) {
	seq, err := currentSeq(s.db.WithContext(ctx), collection)
	if err != nil {
		return 0, fmt.Errorf("reading seq of %s: %w", collection, err)
	}
	return seq, nil
}

func (s *GormStore) Query(ctx context.Context, q Query) (QueryResult, error) {
	var result QueryResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := currentSeq(tx, q.Collection)
		if err != nil {
			return err
		}
		result.Seq = seq

		stmt := tx.Model(&Document{}).Where("collection = ?", q.Collection)
		for _, f := range q.Where {
			stmt = stmt.Where("data->>? = ?", f.Field, f.Value)
		}
		if q.OrderBy != "" {
			stmt = stmt.Order(clause.OrderBy{Expression: clause.Expr{
				SQL:  "COALESCE((data->>?)::numeric, 0) " + direction(q.Desc) + ", created_at ASC",
				Vars: []any{q.OrderBy},
			}})
		} else {
			stmt = stmt.Order("created_at ASC")
		}

		var rows []Document
		if err := stmt.Find(&rows).Error; err != nil {
			return err
		}

		result.Docs = make([]Snapshot, 0, len(rows))
		for _, row := range rows {
			snap := toSnapshot(row)
			snap.Seq = seq
			result.Docs = append(result.Docs, snap)
		}
		return nil
	})
	if err != nil {
		return QueryResult{}, fmt.Errorf("querying %s: %w", q.Collection, err)
	}
	return result, nil
}

// RunTransaction runs fn against fresh reads and commits its writes only if
// none of the documents it read changed meanwhile; otherwise it retries.
func (s *GormStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return s.policy.run(ctx, func() error {
		tx := &gormTx{db: s.db, reads: make(map[Ref]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		var changes []Change
		err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			var err error
			changes, err = tx.commit(db)
			return err
		})
		if err != nil {
			return err
		}

		publish(ctx, s.publisher, changes)
		return nil
	})
}

type gormWrite struct {
	ref    Ref
	data   []byte
	delete bool
}

type gormTx struct {
	db     *gorm.DB
	reads  map[Ref]uint64
	writes []gormWrite
}

func (t *gormTx) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	snap, err := getDocument(t.db.WithContext(ctx), ref)
	if err != nil {
		return Snapshot{}, fmt.Errorf("getting %s: %w", ref.Path(), err)
	}
	if _, seen := t.reads[ref]; !seen {
		t.reads[ref] = snap.Version
	}
	return snap, nil
}

func (t *gormTx) Set(ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, gormWrite{ref: ref, data: data})
	return nil
}

func (t *gormTx) Delete(ref Ref) {
	t.writes = append(t.writes, gormWrite{ref: ref, delete: true})
}

func (t *gormTx) commit(db *gorm.DB) ([]Change, error) {
	changes := make([]Change, 0, len(t.writes))
	for _, w := range t.writes {
		if err := t.apply(db, w); err != nil {
			return nil, err
		}
		// later writes to the same document are checked against our own bump
		if v, read := t.reads[w.ref]; read {
			if w.delete {
				t.reads[w.ref] = 0
			} else {
				t.reads[w.ref] = v + 1
			}
		}
		change, err := bumpSeq(db, w.ref.Collection, w.ref.ID)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}

	// documents read but not written must still be unchanged
	for ref, version := range t.reads {
		if t.wrote(ref) {
			continue
		}
		var current uint64
		err := db.Model(&Document{}).
			Where("collection = ? AND id = ?", ref.Collection, ref.ID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error
		if err != nil {
			return nil, err
		}
		if current != version {
			return nil, fmt.Errorf("%s changed since read: %w", ref.Path(), ErrConflict)
		}
	}
	return changes, nil
}

func (t *gormTx) apply(db *gorm.DB, w gormWrite) error {
	version, read := t.reads[w.ref]
	if !read {
		if w.delete {
			return db.Where("collection = ? AND id = ?", w.ref.Collection, w.ref.ID).Delete(&Document{}).Error
		}
		return upsertDocument(db, w.ref, w.data)
	}

	var res *gorm.DB
	switch {
	case w.delete:
		res = db.Where("collection = ? AND id = ? AND version = ?", w.ref.Collection, w.ref.ID, version).
			Delete(&Document{})
	case version == 0:
		now := time.Now().UTC()
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Document{
			Collection: w.ref.Collection,
			ID:         w.ref.ID,
			Data:       string(w.data),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	default:
		res = db.Model(&Document{}).
			Where("collection = ? AND id = ? AND version = ?", w.ref.Collection, w.ref.ID, version).
			Updates(map[string]any{
				"data":       string(w.data),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			})
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 && !(w.delete && version == 0) {
		return fmt.Errorf("%s changed since read: %w", w.ref.Path(), ErrConflict)
	}
	return nil
}

func (t *gormTx) wrote(ref Ref) bool {
	for _, w := range t.writes {
		if w.ref == ref {
			return true
		}
	}
	return false
}

func getDocument(db *gorm.DB, ref Ref) (Snapshot, error) {
	var rows []Document
	err := db.Where("collection = ? AND id = ?", ref.Collection, ref.ID).Limit(1).Find(&rows).Error
	if err != nil {
		return Snapshot{}, err
	}
	if len(rows) == 0 {
		return Snapshot{Ref: ref}, nil
	}
	return toSnapshot(rows[0]), nil
}

func upsertDocument(db *gorm.DB, ref Ref, data []byte) error {
	now := time.Now().UTC()
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"data":       gorm.Expr("excluded.data"),
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": now,
		}),
	}).Create(&Document{
		Collection: ref.Collection,
		ID:         ref.ID,
		Data:       string(data),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
}

func currentSeq(db *gorm.DB, collection string) (uint64, error) {
	var seq uint64
	err := db.Model(&CollectionSeq{}).
		Where("name = ?", collection).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	return seq, err
}

func bumpSeq(db *gorm.DB, collection, id string) (Change, error) {
	var seq uint64
	err := db.Raw(`
		INSERT INTO collection_seqs (name, seq) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET seq = collection_seqs.seq + 1
		RETURNING seq
	`, collection).Scan(&seq).Error
	if err != nil {
		return Change{}, err
	}
	return Change{Collection: collection, ID: id, Seq: seq}, nil
}

func toSnapshot(row Document) Snapshot {
	return Snapshot{
		Ref:       Doc(row.Collection, row.ID),
		Exists:    true,
		Version:   row.Version,
		Data:      json.RawMessage(row.Data),
		UpdatedAt: row.UpdatedAt,
	}
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}
