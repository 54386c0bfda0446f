package library

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/errors"
	"hosa-study-board/internal/projector"
	"hosa-study-board/internal/utils"
	"hosa-study-board/redis"
)

// Collection describes one record collection served by a Service.
type Collection struct {
	Name string
	// Kind restricts listings and exports; empty means every record.
	Kind        string
	Filename    string
	EmptyExport string
}

var (
	Resources = Collection{
		Name:        domain.CollectionResources,
		Kind:        domain.KindTextbook,
		Filename:    "hosa_textbooks.csv",
		EmptyExport: "No textbooks to export.",
	}
	Notes = Collection{
		Name:        domain.CollectionNotes,
		Filename:    "hosa_notes.csv",
		EmptyExport: "No notes to export.",
	}
)

const cacheTTL = 10 * time.Minute

type Service interface {
	List(ctx context.Context, q projector.Query, page, pageSize int) (*PaginatedRecords, error)
	Get(ctx context.Context, id string) (*RecordResponse, error)
	Create(ctx context.Context, form RecordRequest) (*RecordResponse, error)
	Update(ctx context.Context, id string, form RecordRequest) (*RecordResponse, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Export(ctx context.Context) (*Export, error)
}

type DefaultService struct {
	coll  Collection
	store docstore.Store
	cache *redis.Cache
	now   func() time.Time
}

func NewService(coll Collection, store docstore.Store, cache *redis.Cache) *DefaultService {
	return &DefaultService{coll: coll, store: store, cache: cache, now: time.Now}
}

type RecordResponse struct {
	ID string `json:"id"`
	domain.Record
}

type PaginatedRecords struct {
	Data []RecordResponse `json:"data"`
	Meta utils.PageMeta   `json:"meta"`
}

func toResponse(r domain.Record) RecordResponse {
	id := r.ID
	r.ID = ""
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return RecordResponse{ID: id, Record: r}
}

func (s *DefaultService) query() docstore.Query {
	return docstore.Query{Collection: s.coll.Name, OrderBy: "addedAt", Desc: true}
}

func (s *DefaultService) List(ctx context.Context, q projector.Query, page, pageSize int) (*PaginatedRecords, error) {
	q.Kind = s.coll.Kind

	// Cached pages are keyed by the collection sequence, so any write retires them.
	seq, err := s.store.Seq(ctx, s.coll.Name)
	if err != nil {
		return nil, errors.FromStore(err)
	}
	cacheKey := listCacheKey(s.coll.Name, seq, q, page, pageSize)

	var result PaginatedRecords
	if found, _ := s.cache.Get(ctx, cacheKey, &result); found {
		return &result, nil
	}

	res, err := s.store.Query(ctx, s.query())
	if err != nil {
		return nil, errors.FromStore(err)
	}
	rows, meta := utils.Paginate(projector.Records(s.coll.Name, domain.RecordsFrom(res.Docs), q), page, pageSize)

	result = PaginatedRecords{Data: make([]RecordResponse, 0, len(rows)), Meta: meta}
	for _, r := range rows {
		result.Data = append(result.Data, toResponse(r))
	}
	s.cache.Set(ctx, cacheKey, result, cacheTTL)

	return &result, nil
}

// listCacheKey escapes the free-form filter inputs so distinct queries never
// share a key.
func listCacheKey(collection string, seq uint64, q projector.Query, page, pageSize int) string {
	params := url.Values{}
	params.Set("q", strings.ToLower(strings.TrimSpace(q.Text)))
	for _, tag := range q.Tags {
		params.Add("t", strings.ToLower(tag))
	}
	params.Set("p", strconv.Itoa(page))
	params.Set("ps", strconv.Itoa(pageSize))
	return fmt.Sprintf("records:%s:v:%d:%s", collection, seq, params.Encode())
}

func (s *DefaultService) Get(ctx context.Context, id string) (*RecordResponse, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(s.coll.Name, id))
	if err != nil {
		return nil, errors.FromStore(err)
	}
	if !snap.Exists {
		return nil, errors.NotFound("Record not found", docstore.ErrNotFound)
	}

	var r domain.Record
	if err := snap.DataTo(&r); err != nil {
		return nil, errors.Internal(err)
	}
	r.ID = id
	resp := toResponse(r)
	return &resp, nil
}

func (s *DefaultService) Create(ctx context.Context, form RecordRequest) (*RecordResponse, error) {
	r, err := form.clean()
	if err != nil {
		return nil, err
	}
	if s.coll.Kind != "" {
		r.Type = s.coll.Kind
	}
	r.OpenNewTab = form.OpenNewTab == nil || *form.OpenNewTab
	r.AddedAt = s.now().UnixMilli()

	ref, err := s.store.Add(ctx, s.coll.Name, r)
	if err != nil {
		return nil, errors.FromStore(err)
	}
	r.ID = ref.ID
	resp := toResponse(r)
	return &resp, nil
}

// Update edits the record in place. Type and AddedAt are kept; OpenNewTab is
// only changed when the form sets it.
func (s *DefaultService) Update(ctx context.Context, id string, form RecordRequest) (*RecordResponse, error) {
	edit, err := form.clean()
	if err != nil {
		return nil, err
	}

	ref := docstore.Doc(s.coll.Name, id)
	var updated domain.Record
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return errors.NotFound("Record not found", docstore.ErrNotFound)
		}

		var current domain.Record
		if err := snap.DataTo(&current); err != nil {
			return err
		}
		updated = current
		updated.Title = edit.Title
		updated.URL = edit.URL
		updated.Description = edit.Description
		updated.Tags = edit.Tags
		if form.OpenNewTab != nil {
			updated.OpenNewTab = *form.OpenNewTab
		}
		return tx.Set(ref, updated)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}

	updated.ID = id
	resp := toResponse(updated)
	return &resp, nil
}

func (s *DefaultService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, docstore.Doc(s.coll.Name, id)); err != nil {
		return errors.FromStore(err)
	}
	return nil
}

func (s *DefaultService) Clear(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx, s.coll.Name); err != nil {
		return errors.FromStore(err)
	}
	return nil
}

func (s *DefaultService) Export(ctx context.Context) (*Export, error) {
	seq, err := s.store.Seq(ctx, s.coll.Name)
	if err != nil {
		return nil, errors.FromStore(err)
	}
	cacheKey := fmt.Sprintf("export:%s:v:%d", s.coll.Name, seq)

	var export Export
	if found, _ := s.cache.Get(ctx, cacheKey, &export); found {
		return &export, nil
	}

	res, err := s.store.Query(ctx, s.query())
	if err != nil {
		return nil, errors.FromStore(err)
	}
	records := projector.Records(s.coll.Name, domain.RecordsFrom(res.Docs), projector.Query{Kind: s.coll.Kind})
	if len(records) == 0 {
		return nil, errors.UnprocessableEntity(s.coll.EmptyExport, nil)
	}

	body, err := writeCSV(s.coll.Name, records)
	if err != nil {
		return nil, errors.Internal(err)
	}
	export = Export{Filename: s.coll.Filename, Body: body}
	s.cache.Set(ctx, cacheKey, export, cacheTTL)

	return &export, nil
}
