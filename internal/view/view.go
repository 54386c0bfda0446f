// Package view holds the per-session state of each live view: the last full
// snapshot of its feed and the filter inputs. Either one changing re-renders
// the view from the cached state.
package view

import (
	"sync"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/feed"
	"hosa-study-board/internal/projector"
	"hosa-study-board/internal/render"

	"github.com/rs/zerolog/log"
)

const (
	Points    = "points"
	Todos     = "todos"
	Resources = "resources"
	Notes     = "notes"
)

// Update is one rendered view pushed to a client.
type Update struct {
	View  string `json:"view"`
	HTML  string `json:"html"`
	Count int    `json:"count"`
}

type Emit func(Update)

type View interface {
	Name() string
	Target() feed.Target
	Apply(feed.Snapshot) error
}

// Handler adapts v to a feed handler. A snapshot that cannot be applied is
// logged and the view keeps showing its previous state.
func Handler(v View) feed.Handler {
	return func(s feed.Snapshot) {
		if err := v.Apply(s); err != nil {
			log.Error().Err(err).Str("view", v.Name()).Uint64("seq", s.Seq).Msg("snapshot not applied")
		}
	}
}

func emit(out Emit, name string, f render.Fragment) {
	out(Update{View: name, HTML: f.HTML, Count: f.Count})
}

type PointsView struct {
	seed func() domain.PointsTally
	out  Emit
}

func NewPointsView(members []string, out Emit) *PointsView {
	return &PointsView{
		seed: func() domain.PointsTally { return domain.NewTally(members) },
		out:  out,
	}
}

func (v *PointsView) Name() string { return Points }

func (v *PointsView) Target() feed.Target {
	return feed.DocTarget(docstore.Doc(domain.CollectionMeta, domain.DocPoints))
}

// Apply renders the tally, or the zero seed while the document is absent.
func (v *PointsView) Apply(s feed.Snapshot) error {
	tally := v.seed()
	if s.Doc.Exists {
		tally = nil
		if err := s.Doc.DataTo(&tally); err != nil {
			return err
		}
	}
	f, err := render.Leaderboard(projector.Points(tally))
	if err != nil {
		return err
	}
	emit(v.out, Points, f)
	return nil
}

type TodoView struct {
	out Emit
}

func NewTodoView(out Emit) *TodoView {
	return &TodoView{out: out}
}

func (v *TodoView) Name() string { return Todos }

func (v *TodoView) Target() feed.Target {
	return feed.DocTarget(docstore.Doc(domain.CollectionMeta, domain.DocTodos))
}

func (v *TodoView) Apply(s feed.Snapshot) error {
	var list domain.TodoList
	if s.Doc.Exists {
		if err := s.Doc.DataTo(&list); err != nil {
			return err
		}
	}
	f, err := render.Todos(projector.Todos(list))
	if err != nil {
		return err
	}
	emit(v.out, Todos, f)
	return nil
}

// LibraryView lists a record collection. Snapshots and filter changes may
// arrive from different goroutines; the latest of each wins.
type LibraryView struct {
	collection string
	kind       string
	out        Emit

	mu      sync.Mutex
	records []domain.Record
	query   projector.Query
	seen    bool
}

// NewLibraryView shows resources restricted to textbooks, or all notes.
func NewLibraryView(collection string, out Emit) *LibraryView {
	v := &LibraryView{collection: collection, out: out}
	if collection == domain.CollectionResources {
		v.kind = domain.KindTextbook
	}
	v.query.Kind = v.kind
	return v
}

func (v *LibraryView) Name() string { return v.collection }

func (v *LibraryView) Target() feed.Target {
	return feed.QueryTarget(docstore.Query{Collection: v.collection, OrderBy: "addedAt", Desc: true})
}

func (v *LibraryView) Apply(s feed.Snapshot) error {
	records := domain.RecordsFrom(s.Docs)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = records
	v.seen = true
	return v.renderLocked()
}

// SetFilter re-renders the cached records with new search inputs. Before the
// first snapshot it only stores them.
func (v *LibraryView) SetFilter(text string, tags []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = projector.Query{Kind: v.kind, Tags: tags, Text: text}
	if !v.seen {
		return nil
	}
	return v.renderLocked()
}

func (v *LibraryView) renderLocked() error {
	rows := projector.Records(v.collection, v.records, v.query)

	var (
		f   render.Fragment
		err error
	)
	if v.collection == domain.CollectionResources {
		f, err = render.Resources(rows)
	} else {
		f, err = render.Notes(rows)
	}
	if err != nil {
		return err
	}
	emit(v.out, v.collection, f)
	return nil
}
