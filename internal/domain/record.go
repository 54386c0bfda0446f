package domain

import (
	"strings"

	"hosa-study-board/internal/docstore"

	"github.com/rs/zerolog/log"
)

const (
	CollectionMeta      = "meta"
	CollectionResources = "resources"
	CollectionNotes     = "notes"

	DocPoints = "points"
	DocTodos  = "todos"

	KindTextbook = "textbook"
)

// Record is a resource bookmark or a note. Resources carry Type "textbook";
// notes leave it empty. AddedAt is unix millis, zero when unknown.
type Record struct {
	ID          string   `json:"-"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	OpenNewTab  bool     `json:"openNewTab"`
	AddedAt     int64    `json:"addedAt"`
}

// Kind reports the record type, defaulting resources without one to textbook.
func (r Record) Kind(collection string) string {
	if r.Type == "" && collection == CollectionResources {
		return KindTextbook
	}
	return r.Type
}

// SearchText is what free-text search matches against.
func (r Record) SearchText() string {
	return r.Title + " " + r.Description + " " + strings.Join(r.Tags, " ")
}

// RecordsFrom decodes collection snapshots into records, skipping documents
// that do not decode.
func RecordsFrom(docs []docstore.Snapshot) []Record {
	records := make([]Record, 0, len(docs))
	for _, d := range docs {
		var r Record
		if err := d.DataTo(&r); err != nil {
			log.Warn().Err(err).Str("doc", d.Ref.Path()).Msg("skipping malformed record")
			continue
		}
		r.ID = d.Ref.ID
		records = append(records, r)
	}
	return records
}
