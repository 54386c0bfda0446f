package view

import (
	"encoding/json"
	"testing"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder() (Emit, *[]Update) {
	var updates []Update
	return func(u Update) { updates = append(updates, u) }, &updates
}

func docSnap(t *testing.T, collection, id string, v any) docstore.Snapshot {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return docstore.Snapshot{Ref: docstore.Doc(collection, id), Exists: true, Data: data}
}

func TestPointsView_RendersSeedWhileMissing(t *testing.T) {
	out, updates := recorder()
	v := NewPointsView([]string{"Haena", "Julia", "Juana"}, out)

	require.NoError(t, v.Apply(feed.Snapshot{}))

	require.Len(t, *updates, 1)
	u := (*updates)[0]
	assert.Equal(t, Points, u.View)
	assert.Equal(t, 3, u.Count)
	assert.Contains(t, u.HTML, "1. Haena")
}

func TestPointsView_RanksStoredTally(t *testing.T) {
	out, updates := recorder()
	v := NewPointsView([]string{"Haena"}, out)

	snap := feed.Snapshot{Seq: 2, Doc: docSnap(t, "meta", "points", domain.PointsTally{{Name: "Haena", Score: 10}, {Name: "Julia", Score: 20}})}
	require.NoError(t, v.Apply(snap))

	assert.Contains(t, (*updates)[0].HTML, "1. Julia")
	assert.Contains(t, (*updates)[0].HTML, "2. Haena")
}

func TestTodoView_EmptyAndMalformed(t *testing.T) {
	out, updates := recorder()
	v := NewTodoView(out)

	require.NoError(t, v.Apply(feed.Snapshot{}))
	assert.Contains(t, (*updates)[0].HTML, "No team tasks yet.")

	bad := feed.Snapshot{Doc: docstore.Snapshot{Ref: docstore.Doc("meta", "todos"), Exists: true, Data: []byte(`{"items":"nope"}`)}}
	Handler(v)(bad)
	assert.Len(t, *updates, 1)
}

func TestLibraryView_RefiltersFromCache(t *testing.T) {
	out, updates := recorder()
	v := NewLibraryView(domain.CollectionResources, out)

	snap := feed.Snapshot{Seq: 3, Docs: []docstore.Snapshot{
		docSnap(t, domain.CollectionResources, "a", domain.Record{Title: "Anatomy", URL: "https://a", Tags: []string{"bio", "exam"}, AddedAt: 1}),
		docSnap(t, domain.CollectionResources, "b", domain.Record{Title: "Chemistry", URL: "https://b", Tags: []string{"bio"}, AddedAt: 2}),
		docSnap(t, domain.CollectionResources, "c", domain.Record{Title: "Clip", URL: "https://c", Type: "video", AddedAt: 3}),
	}}
	require.NoError(t, v.Apply(snap))
	require.Len(t, *updates, 1)
	assert.Equal(t, 2, (*updates)[0].Count)
	assert.Contains(t, (*updates)[0].HTML, `data-id="a"`)

	require.NoError(t, v.SetFilter("", []string{"BIO", "exam"}))
	require.Len(t, *updates, 2)
	assert.Equal(t, 1, (*updates)[1].Count)
	assert.Contains(t, (*updates)[1].HTML, "Anatomy")

	require.NoError(t, v.SetFilter("zzz", nil))
	assert.Contains(t, (*updates)[2].HTML, "No textbooks found.")
	assert.Equal(t, 0, (*updates)[2].Count)
}

func TestLibraryView_FilterBeforeFirstSnapshot(t *testing.T) {
	out, updates := recorder()
	v := NewLibraryView(domain.CollectionNotes, out)

	require.NoError(t, v.SetFilter("lab", nil))
	assert.Empty(t, *updates)

	require.NoError(t, v.Apply(feed.Snapshot{Docs: []docstore.Snapshot{
		docSnap(t, domain.CollectionNotes, "n1", domain.Record{Title: "Lab notes", URL: "https://n"}),
		docSnap(t, domain.CollectionNotes, "n2", domain.Record{Title: "Essay", URL: "https://e"}),
	}}))
	require.Len(t, *updates, 1)
	assert.Equal(t, Notes, (*updates)[0].View)
	assert.Equal(t, 1, (*updates)[0].Count)
}
