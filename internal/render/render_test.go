package render

import (
	"strings"
	"testing"

	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/projector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostile = `<b>&"'`

func TestLeaderboard(t *testing.T) {
	f, err := Leaderboard(projector.Points(domain.PointsTally{{Name: hostile, Score: 20}, {Name: "Julia", Score: 10}}))
	require.NoError(t, err)

	assert.Equal(t, 2, f.Count)
	assert.Contains(t, f.HTML, "1. &lt;b&gt;&amp;&#34;&#39;")
	assert.Contains(t, f.HTML, "width:50%")
	assert.NotContains(t, f.HTML, "<b>")
}

func TestTodos_EmptySentinel(t *testing.T) {
	f, err := Todos(projector.Todos(domain.TodoList{}))
	require.NoError(t, err)

	assert.Equal(t, 0, f.Count)
	assert.Equal(t, 1, strings.Count(f.HTML, "No team tasks yet."))
}

func TestTodos_EscapesText(t *testing.T) {
	f, err := Todos(projector.Todos(domain.TodoList{Items: []domain.TodoItem{{Text: hostile, CreatedAt: 42}}}))
	require.NoError(t, err)

	assert.Contains(t, f.HTML, "&lt;b&gt;&amp;&#34;&#39;")
	assert.Contains(t, f.HTML, `data-index="0"`)
	assert.Contains(t, f.HTML, `data-created-at="42"`)
	assert.Contains(t, f.HTML, "—")
	assert.NotContains(t, f.HTML, "No team tasks yet.")
}

func TestResources_EmptySentinel(t *testing.T) {
	f, err := Resources(nil)
	require.NoError(t, err)

	assert.Contains(t, f.HTML, "No textbooks found.")
}

func TestNotes_EmptySentinel(t *testing.T) {
	f, err := Notes([]domain.Record{})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(f.HTML, "No notes yet."))
}

func TestResources_EscapesTextAndAttributes(t *testing.T) {
	f, err := Resources([]domain.Record{{
		ID:          "r1",
		Title:       hostile,
		Description: hostile,
		Tags:        []string{hostile},
		URL:         `https://example.com/a"onmouseover="x`,
		OpenNewTab:  true,
	}})
	require.NoError(t, err)

	assert.NotContains(t, f.HTML, "<b>")
	assert.NotContains(t, f.HTML, `a"onmouseover`)
	assert.Contains(t, f.HTML, `href="https://example.com/a%22onmouseover=%22x"`)
	assert.Contains(t, f.HTML, `target="_blank" rel="noopener noreferrer"`)
	assert.Contains(t, f.HTML, `<span class="badge">textbook</span>`)
	assert.Equal(t, 1, f.Count)
}

func TestNotes_NoNewTabAndUnsafeScheme(t *testing.T) {
	f, err := Notes([]domain.Record{{ID: "n1", Title: "x", URL: "javascript:alert(1)", Tags: []string{"a", "b"}}})
	require.NoError(t, err)

	assert.NotContains(t, f.HTML, "target=")
	assert.NotContains(t, f.HTML, "javascript:")
	assert.Contains(t, f.HTML, "a, b")
}
