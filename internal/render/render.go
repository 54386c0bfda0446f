// Package render turns projected rows into HTML fragments. All record and
// member text goes through html/template, so it is escaped for the context it
// lands in (element text, attribute or URL).
package render

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/projector"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("").Funcs(template.FuncMap{"join": strings.Join}).ParseFS(templateFS, "templates/*.tmpl"),
)

// Fragment is one rendered view.
type Fragment struct {
	HTML  string
	Count int
}

type recordRow struct {
	domain.Record
	Badge string
}

type recordList struct {
	Records []recordRow
}

func Leaderboard(rows []projector.PointsRow) (Fragment, error) {
	return execute("leaderboard", rows, len(rows))
}

func Todos(p projector.TodoProjection) (Fragment, error) {
	return execute("todos", p, len(p.Rows))
}

// Resources renders the textbook cards. Count is the number of records shown
// after filtering.
func Resources(records []domain.Record) (Fragment, error) {
	return execute("resources", toRows(domain.CollectionResources, records), len(records))
}

func Notes(records []domain.Record) (Fragment, error) {
	return execute("notes", toRows(domain.CollectionNotes, records), len(records))
}

func toRows(collection string, records []domain.Record) recordList {
	rows := make([]recordRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, recordRow{Record: r, Badge: r.Kind(collection)})
	}
	return recordList{Records: rows}
}

func execute(name string, data any, count int) (Fragment, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Fragment{}, err
	}
	return Fragment{HTML: buf.String(), Count: count}, nil
}
