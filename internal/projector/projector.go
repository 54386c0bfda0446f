// Package projector turns cached feed state plus the current filter inputs
// into the ordered rows a view renders. Everything here is pure.
package projector

import (
	"math"
	"sort"
	"strings"

	"hosa-study-board/internal/domain"
)

type PointsRow struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	// Width is the bar length in percent of the leading score.
	Width int `json:"width"`
}

// Points ranks members by score, highest first. Equal scores keep the tally's
// order.
func Points(tally domain.PointsTally) []PointsRow {
	ranked := tally.Clone()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	top := 1
	for _, m := range ranked {
		if m.Score > top {
			top = m.Score
		}
	}

	rows := make([]PointsRow, 0, len(ranked))
	for i, m := range ranked {
		rows = append(rows, PointsRow{
			Rank:  i + 1,
			Name:  m.Name,
			Score: m.Score,
			Width: int(math.Round(float64(m.Score) / float64(top) * 100)),
		})
	}
	return rows
}

type TodoRow struct {
	Index int `json:"index"`
	domain.TodoItem
}

type TodoProjection struct {
	Rows  []TodoRow `json:"items"`
	Empty bool      `json:"empty"`
}

// Todos keeps store order, which is already newest first.
func Todos(list domain.TodoList) TodoProjection {
	rows := make([]TodoRow, 0, len(list.Items))
	for i, item := range list.Items {
		rows = append(rows, TodoRow{Index: i, TodoItem: item})
	}
	return TodoProjection{Rows: rows, Empty: len(rows) == 0}
}

// Query is the filter state of a records view. Empty fields match everything.
type Query struct {
	Kind string
	Tags []string
	Text string
}

// Records filters by kind, then by tags (every query tag must be on the
// record), then by free text, and finally sorts newest first. collection is
// used to default the kind of records that carry none.
func Records(collection string, records []domain.Record, q Query) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if q.Kind != "" && r.Kind(collection) != q.Kind {
			continue
		}
		out = append(out, r)
	}

	if len(q.Tags) > 0 {
		out = filter(out, func(r domain.Record) bool { return hasAllTags(r, q.Tags) })
	}

	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		out = filter(out, func(r domain.Record) bool {
			return strings.Contains(strings.ToLower(r.SearchText()), text)
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt > out[j].AddedAt
	})
	return out
}

// ParseTags splits a comma separated tag input, trimming blanks.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func hasAllTags(r domain.Record, want []string) bool {
	have := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		have[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[strings.ToLower(t)]; !ok {
			return false
		}
	}
	return true
}

func filter(records []domain.Record, keep func(domain.Record) bool) []domain.Record {
	out := records[:0]
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
