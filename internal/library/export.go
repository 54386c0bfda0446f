package library

import (
	"bytes"
	"encoding/csv"
	"strings"
	"time"

	"hosa-study-board/internal/domain"
)

// Export is a rendered CSV download.
type Export struct {
	Filename string `json:"filename"`
	Body     []byte `json:"body"`
}

func exportHeader(collection string) []string {
	if collection == domain.CollectionResources {
		return []string{"Title", "URL", "Type", "Description", "Tags", "AddedAt"}
	}
	return []string{"Title", "URL", "Description", "Tags", "AddedAt"}
}

// writeCSV emits one row per record. Tags are joined with ';' and AddedAt is
// written in UTC with milliseconds; records without one get the epoch.
func writeCSV(collection string, records []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader(collection)); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{r.Title, r.URL}
		if collection == domain.CollectionResources {
			row = append(row, r.Kind(collection))
		}
		row = append(row,
			r.Description,
			strings.Join(r.Tags, ";"),
			time.UnixMilli(r.AddedAt).UTC().Format("2006-01-02T15:04:05.000Z"),
		)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
