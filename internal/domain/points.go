package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MemberScore is one entry of the points tally.
type MemberScore struct {
	Name  string
	Score int
}

// PointsTally maps member names to scores. It is stored as a JSON object and
// keeps the object's key order, so ties rank in insertion order.
type PointsTally []MemberScore

// NewTally returns every member at zero.
func NewTally(members []string) PointsTally {
	t := make(PointsTally, 0, len(members))
	for _, m := range members {
		t = append(t, MemberScore{Name: m})
	}
	return t
}

func (t PointsTally) Index(member string) int {
	for i, m := range t {
		if m.Name == member {
			return i
		}
	}
	return -1
}

func (t PointsTally) Score(member string) int {
	if i := t.Index(member); i >= 0 {
		return t[i].Score
	}
	return 0
}

func (t PointsTally) Clone() PointsTally {
	return append(PointsTally(nil), t...)
}

func (t PointsTally) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", m.Score)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *PointsTally) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("points tally: expected object, got %v", tok)
	}

	out := PointsTally{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("points tally: score of %q: %w", name, err)
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("points tally: score of %q: %w", name, err)
		}

		score := int(f)
		if score < 0 {
			score = 0
		}
		if i := out.Index(name); i >= 0 {
			out[i].Score = score
			continue
		}
		out = append(out, MemberScore{Name: name, Score: score})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}
