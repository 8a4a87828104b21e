package querydb

import (
	"encoding/json"
	"fmt"
)

// Rows is the tabular result of a query.
type Rows struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"rows"`
	// Truncated is set when the row cap cut the result short.
	Truncated bool `json:"truncated,omitempty"`
}

// Len returns the number of rows.
func (r Rows) Len() int {
	return len(r.Data)
}

// Records returns the rows as column-keyed maps.
func (r Rows) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r.Data))
	for _, row := range r.Data {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Encode serializes the rows for storage in session state.
func (r Rows) Encode() (string, error) {
	if r.Data == nil {
		r.Data = [][]any{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return string(b), nil
}

// Decode parses a payload produced by Encode. Numbers decode as float64.
func Decode(payload string) (Rows, error) {
	var r Rows
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Rows{}, fmt.Errorf("decode rows: %w", err)
	}
	return r, nil
}
