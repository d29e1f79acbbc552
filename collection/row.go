package collection

import (
	"encoding/json"
	"fmt"
)

type Row struct {
	I       int64 // insertion sequence, rows are ordered by it
	Id      string
	Payload json.RawMessage
}

// Less returns true if the row is less than the other row.
// This is required for btree.Item interface.
func (r *Row) Less(than *Row) bool {
	return r.I < than.I
}

// Decode returns a fresh copy of the row data. A null payload decodes to a
// nil map.
func (r *Row) Decode() (map[string]any, error) {
	var data map[string]any
	err := json.Unmarshal(r.Payload, &data)
	if err != nil {
		return nil, fmt.Errorf("decode row '%s': %w", r.Id, err)
	}
	return data, nil
}
