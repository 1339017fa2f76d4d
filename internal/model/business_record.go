package model

import "strconv"

// BusinessRecord is one row fetched from one source table. It is immutable
// once fetched and lives for a single fetch cycle.
type BusinessRecord struct {
	Table    string
	Position int
	Key      string
	Columns  []string
	Values   map[string]any
}

// Value returns the non-nil value stored under column.
func (r BusinessRecord) Value(column string) (any, bool) {
	v, ok := r.Values[column]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Identity returns the natural key when the table has one, otherwise the row position.
func (r BusinessRecord) Identity() string {
	if r.Key != "" {
		return r.Key
	}
	return "row-" + strconv.Itoa(r.Position)
}
