package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samargunners/par-delta-dashboard/internal/rag"
)

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		name string
		spec rag.TableSpec
		ok   bool
	}{
		{"plain", rag.TableSpec{Name: "actual_table_labor", Columns: []string{"pc_number", "date"}, OrderBy: "date desc"}, true},
		{"select all", rag.TableSpec{Name: "stores"}, true},
		{"ascending", rag.TableSpec{Name: "stores", OrderBy: "pc_number ASC"}, true},
		{"injected table", rag.TableSpec{Name: "stores; drop table stores"}, false},
		{"injected column", rag.TableSpec{Name: "stores", Columns: []string{"pc_number", "1=1 --"}}, false},
		{"bad direction", rag.TableSpec{Name: "stores", OrderBy: "date sideways"}, false},
		{"order expression", rag.TableSpec{Name: "stores", OrderBy: "random()"}, false},
		{"bad key", rag.TableSpec{Name: "stores", KeyColumn: "a.b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSpec(tt.spec)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
			}
		})
	}
}

func TestNewTableRepositoryDefaultsLimit(t *testing.T) {
	assert.Equal(t, 1000, NewTableRepository(nil, 0).rowLimit)
	assert.Equal(t, 50, NewTableRepository(nil, 50).rowLimit)
}
