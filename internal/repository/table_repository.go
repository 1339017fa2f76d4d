package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/samargunners/par-delta-dashboard/internal/rag"
)

var ErrInvalidIdentifier = errors.New("invalid sql identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableRepository reads dashboard tables as generic rows.
type TableRepository struct {
	db       *gorm.DB
	rowLimit int
}

var _ rag.RowSource = (*TableRepository)(nil)

func NewTableRepository(db *gorm.DB, rowLimit int) *TableRepository {
	if rowLimit <= 0 {
		rowLimit = 1000
	}
	return &TableRepository{db: db, rowLimit: rowLimit}
}

// FetchRows selects the configured columns of one table, newest first when
// the table has an order column, up to the row limit.
func (r *TableRepository) FetchRows(ctx context.Context, spec rag.TableSpec) ([]map[string]any, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Table(spec.Name)
	if len(spec.Columns) > 0 {
		q = q.Select(spec.Columns)
	}
	if spec.OrderBy != "" {
		q = q.Order(spec.OrderBy)
	}
	limit := spec.Limit
	if limit <= 0 {
		limit = r.rowLimit
	}

	var rows []map[string]interface{}
	if err := q.Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch table %s failed: %w", spec.Name, err)
	}
	return rows, nil
}

// validateSpec rejects names that cannot be plain identifiers, since table
// and column names are interpolated into the query.
func validateSpec(spec rag.TableSpec) error {
	if !identPattern.MatchString(spec.Name) {
		return fmt.Errorf("%w: table %q", ErrInvalidIdentifier, spec.Name)
	}
	for _, c := range spec.Columns {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("%w: column %q in %s", ErrInvalidIdentifier, c, spec.Name)
		}
	}
	if spec.KeyColumn != "" && !identPattern.MatchString(spec.KeyColumn) {
		return fmt.Errorf("%w: key column %q in %s", ErrInvalidIdentifier, spec.KeyColumn, spec.Name)
	}
	if spec.OrderBy != "" {
		fields := strings.Fields(spec.OrderBy)
		if len(fields) == 0 || len(fields) > 2 || !identPattern.MatchString(fields[0]) {
			return fmt.Errorf("%w: order by %q in %s", ErrInvalidIdentifier, spec.OrderBy, spec.Name)
		}
		if len(fields) == 2 {
			dir := strings.ToLower(fields[1])
			if dir != "asc" && dir != "desc" {
				return fmt.Errorf("%w: order by %q in %s", ErrInvalidIdentifier, spec.OrderBy, spec.Name)
			}
		}
	}
	return nil
}
