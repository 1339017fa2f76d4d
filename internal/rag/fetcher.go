package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

// TableSpec describes one source table in the catalogue.
type TableSpec struct {
	Name       string
	RecordType string
	Columns    []string
	KeyColumn  string
	OrderBy    string
	Limit      int
}

func (s TableSpec) recordType() string {
	if s.RecordType != "" {
		return s.RecordType
	}
	return strings.ReplaceAll(s.Name, "_", " ")
}

// RowSource reads raw rows for one table.
type RowSource interface {
	FetchRows(ctx context.Context, spec TableSpec) ([]map[string]any, error)
}

// TableSet is one fetch cycle's worth of records. Tables that failed are
// listed in Failures and absent from Tables.
type TableSet struct {
	Tables    map[string][]model.BusinessRecord
	Order     []string
	Failures  map[string]error
	FetchedAt time.Time
}

// Warnings describes the tables missing from this set.
func (s *TableSet) Warnings() []string {
	if s == nil || len(s.Failures) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.Failures))
	for name := range s.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("table %s unavailable: %v", name, s.Failures[name]))
	}
	return out
}

// RecordCount sums records over all tables.
func (s *TableSet) RecordCount() int {
	n := 0
	for _, recs := range s.Tables {
		n += len(recs)
	}
	return n
}

// TableFetcher reads the catalogue and keeps the result for ttl. Concurrent
// callers on a cold or expired cache share a single fetch.
type TableFetcher struct {
	source RowSource
	specs  []TableSpec
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cached *TableSet
	group  singleflight.Group
}

func NewTableFetcher(source RowSource, specs []TableSpec, ttl time.Duration, log *slog.Logger) *TableFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &TableFetcher{
		source: source,
		specs:  specs,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

func (f *TableFetcher) Specs() []TableSpec {
	return f.specs
}

// FetchAll returns the cached set while it is fresh, otherwise fetches every
// table. It fails with ErrDataUnavailable only when no table could be read.
func (f *TableFetcher) FetchAll(ctx context.Context) (*TableSet, error) {
	if set := f.fresh(); set != nil {
		return set, nil
	}

	// the shared fetch outlives any one caller; each caller stops waiting on
	// its own ctx
	ch := f.group.DoChan("tables", func() (any, error) {
		if set := f.fresh(); set != nil {
			return set, nil
		}
		fetchCtx, cancel := detach(ctx, 0)
		defer cancel()
		set, err := f.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cached = set
		f.mu.Unlock()
		return set, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TableSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// detach returns a context that ignores ctx's cancellation but keeps its
// values. It is bounded by timeout, or by ctx's deadline when timeout is zero.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	out := context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(out, timeout)
	}
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(out, deadline)
	}
	return context.WithCancel(out)
}

// Invalidate drops the cached set so the next FetchAll reads the database.
func (f *TableFetcher) Invalidate() {
	f.mu.Lock()
	f.cached = nil
	f.mu.Unlock()
}

// Cached returns the last successful set, fresh or not.
func (f *TableFetcher) Cached() *TableSet {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cached
}

func (f *TableFetcher) fresh() *TableSet {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cached == nil {
		return nil
	}
	if f.ttl > 0 && f.now().Sub(f.cached.FetchedAt) >= f.ttl {
		return nil
	}
	return f.cached
}

func (f *TableFetcher) fetch(ctx context.Context) (*TableSet, error) {
	type result struct {
		rows []map[string]any
		err  error
	}
	results := make([]result, len(f.specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range f.specs {
		g.Go(func() error {
			rows, err := f.source.FetchRows(gctx, spec)
			results[i] = result{rows: rows, err: err}
			return nil
		})
	}
	_ = g.Wait()
	// an expired ctx is not a table outage; the partial set is dropped
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &TableSet{
		Tables:    make(map[string][]model.BusinessRecord, len(f.specs)),
		Failures:  map[string]error{},
		FetchedAt: f.now(),
	}
	for i, spec := range f.specs {
		r := results[i]
		if r.err != nil {
			set.Failures[spec.Name] = r.err
			tableFetchFailures.WithLabelValues(spec.Name).Inc()
			f.log.Warn("table fetch failed", "table", spec.Name, "error", r.err)
			continue
		}
		set.Tables[spec.Name] = toRecords(spec, r.rows)
		set.Order = append(set.Order, spec.Name)
	}

	if len(f.specs) > 0 && len(set.Order) == 0 {
		return nil, fmt.Errorf("%w: all %d tables failed: %s", ErrDataUnavailable, len(f.specs), strings.Join(set.Warnings(), "; "))
	}
	f.log.Info("tables fetched", "tables", len(set.Order), "failed", len(set.Failures), "records", set.RecordCount())
	return set, nil
}

func toRecords(spec TableSpec, rows []map[string]any) []model.BusinessRecord {
	records := make([]model.BusinessRecord, 0, len(rows))
	for i, row := range rows {
		columns := spec.Columns
		if len(columns) == 0 {
			columns = make([]string, 0, len(row))
			for col := range row {
				columns = append(columns, col)
			}
			sort.Strings(columns)
		}
		rec := model.BusinessRecord{
			Table:    spec.Name,
			Position: i,
			Columns:  columns,
			Values:   row,
		}
		if spec.KeyColumn != "" {
			if v, ok := row[spec.KeyColumn]; ok && v != nil {
				rec.Key = normalizeValue(v)
			}
		}
		records = append(records, rec)
	}
	return records
}
