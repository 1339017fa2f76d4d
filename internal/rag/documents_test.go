package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

func laborBuilder() *DocumentBuilder {
	return NewDocumentBuilder(laborWasteSpecs, BuilderOptions{StoreColumns: []string{"pc_number"}})
}

func laborSet() *TableSet {
	set := &TableSet{Tables: map[string][]model.BusinessRecord{}, Failures: map[string]error{}}
	for _, spec := range laborWasteSpecs {
		set.Tables[spec.Name] = toRecords(spec, laborWasteRows()[spec.Name])
		set.Order = append(set.Order, spec.Name)
	}
	return set
}

func TestBuildRecordDocument(t *testing.T) {
	docs := laborBuilder().Build(laborSet())
	require.Len(t, docs, 4)

	labor := docs[0]
	assert.Equal(t, "TABLE labor_daily (labor): on 2024-01-05, for store 357993, labor cost is $150.", labor.Text)
	assert.Equal(t, "labor_daily", labor.Metadata[model.MetaTable])
	assert.Equal(t, "labor", labor.Metadata[model.MetaRecordType])
	assert.Equal(t, model.KindRecord, labor.Metadata[model.MetaKind])
	assert.Equal(t, "357993", labor.Metadata[model.MetaStore])
	assert.Equal(t, "2024-01-05", labor.Metadata[model.MetaDate])

	waste := docs[2]
	assert.Equal(t, "TABLE waste_daily (waste): on 2024-01-05, for store 357993, waste percent is 4.2.", waste.Text)
}

func TestBuildSummaryDocument(t *testing.T) {
	spec := TableSpec{Name: "actual_table_labor", RecordType: "actual labor", Columns: []string{"pc_number", "date", "actual_hours", "actual_labor"}}
	rows := []map[string]any{
		{"pc_number": "357993", "date": "2024-01-05", "actual_hours": 10.0, "actual_labor": 150.0},
		{"pc_number": "301290", "date": "2024-01-03", "actual_hours": 6.5, "actual_labor": 99.5},
		{"pc_number": "357993", "date": "2024-01-04", "actual_hours": nil, "actual_labor": 50.5},
	}
	set := &TableSet{
		Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, rows)},
		Order:  []string{spec.Name},
	}
	b := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{StoreColumns: []string{"pc_number"}})

	docs := b.Build(set)
	require.Len(t, docs, 4)
	summary := docs[3]
	assert.Equal(t,
		"TABLE actual_table_labor (actual labor) summary: 3 records. dates from 2024-01-03 to 2024-01-05. stores: 301290, 357993. "+
			"total actual hours is 16.5, average 8.25. total actual labor is $300, average $100.",
		summary.Text)
	assert.Equal(t, model.KindSummary, summary.Metadata[model.MetaKind])
	assert.Equal(t, "2024-01-03", summary.Metadata[model.MetaDate])
	assert.NotContains(t, summary.Metadata, model.MetaStore)

	assert.Equal(t, "TABLE actual_table_labor (actual labor): on 2024-01-04, for store 357993, actual labor is $50.5.", docs[2].Text)
}

func TestBuildRendering(t *testing.T) {
	spec := TableSpec{
		Name:      "employee_clockin",
		Columns:   []string{"employee_name", "employee_id", "time_in", "time_out", "total_time", "qty_variance"},
		KeyColumn: "employee_id",
	}
	clockIn := time.Date(2024, 1, 5, 6, 30, 0, 0, time.UTC)
	rows := []map[string]any{{
		"employee_name": "Dana Smith",
		"employee_id":   []byte("E-17"),
		"time_in":       clockIn,
		"time_out":      nil,
		"total_time":    "",
		"qty_variance":  int64(-3),
	}}
	set := &TableSet{Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, rows)}, Order: []string{spec.Name}}

	docs := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{}).Build(set)
	require.Len(t, docs, 2)
	assert.Equal(t,
		"TABLE employee_clockin (employee clockin): employee name is Dana Smith, employee id is E-17, time in at 2024-01-05 06:30, qty variance is -3.",
		docs[0].Text)
	assert.Equal(t, "E-17", docs[0].Metadata[model.MetaRecordID])
}

func TestBuildCurrencyOverride(t *testing.T) {
	spec := TableSpec{Name: "donut_sales_hourly", Columns: []string{"date", "product_name", "quantity", "total"}}
	rows := []map[string]any{{"date": time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "product_name": "Glazed", "quantity": int64(12), "total": "18.00"}}
	set := &TableSet{Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, rows)}, Order: []string{spec.Name}}

	docs := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{CurrencyColumns: []string{"total"}}).Build(set)
	assert.Equal(t, "TABLE donut_sales_hourly (donut sales hourly): on 2024-01-05, product name is Glazed, quantity is 12, total is $18.00.", docs[0].Text)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := laborBuilder()
	first := b.Build(laborSet())
	second := b.Build(laborSet())
	assert.Equal(t, first, second)

	ids := map[string]bool{}
	for _, d := range first {
		assert.False(t, ids[d.ID], "duplicate id %s", d.ID)
		ids[d.ID] = true
	}
}

func TestBuildSkipsFailedTables(t *testing.T) {
	set := laborSet()
	delete(set.Tables, "waste_daily")
	set.Order = []string{"labor_daily"}
	set.Failures = map[string]error{"waste_daily": assert.AnError}

	docs := laborBuilder().Build(set)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "labor_daily", d.Metadata[model.MetaTable])
	}
}

func TestBuildEmptyRecord(t *testing.T) {
	spec := TableSpec{Name: "stores", Columns: []string{"store_name"}}
	set := &TableSet{
		Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, []map[string]any{{"store_name": nil}})},
		Order:  []string{spec.Name},
	}
	docs := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{}).Build(set)
	assert.Equal(t, "TABLE stores (stores): no values recorded.", docs[0].Text)
}

func TestBuildSummarizesEmptyTable(t *testing.T) {
	spec := TableSpec{Name: "employee_schedules", RecordType: "schedule", Columns: []string{"employee_id", "date", "start_time", "end_time"}}
	set := laborSet()
	set.Tables[spec.Name] = toRecords(spec, nil)
	set.Order = append(set.Order, spec.Name)
	b := NewDocumentBuilder(append([]TableSpec{spec}, laborWasteSpecs...), BuilderOptions{StoreColumns: []string{"pc_number"}})

	docs := b.Build(set)
	require.Len(t, docs, 5)
	summary := docs[4]
	assert.Equal(t, "TABLE employee_schedules (schedule) summary: 0 records.", summary.Text)
	assert.Equal(t, "employee_schedules", summary.Metadata[model.MetaTable])
	assert.Equal(t, model.KindSummary, summary.Metadata[model.MetaKind])
	assert.NotContains(t, summary.Metadata, model.MetaDate)
}

func TestBuildSummaryDateRangeIsChronological(t *testing.T) {
	spec := TableSpec{Name: "variance_report_summary", Columns: []string{"pc_number", "reporting_period", "total_variance"}}
	rows := []map[string]any{
		{"pc_number": "357993", "reporting_period": "1/5/2024", "total_variance": 12.0},
		{"pc_number": "357993", "reporting_period": "12/30/2023", "total_variance": -4.0},
		{"pc_number": "357993", "reporting_period": "1/12/2024", "total_variance": 2.0},
	}
	set := &TableSet{Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, rows)}, Order: []string{spec.Name}}

	docs := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{StoreColumns: []string{"pc_number"}}).Build(set)
	require.Len(t, docs, 4)
	summary := docs[3]
	assert.Contains(t, summary.Text, "dates from 12/30/2023 to 1/12/2024")
	assert.Equal(t, "12/30/2023", summary.Metadata[model.MetaDate])
	assert.Equal(t, "357993", summary.Metadata[model.MetaStore])
}

func TestBuildDateFromTimestampColumn(t *testing.T) {
	spec := TableSpec{Name: "employee_clockin", Columns: []string{"employee_id", "time_in", "time_out"}}
	rows := []map[string]any{
		{"employee_id": "E-17", "time_in": time.Date(2024, 1, 5, 6, 30, 0, 0, time.UTC), "time_out": time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC)},
		{"employee_id": "E-18", "time_in": "2024-01-06 07:15", "time_out": nil},
	}
	set := &TableSet{Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, rows)}, Order: []string{spec.Name}}

	docs := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{}).Build(set)
	require.Len(t, docs, 3)
	assert.Equal(t, "2024-01-05", docs[0].Metadata[model.MetaDate])
	assert.Equal(t, "TABLE employee_clockin (employee clockin): employee id is E-17, time in at 2024-01-05 06:30, time out at 2024-01-05 14:00.", docs[0].Text)
	assert.Equal(t, "2024-01-06", docs[1].Metadata[model.MetaDate])
}

func TestRecordDateColumnWinsOverTimestamp(t *testing.T) {
	spec := TableSpec{Name: "employee_schedules", Columns: []string{"date", "start_time"}}
	rows := []map[string]any{{"date": "2024-01-07", "start_time": time.Date(2024, 1, 6, 23, 0, 0, 0, time.UTC)}}
	set := &TableSet{Tables: map[string][]model.BusinessRecord{spec.Name: toRecords(spec, rows)}, Order: []string{spec.Name}}

	docs := NewDocumentBuilder([]TableSpec{spec}, BuilderOptions{}).Build(set)
	assert.Equal(t, "2024-01-07", docs[0].Metadata[model.MetaDate])
}
