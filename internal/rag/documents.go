package rag

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

const maxSummaryStores = 20

var (
	currencyHints    = []string{"cost", "labor", "sales", "variance", "wage", "amount", "price", "revenue"}
	nonCurrencyHints = []string{"qty", "quantity", "hours", "percent", "count"}
	timeColumns      = map[string]struct{}{"time_in": {}, "time_out": {}, "start_time": {}, "end_time": {}}
)

type columnKind int

const (
	columnText columnKind = iota
	columnStore
	columnDate
	columnTime
	columnCurrency
	columnNumber
)

// BuilderOptions names the columns that get special rendering.
type BuilderOptions struct {
	StoreColumns    []string
	CurrencyColumns []string
}

// DocumentBuilder turns fetched records into retrievable documents: one per
// record plus one summary per table. Output depends only on its input.
type DocumentBuilder struct {
	specs    map[string]TableSpec
	store    map[string]struct{}
	currency map[string]struct{}
}

func NewDocumentBuilder(specs []TableSpec, opts BuilderOptions) *DocumentBuilder {
	b := &DocumentBuilder{
		specs:    make(map[string]TableSpec, len(specs)),
		store:    toSet(opts.StoreColumns),
		currency: toSet(opts.CurrencyColumns),
	}
	for _, s := range specs {
		b.specs[s.Name] = s
	}
	return b
}

// Build renders the successfully fetched tables of set in catalogue order.
// Every fetched table gets a summary, including empty ones.
func (b *DocumentBuilder) Build(set *TableSet) []model.Document {
	if set == nil {
		return nil
	}
	var docs []model.Document
	for _, table := range set.Order {
		records := set.Tables[table]
		spec := b.spec(table)
		for _, rec := range records {
			docs = append(docs, b.recordDocument(spec, rec))
		}
		docs = append(docs, b.summaryDocument(spec, records))
	}
	return docs
}

func (b *DocumentBuilder) spec(table string) TableSpec {
	if s, ok := b.specs[table]; ok {
		return s
	}
	return TableSpec{Name: table}
}

func (b *DocumentBuilder) recordDocument(spec TableSpec, rec model.BusinessRecord) model.Document {
	meta := map[string]string{
		model.MetaTable:      spec.Name,
		model.MetaRecordType: spec.recordType(),
		model.MetaKind:       model.KindRecord,
		model.MetaRecordID:   rec.Identity(),
	}

	var dateClause, storeClause string
	var clauses []string
	var firstTime time.Time
	for _, col := range rec.Columns {
		raw, ok := rec.Value(col)
		if !ok {
			continue
		}
		value := normalizeValue(raw)
		if value == "" {
			continue
		}
		switch kind := b.classify(col, raw); kind {
		case columnStore:
			if storeClause == "" {
				storeClause = "for store " + value
				meta[model.MetaStore] = value
				continue
			}
			clauses = append(clauses, humanize(col)+" is "+value)
		case columnDate:
			if dateClause == "" {
				dateClause = "on " + value
				meta[model.MetaDate] = value
				continue
			}
			clauses = append(clauses, humanize(col)+" on "+value)
		case columnTime:
			if t, ok := parseDate(raw); ok && firstTime.IsZero() {
				firstTime = t
			}
			clauses = append(clauses, humanize(col)+" at "+value)
		case columnCurrency:
			clauses = append(clauses, humanize(col)+" is $"+value)
		default:
			clauses = append(clauses, humanize(col)+" is "+value)
		}
	}

	if dateClause == "" && !firstTime.IsZero() {
		meta[model.MetaDate] = firstTime.Format("2006-01-02")
	}

	parts := make([]string, 0, len(clauses)+2)
	if dateClause != "" {
		parts = append(parts, dateClause)
	}
	if storeClause != "" {
		parts = append(parts, storeClause)
	}
	parts = append(parts, clauses...)

	body := "no values recorded"
	if len(parts) > 0 {
		body = strings.Join(parts, ", ")
	}
	return model.Document{
		ID:       documentID(spec.Name, model.KindRecord, rec.Identity()+"#"+strconv.Itoa(rec.Position)),
		Text:     fmt.Sprintf("TABLE %s (%s): %s.", spec.Name, spec.recordType(), body),
		Metadata: meta,
	}
}

type numericTotal struct {
	column   string
	currency bool
	sum      float64
	count    int
}

// dateBound is one end of a summary's date range. Values that parse as
// dates compare chronologically, others fall back to text order.
type dateBound struct {
	text   string
	at     time.Time
	parsed bool
}

func (d dateBound) before(o dateBound) bool {
	if d.parsed && o.parsed {
		return d.at.Before(o.at)
	}
	return d.text < o.text
}

func (b *DocumentBuilder) summaryDocument(spec TableSpec, records []model.BusinessRecord) model.Document {
	var minDate, maxDate dateBound
	stores := map[string]struct{}{}
	var totals []*numericTotal
	byColumn := map[string]*numericTotal{}

	for _, rec := range records {
		seenDate := false
		for _, col := range rec.Columns {
			raw, ok := rec.Value(col)
			if !ok {
				continue
			}
			switch kind := b.classify(col, raw); kind {
			case columnStore:
				if v := normalizeValue(raw); v != "" {
					stores[v] = struct{}{}
				}
			case columnDate:
				if seenDate {
					continue
				}
				seenDate = true
				v := normalizeValue(raw)
				if v == "" {
					continue
				}
				d := dateBound{text: v}
				d.at, d.parsed = parseDate(raw)
				if minDate.text == "" || d.before(minDate) {
					minDate = d
				}
				if maxDate.text == "" || maxDate.before(d) {
					maxDate = d
				}
			case columnCurrency, columnNumber:
				if col == spec.KeyColumn || isIdentifier(col) {
					continue
				}
				f, ok := toFloat(raw)
				if !ok {
					continue
				}
				t, exists := byColumn[col]
				if !exists {
					t = &numericTotal{column: col, currency: kind == columnCurrency}
					byColumn[col] = t
					totals = append(totals, t)
				}
				t.sum += f
				t.count++
			}
		}
	}

	noun := "records"
	if len(records) == 1 {
		noun = "record"
	}
	sentences := []string{fmt.Sprintf("%d %s", len(records), noun)}
	if minDate.text != "" {
		sentences = append(sentences, fmt.Sprintf("dates from %s to %s", minDate.text, maxDate.text))
	}
	if len(stores) > 0 {
		sentences = append(sentences, "stores: "+storeList(stores))
	}
	for _, t := range totals {
		prefix := ""
		if t.currency {
			prefix = "$"
		}
		sentences = append(sentences, fmt.Sprintf("total %s is %s%s, average %s%s",
			humanize(t.column), prefix, formatFloat(t.sum), prefix, formatFloat(t.sum/float64(t.count))))
	}

	meta := map[string]string{
		model.MetaTable:      spec.Name,
		model.MetaRecordType: spec.recordType(),
		model.MetaKind:       model.KindSummary,
		model.MetaRecordID:   model.KindSummary,
	}
	if minDate.text != "" {
		meta[model.MetaDate] = minDate.text
	}
	if len(stores) == 1 {
		for s := range stores {
			meta[model.MetaStore] = s
		}
	}

	return model.Document{
		ID:       documentID(spec.Name, model.KindSummary, ""),
		Text:     fmt.Sprintf("TABLE %s (%s) summary: %s.", spec.Name, spec.recordType(), strings.Join(sentences, ". ")),
		Metadata: meta,
	}
}

func (b *DocumentBuilder) classify(column string, value any) columnKind {
	name := strings.ToLower(column)
	if _, ok := b.store[name]; ok {
		return columnStore
	}
	if name == "date" || name == "reporting_period" || strings.HasSuffix(name, "_date") {
		return columnDate
	}
	if _, ok := timeColumns[name]; ok || strings.HasSuffix(name, "_at") {
		return columnTime
	}
	if t, ok := value.(time.Time); ok {
		if isMidnight(t) {
			return columnDate
		}
		return columnTime
	}
	if _, ok := toFloat(value); !ok {
		return columnText
	}
	if _, ok := b.currency[name]; ok {
		return columnCurrency
	}
	for _, hint := range nonCurrencyHints {
		if strings.Contains(name, hint) {
			return columnNumber
		}
	}
	for _, hint := range currencyHints {
		if strings.Contains(name, hint) {
			return columnCurrency
		}
	}
	return columnNumber
}

// normalizeValue renders a database value the same way every time.
func normalizeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case time.Time:
		if isMidnight(x) {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04")
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"1/2/2006",
	"1/2/2006 15:04",
	"2006/01/02",
}

// parseDate reads a date or timestamp from a database value.
func parseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case []byte:
		return parseDate(string(x))
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case []byte:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func isIdentifier(column string) bool {
	name := strings.ToLower(column)
	return name == "id" || strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_number")
}

func humanize(column string) string {
	return strings.ReplaceAll(strings.ToLower(column), "_", " ")
}

func storeList(stores map[string]struct{}) string {
	list := make([]string, 0, len(stores))
	for s := range stores {
		list = append(list, s)
	}
	sort.Strings(list)
	if len(list) <= maxSummaryStores {
		return strings.Join(list, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(list[:maxSummaryStores], ", "), len(list)-maxSummaryStores)
}

func documentID(table, kind, identity string) string {
	return uuid.NewSHA1(documentNamespace, []byte(table+"|"+kind+"|"+identity)).String()
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}
