package store

import (
	"fmt"
	"strings"
	"time"

	"pushlytics/api/models"
)

// Query is a parameterized statement. Values only ever travel in Args.
type Query struct {
	SQL  string
	Args []any
}

// Dialect renders the backend-specific pieces of an event query.
type Dialect interface {
	Name() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// StepLiteral renders a constant step index as a 32-bit integer column.
	StepLiteral(step int) string
	// NullText renders a typed NULL text column.
	NullText() string
	// PropertyText renders an expression yielding the property's text or NULL.
	PropertyText(key string) string
	// PropertyCondition renders a boolean expression for one filter.
	PropertyCondition(f models.PropertyFilter) (string, error)
	// TimeBound renders a range bound as a template holding {value} and the
	// argument bound in its place. lower marks the start of the range.
	TimeBound(t time.Time, lower bool) (string, any)
}

// builder accumulates bind arguments while a statement is assembled.
type builder struct {
	d    Dialect
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) timeBound(t time.Time, lower bool) string {
	tmpl, arg := b.d.TimeBound(t.UTC(), lower)
	return b.expand(tmpl, map[string]any{valueMarker: arg})
}

func (b *builder) scope(s Scope) string {
	conds := []string{
		"org_id = " + b.bind(s.OrgID),
		"occurred_at >= " + b.timeBound(s.Range.Start, true),
		"occurred_at <= " + b.timeBound(s.Range.End, false),
		"user_id IS NOT NULL",
		"user_id <> ''",
	}
	if s.SiteID != "" {
		conds = append(conds, "site_id = "+b.bind(s.SiteID))
	}
	return strings.Join(conds, " AND ")
}

func (b *builder) matcher(m models.EventMatcher) (string, error) {
	var conds []string
	if m.EventType != "" {
		conds = append(conds, "event_type = "+b.bind(m.EventType))
	}
	if m.EventName != "" {
		conds = append(conds, "event_name = "+b.bind(m.EventName))
	}
	for _, f := range m.Filters {
		cond, err := b.filter(f)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), nil
}

// filter expands the dialect template, binding the key, operand and numeric
// pattern in the order their markers appear.
func (b *builder) filter(f models.PropertyFilter) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	tmpl, err := b.d.PropertyCondition(f)
	if err != nil {
		return "", err
	}
	var operand any = f.Value
	if f.IsNumeric() {
		n, _ := f.NumericValue()
		operand = n
	}
	return b.expand(tmpl, map[string]any{
		keyMarker:     f.Key,
		valueMarker:   operand,
		patternMarker: models.NumericPattern,
	}), nil
}

const (
	keyMarker     = "{key}"
	valueMarker   = "{value}"
	patternMarker = "{pattern}"
)

// expand replaces each marker in tmpl with a placeholder bound to its value.
// Templates never carry literals, so every placeholder in the output has an
// argument.
func (b *builder) expand(tmpl string, values map[string]any) string {
	var sb strings.Builder
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			sb.WriteString(tmpl)
			return sb.String()
		}
		sb.WriteString(tmpl[:i])
		tmpl = tmpl[i:]
		matched := false
		for marker, v := range values {
			if strings.HasPrefix(tmpl, marker) {
				sb.WriteString(b.bind(v))
				tmpl = tmpl[len(marker):]
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte('{')
			tmpl = tmpl[1:]
		}
	}
}

// BuildStepScan renders one SELECT per step joined with UNION ALL, so every step
// contributes rows tagged with its index.
func BuildStepScan(d Dialect, scan StepScan) (Query, error) {
	if len(scan.Steps) == 0 {
		return Query{}, fmt.Errorf("step scan requires at least one step")
	}
	b := &builder{d: d}
	parts := make([]string, 0, len(scan.Steps))
	for i, step := range scan.Steps {
		scope := b.scope(scan.Scope)
		cond, err := b.matcher(step)
		if err != nil {
			return Query{}, fmt.Errorf("step %d: %w", i, err)
		}
		parts = append(parts, fmt.Sprintf(
			"SELECT user_id, %s AS step_index, occurred_at FROM events WHERE %s AND %s",
			d.StepLiteral(i), scope, cond))
	}
	sql := "SELECT user_id, step_index, occurred_at FROM (" +
		strings.Join(parts, " UNION ALL ") +
		") AS step_rows ORDER BY user_id, occurred_at, step_index"
	return Query{SQL: sql, Args: b.args}, nil
}

// BuildEntryScan renders the per-user minimum qualifying timestamp.
func BuildEntryScan(d Dialect, scan EntryScan) (Query, error) {
	b := &builder{d: d}
	scope := b.scope(scan.Scope)
	cond, err := b.matcher(scan.Matcher)
	if err != nil {
		return Query{}, err
	}
	sql := fmt.Sprintf(
		"SELECT user_id, min(occurred_at) AS first_seen FROM events WHERE %s AND %s GROUP BY user_id ORDER BY user_id",
		scope, cond)
	return Query{SQL: sql, Args: b.args}, nil
}

// BuildActivityScan renders every qualifying event with an optional raw property value.
func BuildActivityScan(d Dialect, scan ActivityScan) (Query, error) {
	b := &builder{d: d}
	value := d.NullText()
	if scan.ValueProperty != "" {
		value = b.expand(d.PropertyText(keyMarker), map[string]any{keyMarker: scan.ValueProperty})
	}
	scope := b.scope(scan.Scope)
	cond, err := b.matcher(scan.Matcher)
	if err != nil {
		return Query{}, err
	}
	sql := fmt.Sprintf(
		"SELECT user_id, occurred_at, %s AS raw_value FROM events WHERE %s AND %s ORDER BY user_id, occurred_at",
		value, scope, cond)
	return Query{SQL: sql, Args: b.args}, nil
}

// ClickHouseDialect targets a MergeTree `events` table whose properties column
// is Map(String, String).
type ClickHouseDialect struct{}

func (ClickHouseDialect) Name() string             { return "clickhouse" }
func (ClickHouseDialect) Placeholder(int) string   { return "?" }
func (ClickHouseDialect) NullText() string         { return "CAST(NULL AS Nullable(String))" }
func (ClickHouseDialect) StepLiteral(i int) string { return fmt.Sprintf("CAST(%d AS Int32)", i) }

func (ClickHouseDialect) PropertyText(key string) string {
	return fmt.Sprintf("if(mapContains(properties, %[1]s), properties[%[1]s], NULL)", key)
}

func (ClickHouseDialect) PropertyCondition(f models.PropertyFilter) (string, error) {
	switch f.Operator {
	case models.OpExists:
		return "mapContains(properties, {key})", nil
	case models.OpEquals:
		return "(mapContains(properties, {key}) AND properties[{key}] = {value})", nil
	case models.OpNotEquals:
		return "(mapContains(properties, {key}) AND properties[{key}] != {value})", nil
	case models.OpContains:
		return "(mapContains(properties, {key}) AND positionCaseInsensitiveUTF8(properties[{key}], {value}) > 0)", nil
	case models.OpGreater, models.OpGreaterOrEq, models.OpLess, models.OpLessOrEq:
		return fmt.Sprintf("(match(properties[{key}], {pattern}) AND toFloat64OrNull(properties[{key}]) %s {value})",
			sqlComparator(f.Operator)), nil
	}
	return "", fmt.Errorf("clickhouse: unsupported operator %q", f.Operator)
}

// clickhouseTimeLayout keeps nanoseconds; a bound time.Time would be sent at
// second precision.
const clickhouseTimeLayout = "2006-01-02 15:04:05.000000000"

func (ClickHouseDialect) TimeBound(t time.Time, _ bool) (string, any) {
	return "toDateTime64({value}, 9, 'UTC')", t.UTC().Format(clickhouseTimeLayout)
}

// PostgresDialect targets a row-oriented `events` table whose properties column is JSONB.
type PostgresDialect struct{}

func (PostgresDialect) Name() string             { return "postgres" }
func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (PostgresDialect) NullText() string         { return "CAST(NULL AS text)" }
func (PostgresDialect) StepLiteral(i int) string { return fmt.Sprintf("CAST(%d AS integer)", i) }

func (PostgresDialect) PropertyText(key string) string {
	return fmt.Sprintf("(properties->>%s::text)", key)
}

func (PostgresDialect) PropertyCondition(f models.PropertyFilter) (string, error) {
	switch f.Operator {
	case models.OpExists:
		return "(properties->>{key}::text) IS NOT NULL", nil
	case models.OpEquals:
		return "(properties->>{key}::text) = {value}", nil
	case models.OpNotEquals:
		return "(properties->>{key}::text) <> {value}", nil
	case models.OpContains:
		return "strpos(lower(properties->>{key}::text), lower({value})) > 0", nil
	case models.OpGreater, models.OpGreaterOrEq, models.OpLess, models.OpLessOrEq:
		return fmt.Sprintf("(CASE WHEN (properties->>{key}::text) ~ {pattern} THEN (properties->>{key}::text)::double precision END) %s {value}",
			sqlComparator(f.Operator)), nil
	}
	return "", fmt.Errorf("postgres: unsupported operator %q", f.Operator)
}

// TimeBound snaps bounds inward to whole microseconds, the precision of
// timestamptz, so the server never rounds a bound outward.
func (PostgresDialect) TimeBound(t time.Time, lower bool) (string, any) {
	snapped := t.UTC().Truncate(time.Microsecond)
	if lower && snapped.Before(t) {
		snapped = snapped.Add(time.Microsecond)
	}
	return "{value}", snapped
}

func sqlComparator(op models.FilterOperator) string {
	switch op {
	case models.OpGreater:
		return ">"
	case models.OpGreaterOrEq:
		return ">="
	case models.OpLess:
		return "<"
	default:
		return "<="
	}
}
