package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FilterOperator is the comparison applied by a PropertyFilter.
type FilterOperator string

const (
	OpEquals      FilterOperator = "eq"
	OpNotEquals   FilterOperator = "neq"
	OpContains    FilterOperator = "contains"
	OpGreater     FilterOperator = "gt"
	OpGreaterOrEq FilterOperator = "gte"
	OpLess        FilterOperator = "lt"
	OpLessOrEq    FilterOperator = "lte"
	OpExists      FilterOperator = "exists"
)

// NumericPattern is the only textual form treated as a number, in Go and in every SQL dialect.
const NumericPattern = `^-?[0-9]+([.][0-9]+)?([eE][-+]?[0-9]+)?$`

var numericRe = regexp.MustCompile(NumericPattern)

// PropertyFilter is a predicate over one event property. Properties are compared
// through their text form: strings as-is, numbers in shortest decimal form.
type PropertyFilter struct {
	Key      string         `json:"key"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value,omitempty"`
}

// IsNumeric reports whether the operator compares numerically.
func (f PropertyFilter) IsNumeric() bool {
	switch f.Operator {
	case OpGreater, OpGreaterOrEq, OpLess, OpLessOrEq:
		return true
	}
	return false
}

// NumericValue parses the filter operand for numeric operators.
func (f PropertyFilter) NumericValue() (float64, error) {
	if !numericRe.MatchString(f.Value) {
		return 0, fmt.Errorf("filter %q: operand %q is not numeric", f.Key, f.Value)
	}
	return strconv.ParseFloat(f.Value, 64)
}

func (f PropertyFilter) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("property filter key cannot be empty")
	}
	switch f.Operator {
	case OpEquals, OpNotEquals, OpContains, OpExists:
		return nil
	case OpGreater, OpGreaterOrEq, OpLess, OpLessOrEq:
		_, err := f.NumericValue()
		return err
	default:
		return fmt.Errorf("filter %q: unknown operator %q", f.Key, f.Operator)
	}
}

// Match evaluates the filter against a property map. A missing property never
// matches, except that it is the only thing that fails OpExists.
func (f PropertyFilter) Match(props map[string]any) bool {
	raw, present := props[f.Key]
	if f.Operator == OpExists {
		return present && raw != nil
	}
	text, ok := PropertyText(raw)
	if !present || !ok {
		return false
	}

	switch f.Operator {
	case OpEquals:
		return text == f.Value
	case OpNotEquals:
		return text != f.Value
	case OpContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(f.Value))
	}

	want, err := f.NumericValue()
	if err != nil {
		return false
	}
	got, ok := ParseNumeric(text)
	if !ok {
		return false
	}
	switch f.Operator {
	case OpGreater:
		return got > want
	case OpGreaterOrEq:
		return got >= want
	case OpLess:
		return got < want
	case OpLessOrEq:
		return got <= want
	}
	return false
}

// PropertyText renders a decoded property value in the text form the stores hold.
// Composite values have no text form.
func PropertyText(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

// ParseNumeric parses text matching NumericPattern. Text is not trimmed, so
// padded numbers are rejected exactly as the SQL pattern rejects them.
func ParseNumeric(text string) (float64, bool) {
	if !numericRe.MatchString(text) {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// EventMatcher selects events by type, name and property filters.
// An empty type or name matches any value.
type EventMatcher struct {
	EventType string           `json:"event_type,omitempty"`
	EventName string           `json:"event_name,omitempty"`
	Filters   []PropertyFilter `json:"filters,omitempty"`
}

func (m EventMatcher) Validate() error {
	for _, f := range m.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m EventMatcher) Matches(e Event) bool {
	if m.EventType != "" && e.EventType != m.EventType {
		return false
	}
	if m.EventName != "" && e.EventName != m.EventName {
		return false
	}
	for _, f := range m.Filters {
		if !f.Match(e.Properties) {
			return false
		}
	}
	return true
}

// Label is a human-readable name used when a step has none of its own.
func (m EventMatcher) Label() string {
	switch {
	case m.EventType != "" && m.EventName != "":
		return m.EventType + ":" + m.EventName
	case m.EventName != "":
		return m.EventName
	case m.EventType != "":
		return m.EventType
	default:
		return "any"
	}
}
