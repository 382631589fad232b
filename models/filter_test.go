package models

import "testing"

func TestPropertyFilterMatch(t *testing.T) {
	props := map[string]any{
		"plan":   "Pro",
		"amount": 49.99,
		"qty":    "3",
		"gift":   true,
		"note":   nil,
		"tags":   []any{"a"},
		"code":   "12abc",
		"padded": " 7",
	}
	tests := []struct {
		name   string
		filter PropertyFilter
		want   bool
	}{
		{"eq string", PropertyFilter{Key: "plan", Operator: OpEquals, Value: "Pro"}, true},
		{"eq is case sensitive", PropertyFilter{Key: "plan", Operator: OpEquals, Value: "pro"}, false},
		{"eq number text", PropertyFilter{Key: "amount", Operator: OpEquals, Value: "49.99"}, true},
		{"eq bool text", PropertyFilter{Key: "gift", Operator: OpEquals, Value: "true"}, true},
		{"neq", PropertyFilter{Key: "plan", Operator: OpNotEquals, Value: "Free"}, true},
		{"neq missing key", PropertyFilter{Key: "missing", Operator: OpNotEquals, Value: "x"}, false},
		{"contains ignores case", PropertyFilter{Key: "plan", Operator: OpContains, Value: "RO"}, true},
		{"gt number", PropertyFilter{Key: "amount", Operator: OpGreater, Value: "40"}, true},
		{"gt numeric string", PropertyFilter{Key: "qty", Operator: OpGreater, Value: "2"}, true},
		{"lte", PropertyFilter{Key: "qty", Operator: OpLessOrEq, Value: "3"}, true},
		{"lt false", PropertyFilter{Key: "amount", Operator: OpLess, Value: "10"}, false},
		{"gte non numeric value", PropertyFilter{Key: "code", Operator: OpGreaterOrEq, Value: "1"}, false},
		{"gt padded numeric text", PropertyFilter{Key: "padded", Operator: OpGreater, Value: "1"}, false},
		{"gt on bool", PropertyFilter{Key: "gift", Operator: OpGreater, Value: "0"}, false},
		{"exists", PropertyFilter{Key: "plan", Operator: OpExists}, true},
		{"exists null", PropertyFilter{Key: "note", Operator: OpExists}, false},
		{"exists missing", PropertyFilter{Key: "missing", Operator: OpExists}, false},
		{"eq null", PropertyFilter{Key: "note", Operator: OpEquals, Value: ""}, false},
		{"composite never compares", PropertyFilter{Key: "tags", Operator: OpContains, Value: "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(props); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPropertyFilterValidate(t *testing.T) {
	tests := []struct {
		filter  PropertyFilter
		wantErr bool
	}{
		{PropertyFilter{Key: "a", Operator: OpEquals, Value: "x"}, false},
		{PropertyFilter{Key: "a", Operator: OpExists}, false},
		{PropertyFilter{Key: "a", Operator: OpGreater, Value: "-1.5e3"}, false},
		{PropertyFilter{Key: "", Operator: OpEquals}, true},
		{PropertyFilter{Key: "a", Operator: "like"}, true},
		{PropertyFilter{Key: "a", Operator: OpLess, Value: "ten"}, true},
		{PropertyFilter{Key: "a", Operator: OpLess, Value: "1."}, true},
	}
	for _, tt := range tests {
		if err := tt.filter.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
		}
	}
}

func TestPropertyText(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"x", "x", true},
		{100.0, "100", true},
		{0.1, "0.1", true},
		{int64(-7), "-7", true},
		{false, "false", true},
		{nil, "", false},
		{map[string]any{}, "", false},
	}
	for _, tt := range tests {
		got, ok := PropertyText(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("PropertyText(%v) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestEventMatcher(t *testing.T) {
	e := Event{EventType: "track", EventName: "purchase", Properties: map[string]any{"amount": 20.0}}
	tests := []struct {
		m    EventMatcher
		want bool
	}{
		{EventMatcher{}, true},
		{EventMatcher{EventName: "purchase"}, true},
		{EventMatcher{EventType: "page"}, false},
		{EventMatcher{EventType: "track", EventName: "signup"}, false},
		{EventMatcher{EventName: "purchase", Filters: []PropertyFilter{{Key: "amount", Operator: OpGreaterOrEq, Value: "20"}}}, true},
		{EventMatcher{EventName: "purchase", Filters: []PropertyFilter{{Key: "amount", Operator: OpGreater, Value: "20"}}}, false},
	}
	for i, tt := range tests {
		if got := tt.m.Matches(e); got != tt.want {
			t.Errorf("case %d: Matches() = %v, want %v", i, got, tt.want)
		}
	}

	labels := map[string]EventMatcher{
		"track:purchase": {EventType: "track", EventName: "purchase"},
		"purchase":       {EventName: "purchase"},
		"track":          {EventType: "track"},
		"any":            {},
	}
	for want, m := range labels {
		if got := m.Label(); got != want {
			t.Errorf("Label() = %q, want %q", got, want)
		}
	}
}
