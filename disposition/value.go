package disposition

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldKind is the canonical type a field resolves to. Every condition
// literal is coerced into its field's kind before comparison.
type FieldKind string

const (
	KindNumber     FieldKind = "number"
	KindString     FieldKind = "string"
	KindEnum       FieldKind = "enum"
	KindDate       FieldKind = "date"
	KindStringList FieldKind = "string_list"
)

// Value is the canonical representation of a resolved field value or a
// coerced literal. Absent marks fields that could not be resolved (unknown
// custom fields, failed derived-field computation); every operator treats
// an absent value as a non-match.
type Value struct {
	Kind   FieldKind
	Absent bool
	Num    float64
	Str    string
	Date   time.Time
	List   []string
}

func numberValue(n float64) Value    { return Value{Kind: KindNumber, Num: n} }
func stringValue(s string) Value     { return Value{Kind: KindString, Str: s} }
func enumValue(s string) Value       { return Value{Kind: KindEnum, Str: s} }
func dateValue(t time.Time) Value    { return Value{Kind: KindDate, Date: t} }
func listValue(items []string) Value { return Value{Kind: KindStringList, List: items} }
func absentValue(k FieldKind) Value  { return Value{Kind: k, Absent: true} }

// dateLayouts are accepted in order. The first is what the API emits.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseLiteral coerces a condition's right-hand literal into the field's
// kind. The boolean result is false when the literal does not parse; the
// caller turns that into a false condition, never an error.
func parseLiteral(kind FieldKind, literal string) (Value, bool) {
	switch kind {
	case KindNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return Value{}, false
		}
		return numberValue(n), true
	case KindString:
		return stringValue(literal), true
	case KindEnum:
		return enumValue(literal), true
	case KindDate:
		t, ok := parseDate(literal)
		if !ok {
			return Value{}, false
		}
		return dateValue(t), true
	case KindStringList:
		return listValue(splitList(literal)), true
	default:
		return Value{}, false
	}
}

// splitList parses the comma-separated list encoding used by list literals
// and by the in/not_in/between operators. Empty entries are dropped.
func splitList(literal string) []string {
	parts := strings.Split(literal, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// equalFold is the engine's string equality: case-insensitive, trimmed.
func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// sameDay compares dates at day granularity in UTC.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// display renders a value for trace explanations. Deterministic: the same
// value always renders the same string.
func (v Value) display() string {
	if v.Absent {
		return "<absent>"
	}
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindDate:
		return v.Date.UTC().Format(time.RFC3339)
	case KindStringList:
		return "[" + strings.Join(v.List, ", ") + "]"
	default:
		return fmt.Sprintf("%q", v.Str)
	}
}
