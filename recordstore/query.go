package recordstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/SierraSoftworks/connor"
	"github.com/spf13/cast"

	"github.com/fulldump/offlinestore/utils"
)

// RangeKey is the reserved criteria entry holding date ranges.
const RangeKey = "range"

// Criteria maps field names to exact values. The RangeKey entry, when
// present, maps field names to a Range.
type Criteria map[string]any

type Range struct {
	Start any `json:"start"`
	End   any `json:"end"`
}

type dateRange struct {
	start, end time.Time
	hasStart   bool
	hasEnd     bool
	invalid    bool
}

func (r dateRange) contains(t time.Time) bool {
	if r.invalid {
		return false
	}
	if r.hasStart && t.Before(r.start) {
		return false
	}
	if r.hasEnd && t.After(r.end) {
		return false
	}
	return true
}

// matcher is the compiled form of a Criteria. Building it never touches the
// caller's map. Fields are top level keys of the record data, a dot in a
// field name is part of the name.
type matcher struct {
	exact     map[string]any // primitive values, compared with connor
	composite map[string]any // maps and slices, compared deeply
	ranges    map[string]dateRange
}

func compileCriteria(criteria Criteria) (*matcher, error) {
	m := &matcher{
		exact:     map[string]any{},
		composite: map[string]any{},
		ranges:    map[string]dateRange{},
	}

	normalized := map[string]any{}
	if len(criteria) > 0 {
		err := utils.Remarshal(map[string]any(criteria), &normalized)
		if err != nil {
			return nil, fmt.Errorf("criteria: %w", err)
		}
	}

	for field, value := range normalized {
		if field == RangeKey {
			ranges, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("criteria: '%s' must be an object", RangeKey)
			}
			for rangeField, bounds := range ranges {
				m.ranges[rangeField] = compileRange(bounds)
			}
			continue
		}

		switch value.(type) {
		case map[string]any, []any:
			m.composite[field] = value
		default:
			m.exact[field] = value
		}
	}

	return m, nil
}

func compileRange(bounds any) dateRange {
	r := dateRange{}

	b, ok := bounds.(map[string]any)
	if !ok {
		r.invalid = true
		return r
	}

	if v, exists := b["start"]; exists && v != nil {
		r.start, r.hasStart = parseDate(v)
		r.invalid = r.invalid || !r.hasStart
	}
	if v, exists := b["end"]; exists && v != nil {
		r.end, r.hasEnd = parseDate(v)
		r.invalid = r.invalid || !r.hasEnd
	}

	return r
}

func (m *matcher) match(data map[string]any) (bool, error) {

	for field, expected := range m.composite {
		actual, exists := data[field]
		if !exists || !reflect.DeepEqual(actual, expected) {
			return false, nil
		}
	}

	for field, r := range m.ranges {
		t, ok := parseDate(data[field])
		if !ok || !r.contains(t) {
			return false, nil
		}
	}

	for field, expected := range m.exact {
		actual, exists := data[field]
		if !exists {
			return false, nil
		}
		if expected == nil || actual == nil {
			if expected != actual {
				return false, nil
			}
			continue
		}
		equal, err := connor.Match(
			map[string]any{"v": map[string]any{"$eq": expected}},
			map[string]any{"v": actual},
		)
		if err != nil || !equal {
			return false, err
		}
	}

	return true, nil
}

// parseDate accepts date strings in the usual layouts, numbers as unix
// milliseconds and time.Time values.
func parseDate(v any) (time.Time, bool) {
	switch value := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return value, true
	case float64:
		return time.UnixMilli(int64(value)), true
	case int64:
		return time.UnixMilli(value), true
	case int:
		return time.UnixMilli(int64(value)), true
	case string:
		if value == "" {
			return time.Time{}, false
		}
		t, err := cast.ToTimeE(value)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
