package report

import (
	"fmt"
	"strconv"
	"time"
)

// Resolution is the write-once mapping from variable name to its computed
// value for one pipeline run. A key is assigned exactly once; re-assignment
// is rejected so a duplicate in the evaluation order can be detected and
// skipped by the caller.
type Resolution struct {
	values map[string]interface{}
}

// NewResolution creates an empty resolution map.
func NewResolution() *Resolution {
	return &Resolution{values: make(map[string]interface{})}
}

// Set assigns a value to a name. Assigning a name twice is an error.
func (r *Resolution) Set(name string, value interface{}) error {
	if _, ok := r.values[name]; ok {
		return fmt.Errorf("variable %q already resolved", name)
	}
	r.values[name] = value
	return nil
}

// Get returns the resolved value for a name.
func (r *Resolution) Get(name string) (interface{}, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether a name has been resolved.
func (r *Resolution) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Len returns the number of resolved variables.
func (r *Resolution) Len() int {
	return len(r.values)
}

// asFloat converts a resolved value to a float64 when it is numeric.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// plainString renders a resolved value in its natural string form: integral
// numbers without a decimal point, dates in ISO order, everything else via
// fmt.
func plainString(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case time.Time:
		if n.Hour() == 0 && n.Minute() == 0 && n.Second() == 0 {
			return n.Format("2006-01-02")
		}
		return n.Format("2006-01-02 15:04:05")
	default:
		if f, ok := asFloat(v); ok {
			return formatFloat(f)
		}
		return fmt.Sprintf("%v", v)
	}
}

// formatFloat renders a float without a trailing ".0" for integral values.
func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// literal renders a resolved value as an expression-language literal, so it
// can be substituted into a user expression in place of a placeholder.
func literal(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return `""`
	case string:
		return strconv.Quote(n)
	case bool:
		return strconv.FormatBool(n)
	case time.Time:
		return strconv.Quote(plainString(n))
	default:
		if f, ok := asFloat(v); ok {
			return formatFloat(f)
		}
		return strconv.Quote(fmt.Sprintf("%v", v))
	}
}
