package testing

import (
	"fmt"
	"strconv"
	"strings"
)

// actionArgs are resolved step arguments. Template rendering turns every
// templated value into a string, so the accessors accept string forms of
// numbers and booleans.
type actionArgs map[string]interface{}

func argErr(key, format string, args ...interface{}) error {
	return &ArgumentError{Name: key, Problem: fmt.Sprintf(format, args...)}
}

func (a actionArgs) has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a actionArgs) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", argErr(key, "is missing")
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	}
	return "", argErr(key, "must be a string, got %T", v)
}

func (a actionArgs) StringOr(key, def string) (string, error) {
	if !a.has(key) {
		return def, nil
	}
	return a.String(key)
}

func (a actionArgs) Int(key string) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, argErr(key, "is missing")
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, argErr(key, "must be a whole number, got %v", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, argErr(key, "must be a number, got %q", n)
		}
		return i, nil
	}
	return 0, argErr(key, "must be a number, got %T", v)
}

func (a actionArgs) IntOr(key string, def int) (int, error) {
	if !a.has(key) {
		return def, nil
	}
	return a.Int(key)
}

func (a actionArgs) Float(key string) (float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, argErr(key, "is missing")
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, argErr(key, "must be a number, got %q", n)
		}
		return f, nil
	}
	return 0, argErr(key, "must be a number, got %T", v)
}

func (a actionArgs) FloatOr(key string, def float64) (float64, error) {
	if !a.has(key) {
		return def, nil
	}
	return a.Float(key)
}

func (a actionArgs) BoolOr(key string, def bool) (bool, error) {
	if !a.has(key) {
		return def, nil
	}
	switch b := a[key].(type) {
	case bool:
		return b, nil
	case string:
		v, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, argErr(key, "must be true or false, got %q", b)
		}
		return v, nil
	}
	return false, argErr(key, "must be a boolean, got %T", a[key])
}

// StringMap reads a map of scalars, e.g. text values by field name.
func (a actionArgs) StringMap(key string) (map[string]string, error) {
	if !a.has(key) {
		return nil, nil
	}
	raw, ok := a[key].(map[string]interface{})
	if !ok {
		return nil, argErr(key, "must be a map, got %T", a[key])
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// List reads a list argument as a slice of items.
func (a actionArgs) List(key string) ([]interface{}, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, argErr(key, "is missing")
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, argErr(key, "must be a list, got %T", v)
	}
	return list, nil
}
