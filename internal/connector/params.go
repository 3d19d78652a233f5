package connector

import (
	"fmt"
	"math"
)

// ParamError describes a malformed connection parameter. It surfaces at
// connector construction, not at first use.
type ParamError struct {
	Key    string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("connection param %q: %s", e.Key, e.Reason)
}

// StringParam reads a required string parameter.
func StringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", &ParamError{Key: key, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParamError{Key: key, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

// IntParam reads a required integer parameter. JSON decoding yields float64;
// only integral values are accepted.
func IntParam(params map[string]any, key string) (int64, error) {
	v, ok := params[key]
	if !ok {
		return 0, &ParamError{Key: key, Reason: "missing"}
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, &ParamError{Key: key, Reason: fmt.Sprintf("expected integer, got %v", n)}
		}
		return int64(n), nil
	default:
		return 0, &ParamError{Key: key, Reason: fmt.Sprintf("expected integer, got %T", v)}
	}
}

// FloatParam reads a required numeric parameter.
func FloatParam(params map[string]any, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, &ParamError{Key: key, Reason: "missing"}
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, &ParamError{Key: key, Reason: fmt.Sprintf("expected number, got %T", v)}
	}
}

// OptionalString reads an optional string parameter, returning def when the
// key is absent.
func OptionalString(params map[string]any, key, def string) (string, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return StringParam(params, key)
}

// OptionalInt reads an optional integer parameter, returning def when the
// key is absent.
func OptionalInt(params map[string]any, key string, def int64) (int64, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return IntParam(params, key)
}
