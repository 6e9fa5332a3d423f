package vars

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Well known home variables.
const (
	KeyLast   = "_"
	KeyPWD    = "PWD"
	KeyOldPWD = "OLDPWD"
)

// transient keys are never persisted.
var transient = map[string]bool{
	KeyLast:   true,
	KeyPWD:    true,
	KeyOldPWD: true,
}

// Parse interprets s as a structured value if it is valid JSON, otherwise s is
// returned unchanged.
func Parse(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return s
	}
	return v
}

// String renders a value the way it is interpolated into a word.
func String(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case Invocable:
		return "[function]"
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

// Truthy reports whether v counts as set for ${x:-default} style tests.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case string:
		return v != ""
	}
	return true
}

// Clone returns a deep copy of maps and arrays.
func Clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return CloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	}
	return v
}

// CloneMap deep copies a variable map, a nil map yields an empty one.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Merge implements "+=": maps are merged shallowly, numbers add, arrays
// append and everything else concatenates as strings.
func Merge(prev, next any) any {
	switch p := prev.(type) {
	case nil:
		return next
	case map[string]any:
		if n, ok := next.(map[string]any); ok {
			out := make(map[string]any, len(p)+len(n))
			for k, v := range p {
				out[k] = v
			}
			for k, v := range n {
				out[k] = v
			}
			return out
		}
	case float64:
		if n, ok := next.(float64); ok {
			return p + n
		}
	case []any:
		out := append([]any{}, p...)
		if n, ok := next.([]any); ok {
			return append(out, n...)
		}
		return append(out, next)
	}
	return String(prev) + String(next)
}

// Persistable copies the part of a home tree that survives a restart:
// transient keys and host functions are dropped.
func Persistable(home map[string]any) map[string]any {
	out := make(map[string]any, len(home))
	for k, v := range home {
		if transient[k] {
			continue
		}
		if v, ok := persistable(v); ok {
			out[k] = v
		}
	}
	return out
}

func persistable(v any) (any, bool) {
	switch v := v.(type) {
	case Invocable:
		return nil, false
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			if child, ok := persistable(child); ok {
				out[k] = child
			}
		}
		return out, true
	case []any:
		out := make([]any, 0, len(v))
		for _, child := range v {
			if child, ok := persistable(child); ok {
				out = append(out, child)
			}
		}
		return out, true
	case nil, string, float64, bool:
		return v, true
	case int:
		return float64(v), true
	}
	return nil, false
}
