package cache

import "encoding/json"

// As narrows a cached value to T. Values served by the in-memory store keep
// their concrete type; values served by a networked store arrive as JSON
// bytes and are unmarshalled. Returns false when the value is neither.
func As[T any](v any) (T, bool) {
	if t, ok := v.(T); ok {
		return t, true
	}

	var out T
	switch raw := v.(type) {
	case json.RawMessage:
		if json.Unmarshal(raw, &out) == nil {
			return out, true
		}
	case []byte:
		if json.Unmarshal(raw, &out) == nil {
			return out, true
		}
	case string:
		if json.Unmarshal([]byte(raw), &out) == nil {
			return out, true
		}
	}

	var zero T
	return zero, false
}
