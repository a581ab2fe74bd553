package ir

import "sort"

// Extensions is the typed side-map for provider-specific passthrough fields.
// Keys are upstream wire names; dotted keys address nested objects when the
// request is encoded (e.g. "chat_template_kwargs.enable_thinking").
type Extensions map[string]any

// Get returns the value stored under key.
func (e Extensions) Get(key string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e[key]
	return v, ok
}

// Has reports whether key is present.
func (e Extensions) Has(key string) bool {
	_, ok := e.Get(key)
	return ok
}

// Bool returns the value under key when it is a bool.
func (e Extensions) Bool(key string) (bool, bool) {
	v, ok := e.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Delete removes key.
func (e Extensions) Delete(key string) {
	if e != nil {
		delete(e, key)
	}
}

// Keys returns the keys in sorted order.
func (e Extensions) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy. Nested maps and slices are copied.
func (e Extensions) Clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

// SetExtension stores value under key, allocating the map when needed.
func (r *Request) SetExtension(key string, value any) {
	if r.Extensions == nil {
		r.Extensions = make(Extensions)
	}
	r.Extensions[key] = value
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
