package condition

import "strings"

// undefined is the sentinel type returned for missing context keys.
type undefined struct{}

// Undefined is returned by GetValueByKey when a key or any intermediate
// path segment does not exist. It is distinct from nil, false, 0 and "".
var Undefined = undefined{}

// IsUndefined reports whether v is the missing-key sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// RuntimeContext is the read-only per-evaluation snapshot of the flow state.
// Each section is an open-ended attribute map; nested maps are traversed by
// dot-path lookup.
type RuntimeContext struct {
	User      map[string]any `json:"user,omitempty"`
	Device    map[string]any `json:"device,omitempty"`
	Request   map[string]any `json:"request,omitempty"`
	Risk      map[string]any `json:"risk,omitempty"`
	Form      map[string]any `json:"form,omitempty"`
	PrevNode  map[string]any `json:"prevNode,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// NewRuntimeContext returns a context with all sections initialized.
func NewRuntimeContext() *RuntimeContext {
	return &RuntimeContext{
		User:      make(map[string]any),
		Device:    make(map[string]any),
		Request:   make(map[string]any),
		Risk:      make(map[string]any),
		Form:      make(map[string]any),
		PrevNode:  make(map[string]any),
		Variables: make(map[string]any),
	}
}

// section returns the top-level attribute map for a path segment.
func (c *RuntimeContext) section(name string) (map[string]any, bool) {
	switch name {
	case "user":
		return c.User, true
	case "device":
		return c.Device, true
	case "request":
		return c.Request, true
	case "risk":
		return c.Risk, true
	case "form":
		return c.Form, true
	case "prevNode":
		return c.PrevNode, true
	case "variables":
		return c.Variables, true
	}
	return nil, false
}

// GetValueByKey resolves a dot-path key against the context. Missing
// intermediate or terminal keys resolve to Undefined.
func GetValueByKey(key string, ctx *RuntimeContext) any {
	if ctx == nil || key == "" {
		return Undefined
	}

	parts := strings.Split(key, ".")
	sec, ok := ctx.section(parts[0])
	if !ok || sec == nil {
		return Undefined
	}
	if len(parts) == 1 {
		return sec
	}

	var current any = sec
	for _, part := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return Undefined
		}
		current, ok = m[part]
		if !ok {
			return Undefined
		}
	}
	return current
}
