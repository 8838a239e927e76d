package httpclient

import (
	"net/http"
	"strings"
)

// headerSet is an insertion-ordered header collection with
// case-insensitive names. Values are never shared between clones.
type headerSet struct {
	order  []string
	values map[string][]string
}

func newHeaderSet() headerSet {
	return headerSet{values: make(map[string][]string)}
}

func (h headerSet) clone() headerSet {
	out := headerSet{
		order:  append([]string(nil), h.order...),
		values: make(map[string][]string, len(h.values)),
	}
	for k, v := range h.values {
		out.values[k] = append([]string(nil), v...)
	}
	return out
}

// set replaces any existing values for key.
func (h *headerSet) set(key, value string) {
	name := http.CanonicalHeaderKey(strings.TrimSpace(key))
	if _, ok := h.values[name]; !ok {
		h.order = append(h.order, name)
	}
	h.values[name] = []string{value}
}

// add appends values to key, creating it if absent.
func (h *headerSet) add(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	name := http.CanonicalHeaderKey(strings.TrimSpace(key))
	if _, ok := h.values[name]; !ok {
		h.order = append(h.order, name)
	}
	h.values[name] = append(h.values[name], values...)
}

func (h headerSet) get(key string) []string {
	return h.values[http.CanonicalHeaderKey(strings.TrimSpace(key))]
}

// lines flattens the set into "Name: v1,v2" entries in insertion order.
func (h headerSet) lines() []string {
	out := make([]string, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, formatHeaderLine(name, strings.Join(h.values[name], ",")))
	}
	return out
}

func formatHeaderLine(name, value string) string {
	return name + ": " + value
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), true
}

// linesToHeader parses header lines back into an http.Header. A line
// carrying a comma-joined list stays a single value, as it was sent.
func linesToHeader(lines []string) http.Header {
	h := make(http.Header, len(lines))
	for _, line := range lines {
		name, value, ok := splitHeaderLine(line)
		if !ok || name == "" {
			continue
		}
		h.Add(name, value)
	}
	return h
}
