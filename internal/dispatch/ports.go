package dispatch

import (
	"encoding/json"
	"fmt"
)

// forwardPorts decodes config's forwardPorts array, whose elements are
// either a bare port number or a "host:container" string.
func forwardPorts(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var n int
		if err := json.Unmarshal(r, &n); err == nil {
			out = append(out, fmt.Sprintf("%d", n))
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// appPort decodes config's appPort field, which is a bare port number,
// a "host:container" string, or an array of either.
func appPort(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return []string{fmt.Sprintf("%d", n)}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return forwardPorts(arr)
	}
	return nil
}
