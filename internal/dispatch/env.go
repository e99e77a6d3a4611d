package dispatch

import "sort"

// envSlice flattens a string map into "KEY=VALUE" entries in sorted
// key order, the form runtime.CreateSpec/ExecSpec's Env fields expect.
func envSlice(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
