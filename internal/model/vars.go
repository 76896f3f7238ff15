// internal/model/vars.go
package model

import "encoding/json"

// MergeVariables overlays per-recipient template variables on top of the
// campaign-wide defaults. Both arguments are JSON objects stored as text;
// malformed or empty JSON contributes nothing.
func MergeVariables(defaults, overrides string) map[string]string {
	merged := map[string]string{}
	for _, raw := range []string{defaults, overrides} {
		if raw == "" {
			continue
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
