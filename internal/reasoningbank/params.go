package reasoningbank

import (
	"fmt"
	"sort"
	"strings"
)

// canonicalParams renders task parameters deterministically (sorted keys)
// so the same parameter set always embeds to the same query text regardless
// of map iteration order.
func canonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, params[k])
	}
	return b.String()
}

// floatPtr is a small helper for constructing Filters.MinSuccessRate
// thresholds inline.
func floatPtr(v float64) *float64 { return &v }
