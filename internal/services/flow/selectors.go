package flow

import "strings"

// splitChain splits a comma-separated selector fallback chain into individual
// selectors, most specific first
func splitChain(chain string) []string {
	parts := strings.Split(chain, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// jsSelectorArray renders a selector chain as a JS array literal for use
// inside Evaluate expressions
func jsSelectorArray(chain string) string {
	parts := splitChain(chain)
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(p, "'", "\\'"))
		b.WriteByte('\'')
	}
	b.WriteByte(']')
	return b.String()
}
