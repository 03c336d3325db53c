package common

import "strings"

// SanitizeFilename reduces a generated download name to [A-Za-z0-9_.-],
// replacing everything else with '_'. Path separators never survive and the
// result cannot start with a dot.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "download"
	}
	return out
}
