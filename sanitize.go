package journald

import "strings"

// sanitizeKey rewrites key into journald's field-name grammar: uppercase
// ASCII letters, digits, and underscores, never beginning with an underscore.
// Lowercase letters are capitalized and any other character becomes a single
// underscore, except that invalid characters before the first valid one are
// dropped, so the result never gains a leading underscore. A key with no
// valid character sanitizes to the empty string.
//
// One left-to-right pass; the only extra state is the "seen" flag.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	// until we find a valid output character, we can't emit underscores
	seen := false
	for _, r := range key {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteByte(byte(r))
			seen = true
		case r >= 'a' && r <= 'z':
			b.WriteByte(byte(r) - 'a' + 'A')
			seen = true
		case seen:
			b.WriteByte('_')
		}
	}
	return b.String()
}
