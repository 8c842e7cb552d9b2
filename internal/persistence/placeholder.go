// Placeholder portability (spec §4.2): repositories author SQL with `?`
// placeholders; TranslateQuestionMarks rewrites them to `$N` for Postgres,
// respecting single-quoted string literals and escaped `??` sequences.
package persistence

import "strings"

// TranslateQuestionMarks converts every unescaped `?` in query into a
// Postgres-style `$N` placeholder (1-indexed), leaving `?` inside
// single-quoted literals untouched and collapsing an escaped `??` into a
// single literal `?`. It is idempotent on already-numbered SQL: a query
// with no unescaped `?` is returned unchanged.
func TranslateQuestionMarks(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	inQuote := false
	n := 0
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' :
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			if i+1 < len(runes) && runes[i+1] == '?' {
				b.WriteRune('?')
				i++ // consume escaped pair, emit single literal '?'
			} else {
				n++
				b.WriteByte('$')
				b.WriteString(itoa(n))
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
