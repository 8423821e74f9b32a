package http

import "strings"

// parseForm decodes an application/x-www-form-urlencoded body into dst.
// Pairs without '=' are skipped and later keys overwrite earlier ones.
// A '%' that is not followed by two hex digits is kept as is.
func parseForm(body string, dst map[string]string) {
	for body != "" {
		var pair string
		pair, body, _ = strings.Cut(body, "&")

		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		dst[unescapeForm(key)] = unescapeForm(value)
	}
}

func unescapeForm(s string) string {
	if strings.IndexByte(s, '%') < 0 && strings.IndexByte(s, '+') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
				i += 2
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
