package migrate

import "strings"

// SplitStatements breaks a SQL script into single statements on top-level
// semicolons. Semicolons inside quoted strings, quoted identifiers, comments
// and PostgreSQL dollar-quoted bodies ($$...$$, $tag$...$tag$) do not split.
// Chunks holding only whitespace or comments are dropped.
func SplitStatements(src string) []string {
	var (
		out     []string
		start   int
		content bool
	)
	flush := func(end int) {
		if content {
			if s := strings.TrimSpace(src[start:end]); s != "" {
				out = append(out, s)
			}
		}
		start, content = end+1, false
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == ';':
			flush(i)
		case c == '-' && strings.HasPrefix(src[i:], "--"):
			if nl := strings.IndexByte(src[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				i = len(src)
			}
		case c == '/' && strings.HasPrefix(src[i:], "/*"):
			if end := strings.Index(src[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(src)
			}
		case c == '\'' || c == '"':
			content = true
			i = skipQuoted(src, i, c)
		case c == '$':
			content = true
			if tag, ok := dollarTag(src[i:]); ok {
				if end := strings.Index(src[i+len(tag):], tag); end >= 0 {
					i += len(tag) + end + len(tag) - 1
				} else {
					i = len(src)
				}
			}
		case c != ' ' && c != '\t' && c != '\n' && c != '\r':
			content = true
		}
	}
	if start < len(src) {
		flush(len(src))
	}
	return out
}

// skipQuoted returns the index of the quote closing the span opened at i.
// A doubled quote is an escaped quote.
func skipQuoted(src string, i int, q byte) int {
	for j := i + 1; j < len(src); j++ {
		if src[j] != q {
			continue
		}
		if j+1 < len(src) && src[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(src)
}

// dollarTag reports the opening tag of a dollar-quoted string at the start
// of s: "$$" or "$name$". Positional parameters such as $1 are not tags.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1], true
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && j > 1:
		default:
			return "", false
		}
	}
	return "", false
}
