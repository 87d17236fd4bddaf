package jschallenge

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifier name, punctuator or decoded string literal
	num  float64
	pos  int
	// nl reports a line terminator between this token and the previous one;
	// the parser uses it for automatic semicolon insertion.
	nl bool
}

// punctuators is ordered longest first so the scanner can take the first
// prefix match.
var punctuators = []string{
	">>>=",
	"===", "!==", ">>>", "<<=", ">>=",
	"==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"++", "--", "<<", ">>", "=>",
	"{", "}", "(", ")", "[", "]", ";", ",", ".", "+", "-", "*", "/", "%", "!", "~",
	"&", "|", "^", "=", "<", ">", "?", ":",
}

func tokenize(src string) ([]token, error) {
	var (
		toks []token
		i    int
		nl   bool
	)
	for {
		var err error
		var sawNL bool
		i, sawNL, err = skipSpace(src, i)
		if err != nil {
			return nil, err
		}
		nl = nl || sawNL
		if i >= len(src) {
			toks = append(toks, token{kind: tokEOF, pos: i, nl: nl})
			return toks, nil
		}

		start := i
		c := src[i]
		switch {
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			n, end, err := scanNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokNumber, num: n, text: src[start:end], pos: start, nl: nl})
			i = end
		case c == '"' || c == '\'' || c == '`':
			s, end, err := scanString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: start, nl: nl})
			i = end
		case isIdentStart(src[i:]):
			end := i
			for end < len(src) {
				r, size := utf8.DecodeRuneInString(src[end:])
				if !(r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
					break
				}
				end += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:end], pos: start, nl: nl})
			i = end
		default:
			matched := ""
			for _, p := range punctuators {
				if strings.HasPrefix(src[i:], p) {
					matched = p
					break
				}
			}
			if matched == "" {
				r, _ := utf8.DecodeRuneInString(src[i:])
				return nil, syntaxError(i, "unexpected character %q", r)
			}
			toks = append(toks, token{kind: tokPunct, text: matched, pos: start, nl: nl})
			i += len(matched)
		}
		nl = false
	}
}

// skipSpace advances past whitespace and comments starting at i.
func skipSpace(src string, i int) (int, bool, error) {
	nl := false
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n' || c == '\r':
			nl = true
			i++
		case c == ' ' || c == '\t' || c == '\v' || c == '\f':
			i++
		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexAny(src[i:], "\r\n")
			if end < 0 {
				return len(src), nl, nil
			}
			i += end
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return 0, false, syntaxError(i, "unterminated comment")
			}
			if strings.ContainsAny(src[i:i+2+end], "\r\n") {
				nl = true
			}
			i += end + 4
		case c >= utf8.RuneSelf:
			r, size := utf8.DecodeRuneInString(src[i:])
			if r == '\u2028' || r == '\u2029' {
				nl = true
			} else if !unicode.IsSpace(r) && r != '\uFEFF' {
				return i, nl, nil
			}
			i += size
		default:
			return i, nl, nil
		}
	}
	return i, nl, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func scanNumber(src string, i int) (float64, int, error) {
	start := i
	if src[i] == '0' && i+1 < len(src) && (src[i+1] == 'x' || src[i+1] == 'X') {
		i += 2
		for i < len(src) && isHex(src[i]) {
			i++
		}
		n, err := strconv.ParseUint(src[start+2:i], 16, 64)
		if err != nil {
			return 0, 0, syntaxError(start, "invalid hex literal %q", src[start:i])
		}
		return float64(n), i, nil
	}
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			i = j
		}
	}
	if i < len(src) && isIdentStart(src[i:]) {
		return 0, 0, syntaxError(i, "identifier starts immediately after numeric literal")
	}
	f := stringToNumber(src[start:i])
	return f, i, nil
}

func scanString(src string, i int) (string, int, error) {
	quote := src[i]
	start := i
	i++
	var b strings.Builder
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case quote == '`' && c == '$' && i+1 < len(src) && src[i+1] == '{':
			return "", 0, syntaxError(i, "template substitutions are not supported")
		case (c == '\n' || c == '\r') && quote != '`':
			return "", 0, syntaxError(i, "unterminated string literal")
		case c == '\\':
			i++
			if i >= len(src) {
				return "", 0, syntaxError(start, "unterminated string literal")
			}
			n, err := scanEscape(src, i, &b)
			if err != nil {
				return "", 0, err
			}
			i = n
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, syntaxError(start, "unterminated string literal")
}

// scanEscape decodes the escape sequence whose first character is at src[i]
// into b and returns the offset just past it.
func scanEscape(src string, i int, b *strings.Builder) (int, error) {
	c := src[i]
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case '\r':
		if i+1 < len(src) && src[i+1] == '\n' {
			i++
		}
	case '\n':
		// Line continuation.
	case 'x':
		if i+2 >= len(src) || !isHex(src[i+1]) || !isHex(src[i+2]) {
			return 0, syntaxError(i, "invalid hexadecimal escape sequence")
		}
		n, _ := strconv.ParseUint(src[i+1:i+3], 16, 8)
		b.WriteRune(rune(n))
		return i + 3, nil
	case 'u':
		return scanUnicodeEscape(src, i, b)
	default:
		r, size := utf8.DecodeRuneInString(src[i:])
		b.WriteRune(r)
		return i + size, nil
	}
	return i + 1, nil
}

func scanUnicodeEscape(src string, i int, b *strings.Builder) (int, error) {
	if i+4 >= len(src) {
		return 0, syntaxError(i, "invalid Unicode escape sequence")
	}
	hex := src[i+1 : i+5]
	n, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return 0, syntaxError(i, "invalid Unicode escape sequence")
	}
	next := i + 5
	r := rune(n)
	// Recombine surrogate pairs written as two \u escapes.
	if r >= 0xD800 && r < 0xDC00 && strings.HasPrefix(src[next:], "\\u") && next+6 <= len(src) {
		if lo, err := strconv.ParseUint(src[next+2:next+6], 16, 16); err == nil && lo >= 0xDC00 && lo < 0xE000 {
			r = (r-0xD800)<<10 + (rune(lo) - 0xDC00) + 0x10000
			next += 6
		}
	}
	b.WriteRune(r)
	return next, nil
}
