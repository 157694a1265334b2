package expr

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrSyntax wraps every lexing and parsing failure.
var ErrSyntax = errors.New("syntax error")

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokTemplate
	tokIdent
	tokField
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokField:
		return "{" + t.text + "}"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// longest first so "===" wins over "==".
var puncts = []string{
	"===", "!==",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.",
	"+", "-", "*", "/", "%", "<", ">", "!", "=", "?", ":",
	"(", ")", "[", "]", ",", ".", ";",
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func syntaxErr(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.tokens = append(l.tokens, token{kind: tokEOF, pos: l.pos})
			return l.tokens, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "//"):
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) emit(kind tokenKind, text string, pos int) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, pos: pos})
}

func (l *lexer) next() error {
	start := l.pos
	c := l.src[l.pos]
	switch {
	case c >= '0' && c <= '9', c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		l.lexNumber()
		return nil
	case c == '"' || c == '\'':
		s, err := l.lexQuoted(c)
		if err != nil {
			return err
		}
		l.emit(tokString, s, start)
		return nil
	case c == '`':
		raw, err := l.lexTemplate()
		if err != nil {
			return err
		}
		l.emit(tokTemplate, raw, start)
		return nil
	case c == '{':
		end := strings.IndexByte(l.src[l.pos:], '}')
		if end < 0 {
			return syntaxErr(start, "unterminated field reference")
		}
		path := strings.TrimSpace(l.src[l.pos+1 : l.pos+end])
		if path == "" {
			return syntaxErr(start, "empty field reference")
		}
		l.pos += end + 1
		l.emit(tokField, path, start)
		return nil
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if isIdentStart(r) {
		l.pos += size
		for l.pos < len(l.src) {
			r, size = utf8.DecodeRuneInString(l.src[l.pos:])
			if !isIdentPart(r) {
				break
			}
			l.pos += size
		}
		l.emit(tokIdent, l.src[start:l.pos], start)
		return nil
	}
	for _, p := range puncts {
		if strings.HasPrefix(l.src[l.pos:], p) {
			l.pos += len(p)
			l.emit(tokPunct, p, start)
			return nil
		}
	}
	return syntaxErr(start, "unexpected character %q", r)
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	l.emit(tokNumber, l.src[start:l.pos], start)
}

func (l *lexer) lexQuoted(quote byte) (string, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return b.String(), nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return "", syntaxErr(start, "unterminated string")
			}
			b.WriteByte(unescape(l.src[l.pos+1]))
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", syntaxErr(start, "unterminated string")
}

// lexTemplate returns the raw text between backticks; interpolations are
// parsed later by the parser.
func (l *lexer) lexTemplate() (string, error) {
	start := l.pos
	l.pos++
	depth := 0
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
			continue
		case c == '$' && depth == 0 && l.pos+1 < len(l.src) && l.src[l.pos+1] == '{':
			depth = 1
			l.pos += 2
			continue
		case c == '{' && depth > 0:
			depth++
		case c == '}' && depth > 0:
			depth--
		case c == '`' && depth == 0:
			raw := l.src[start+1 : l.pos]
			l.pos++
			return raw, nil
		}
		l.pos++
	}
	return "", syntaxErr(start, "unterminated template")
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return c
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || r == '$' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }
