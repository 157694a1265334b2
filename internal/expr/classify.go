package expr

import (
	"regexp"
	"strconv"
	"strings"

	"scenes/internal/domain"
)

var (
	numberLiteral = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	fieldPath     = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_ ]*(\s*->\s*[\p{L}_][\p{L}\p{N}_ ]*)*$`)
)

var reservedWords = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true,
	"let": true, "const": true, "var": true, "return": true,
}

// IsLiteral reports whether s is a quoted string, a number, true, false or
// null. It looks at the text only.
func IsLiteral(s string) bool {
	_, ok := ParseLiteral(s)
	return ok
}

// ParseLiteral decodes a literal expression. Numbers come back as int64 or
// float64.
func ParseLiteral(s string) (any, bool) {
	t := strings.TrimSpace(s)
	switch t {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	case "":
		return nil, false
	}
	if q := t[0]; (q == '"' || q == '\'') && len(t) >= 2 && t[len(t)-1] == q {
		body := t[1 : len(t)-1]
		if !strings.ContainsRune(strings.ReplaceAll(body, `\`+string(q), ""), rune(q)) {
			var b strings.Builder
			for i := 0; i < len(body); i++ {
				if body[i] == '\\' && i+1 < len(body) {
					b.WriteByte(unescape(body[i+1]))
					i++
					continue
				}
				b.WriteByte(body[i])
			}
			return b.String(), true
		}
	}
	if numberLiteral.MatchString(t) {
		if !strings.ContainsAny(t, ".eE") {
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n, true
			}
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return nil, false
}

// IsFieldPath reports whether s is a bare field name or an A->B path.
func IsFieldPath(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" || reservedWords[t] || !fieldPath.MatchString(t) {
		return false
	}
	if _, ok := helpers[t]; ok {
		return false
	}
	return true
}

// Classify picks the binding mode an expression implies when none is given.
func Classify(s string) domain.BindingMode {
	switch {
	case IsLiteral(s):
		return domain.ModeLiteral
	case IsFieldPath(s):
		return domain.ModeField
	default:
		return domain.ModeScript
	}
}
