package expr

import (
	"strconv"
	"strings"
)

var binaryPrec = map[string]int{
	"??": 1,
	"||": 2,
	"&&": 3,
	"==": 4, "!=": 4, "===": 4, "!==": 4,
	"<": 5, "<=": 5, ">": 5, ">=": 5,
	"+": 6, "-": 6,
	"*": 7, "/": 7, "%": 7,
}

type parser struct {
	toks []token
	pos  int
}

func newParser(src string) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		t := p.peek()
		return syntaxErr(t.pos, "expected %q, found %s", text, t)
	}
	return nil
}

// parseProgram parses a statement list. A lone expression is a program of
// one expression statement.
func parseProgram(src string) ([]Stmt, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.peek().kind != tokEOF {
		if p.accept(";") {
			continue
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if len(stmts) == 0 {
		return nil, syntaxErr(0, "empty expression")
	}
	return stmts, nil
}

// parseSingle parses exactly one expression and rejects trailing input.
func parseSingle(src string) (Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxErr(t.pos, "unexpected %s", t)
	}
	return e, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	switch {
	case p.isKeyword("let"), p.isKeyword("const"), p.isKeyword("var"):
		p.advance()
		name := p.advance()
		if name.kind != tokIdent {
			return nil, syntaxErr(name.pos, "expected name after let, found %s", name)
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.accept(";")
		return &LetStmt{Name: name.text, Value: v}, nil
	case p.isKeyword("return"):
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.accept(";")
		return &ReturnStmt{Value: v}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.accept(";")
	return &ExprStmt{X: e}, nil
}

func (p *parser) parseExpr() (Expr, error) {
	if params, ok := p.arrowParams(); ok {
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Arrow{Params: params, Body: body}, nil
	}
	return p.parseTernary()
}

// arrowParams consumes an arrow-function head if one starts here.
func (p *parser) arrowParams() ([]string, bool) {
	t := p.peek()
	if t.kind == tokIdent && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "=>" {
		p.pos += 2
		return []string{t.text}, true
	}
	if !p.is("(") {
		return nil, false
	}
	var params []string
	i := 1
	for {
		t := p.peekAt(i)
		if t.kind == tokPunct && t.text == ")" {
			break
		}
		if t.kind != tokIdent {
			return nil, false
		}
		params = append(params, t.text)
		i++
		sep := p.peekAt(i)
		if sep.kind == tokPunct && sep.text == "," {
			i++
			continue
		}
		if sep.kind == tokPunct && sep.text == ")" {
			break
		}
		return nil, false
	}
	arrow := p.peekAt(i + 1)
	if arrow.kind != tokPunct || arrow.text != "=>" {
		return nil, false
	}
	p.pos += i + 2
	return params, true
}

func (p *parser) parseTernary() (Expr, error) {
	test, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if !p.accept("?") {
		return test, nil
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Cond{Test: test, Then: then, Else: els}, nil
}

func (p *parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPunct {
			return left, nil
		}
		prec, ok := binaryPrec[t.text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if t := p.peek(); t.kind == tokPunct && (t.text == "!" || t.text == "-" || t.text == "+") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.text, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.is("."), p.is("?."):
			optional := p.advance().text == "?."
			name := p.advance()
			if name.kind != tokIdent {
				return nil, syntaxErr(name.pos, "expected property name, found %s", name)
			}
			x = &Member{X: x, Name: name.text, Optional: optional}
		case p.accept("("):
			args, err := p.parseList(")")
			if err != nil {
				return nil, err
			}
			x = &Call{Fn: x, Args: args}
		case p.accept("["):
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &Index{X: x, Index: idx}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseList(closer string) ([]Expr, error) {
	var items []Expr
	if p.accept(closer) {
		return items, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.accept(closer) {
			return items, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber:
		return parseNumber(t)
	case tokString:
		return &StringLit{Value: t.text}, nil
	case tokTemplate:
		return parseTemplate(t)
	case tokField:
		return &FieldRef{Path: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &BoolLit{Value: true}, nil
		case "false":
			return &BoolLit{Value: false}, nil
		case "null", "undefined":
			return &NullLit{}, nil
		}
		return &Ident{Name: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			items, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return &ArrayLit{Elems: items}, nil
		}
	}
	return nil, syntaxErr(t.pos, "unexpected %s", t)
}

func parseNumber(t token) (Expr, error) {
	if !strings.ContainsAny(t.text, ".eE") {
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return &NumberLit{Value: n}, nil
		}
	}
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return nil, syntaxErr(t.pos, "bad number %q", t.text)
	}
	return &NumberLit{Value: f}, nil
}

// parseTemplate splits `text ${expr} text` into literal and expression parts.
func parseTemplate(t token) (Expr, error) {
	raw := t.text
	var parts []Expr
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, &StringLit{Value: text.String()})
			text.Reset()
		}
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			text.WriteByte(unescape(raw[i+1]))
			i++
			continue
		}
		if c == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			depth := 1
			j := i + 2
			for ; j < len(raw) && depth > 0; j++ {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
			}
			if depth != 0 {
				return nil, syntaxErr(t.pos, "unterminated interpolation")
			}
			e, err := parseSingle(raw[i+2 : j-1])
			if err != nil {
				return nil, err
			}
			flush()
			parts = append(parts, e)
			i = j - 1
			continue
		}
		text.WriteByte(c)
	}
	flush()
	return &Template{Parts: parts}, nil
}
