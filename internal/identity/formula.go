// Package identity evaluates declared algebraic relationships between
// resolved series and classifies how well they hold. Formulas are
// configuration, parsed once at load; the validator never picks or fits
// a formula to the data.
package identity

import (
	"sort"
	"strconv"
	"unicode"

	"github.com/rotisserie/eris"
)

// Formula is a compiled arithmetic expression over named variables,
// e.g. "SP / (K * u)" or "S / (C + V)". Supported operators: + - * /
// and parentheses.
type Formula struct {
	src  string
	root expr
	vars []string
}

// ParseFormula compiles an expression. The grammar is deliberately
// tiny: identities in this dataset are ratios of sums and products.
func ParseFormula(src string) (*Formula, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, eris.Errorf("identity: formula %q: unexpected %q", src, p.peek().text)
	}

	seen := make(map[string]bool)
	collectVars(root, seen)
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	return &Formula{src: src, root: root, vars: vars}, nil
}

// Source returns the original expression text.
func (f *Formula) Source() string { return f.src }

// Variables returns the distinct variable names the formula reads,
// sorted.
func (f *Formula) Variables() []string { return f.vars }

// Eval computes the formula over concrete values. Every variable must
// be present; division by zero is an error, not an Inf.
func (f *Formula) Eval(values map[string]float64) (float64, error) {
	return f.root.eval(values)
}

// --- AST ---

type expr interface {
	eval(values map[string]float64) (float64, error)
}

type literal struct{ v float64 }

func (l literal) eval(map[string]float64) (float64, error) { return l.v, nil }

type ident struct{ name string }

func (id ident) eval(values map[string]float64) (float64, error) {
	v, ok := values[id.name]
	if !ok {
		return 0, eris.Errorf("identity: no value for variable %q", id.name)
	}
	return v, nil
}

type binary struct {
	op          byte
	left, right expr
}

func (b binary) eval(values map[string]float64) (float64, error) {
	l, err := b.left.eval(values)
	if err != nil {
		return 0, err
	}
	r, err := b.right.eval(values)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, eris.New("identity: division by zero")
		}
		return l / r, nil
	}
	return 0, eris.Errorf("identity: unknown operator %q", b.op)
}

type negate struct{ inner expr }

func (n negate) eval(values map[string]float64) (float64, error) {
	v, err := n.inner.eval(values)
	return -v, err
}

func collectVars(e expr, out map[string]bool) {
	switch v := e.(type) {
	case ident:
		out[v.name] = true
	case binary:
		collectVars(v.left, out)
		collectVars(v.right, out)
	case negate:
		collectVars(v.inner, out)
	}
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokOp    // + - * /
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func lex(src string) ([]token, error) {
	var tokens []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{tokOp, string(r)})
			i++
		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, string(rs[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			tokens = append(tokens, token{tokIdent, string(rs[i:j])})
			i = j
		default:
			return nil, eris.Errorf("identity: formula %q: invalid character %q", src, r)
		}
	}
	return append(tokens, token{tokEOF, ""}), nil
}

// --- parser ---

type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) done() bool { return p.peek().kind == tokEOF }

// parseExpr handles + and -.
func (p *parser) parseExpr() (expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text[0]
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
	return left, nil
}

// parseTerm handles * and /.
func (p *parser) parseTerm() (expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text[0]
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, eris.Errorf("identity: formula %q: bad number %q", p.src, t.text)
		}
		return literal{v}, nil
	case tokIdent:
		return ident{t.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, eris.Errorf("identity: formula %q: missing closing parenthesis", p.src)
		}
		return inner, nil
	case tokOp:
		if t.text == "-" {
			inner, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return negate{inner}, nil
		}
	}
	return nil, eris.Errorf("identity: formula %q: unexpected %q", p.src, tokenText(t))
}

func tokenText(t token) string {
	if t.kind == tokEOF {
		return "end of formula"
	}
	return t.text
}
