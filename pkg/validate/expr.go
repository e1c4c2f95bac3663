package validate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cuemby/caravan/pkg/errtag"
)

// Business-rule predicates are a small closed language: comparisons
// over column references and literals, joined by AND / OR / NOT, with
// parentheses. Nothing is ever evaluated dynamically; the parser below
// is the whole language.
//
//	expr   := and (OR and)*
//	and    := unary (AND unary)*
//	unary  := NOT unary | cmp
//	cmp    := term ((<= | < | >= | > | = | !=) term)?
//	term   := NUMBER | STRING | NULL | TRUE | FALSE | IDENT | '(' expr ')'
//
// Any comparison touching NULL is false. Comparisons are numeric when
// both sides are numeric, string otherwise.

// Predicate is a parsed business-rule condition
type Predicate struct {
	source string
	root   node
}

// Row resolves a column reference during evaluation. The second result
// is false for a column the table does not have.
type Row func(column string) (any, bool)

// ParsePredicate compiles a condition string
func ParsePredicate(source string) (*Predicate, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, errtag.Configuration.New("predicate %q: %v", source, err)
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, errtag.Configuration.New("predicate %q: %v", source, err)
	}
	if p.peek().kind != tokEOF {
		return nil, errtag.Configuration.New("predicate %q: unexpected %q", source, p.peek().text)
	}
	return &Predicate{source: source, root: root}, nil
}

// Eval applies the predicate to one row
func (p *Predicate) Eval(row Row) (bool, error) {
	v, err := p.root.eval(row)
	if err != nil {
		return false, fmt.Errorf("predicate %q: %w", p.source, err)
	}
	return truthy(v), nil
}

// String returns the source expression
func (p *Predicate) String() string { return p.source }

// truthy: booleans as themselves, NULL as false
func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// ---- lexer ----

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokNull
	tokTrue
	tokFalse
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			quote := input[i]
			end := i + 1
			for end < len(input) && input[end] != quote {
				end++
			}
			if end >= len(input) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			tokens = append(tokens, token{tokString, input[i+1 : end]})
			i = end + 1
		case strings.ContainsRune("<>!=", c):
			op := string(c)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
				i++
			}
			i++
			if op == "!" {
				return nil, fmt.Errorf("stray '!'")
			}
			if op == "<>" {
				op = "!="
			}
			tokens = append(tokens, token{tokOp, op})
		case unicode.IsDigit(c) || c == '-':
			end := i + 1
			for end < len(input) && (unicode.IsDigit(rune(input[end])) || input[end] == '.') {
				end++
			}
			text := input[i:end]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("bad number %q", text)
			}
			tokens = append(tokens, token{tokNumber, text})
			i = end
		case unicode.IsLetter(c) || c == '_':
			end := i + 1
			for end < len(input) && (unicode.IsLetter(rune(input[end])) || unicode.IsDigit(rune(input[end])) || input[end] == '_') {
				end++
			}
			word := input[i:end]
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{tokAnd, word})
			case "OR":
				tokens = append(tokens, token{tokOr, word})
			case "NOT":
				tokens = append(tokens, token{tokNot, word})
			case "NULL":
				tokens = append(tokens, token{tokNull, word})
			case "TRUE":
				tokens = append(tokens, token{tokTrue, word})
			case "FALSE":
				tokens = append(tokens, token{tokFalse, word})
			default:
				tokens = append(tokens, token{tokIdent, word})
			}
			i = end
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return append(tokens, token{tokEOF, ""}), nil
}

// ---- parser ----

type parser struct {
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

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokOp {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &cmpNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, _ := strconv.ParseFloat(t.text, 64)
		return &literalNode{f}, nil
	case tokString:
		return &literalNode{t.text}, nil
	case tokNull:
		return &literalNode{nil}, nil
	case tokTrue:
		return &literalNode{true}, nil
	case tokFalse:
		return &literalNode{false}, nil
	case tokIdent:
		return &columnNode{t.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected %q", t.text)
	}
}

// ---- evaluation ----

type node interface {
	eval(row Row) (any, error)
}

type literalNode struct{ value any }

func (n *literalNode) eval(Row) (any, error) { return n.value, nil }

type columnNode struct{ name string }

func (n *columnNode) eval(row Row) (any, error) {
	v, ok := row(n.name)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", n.name)
	}
	return v, nil
}

type andNode struct{ left, right node }

func (n *andNode) eval(row Row) (any, error) {
	l, err := n.left.eval(row)
	if err != nil {
		return nil, err
	}
	if !truthy(l) {
		return false, nil
	}
	r, err := n.right.eval(row)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type orNode struct{ left, right node }

func (n *orNode) eval(row Row) (any, error) {
	l, err := n.left.eval(row)
	if err != nil {
		return nil, err
	}
	if truthy(l) {
		return true, nil
	}
	r, err := n.right.eval(row)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type notNode struct{ inner node }

func (n *notNode) eval(row Row) (any, error) {
	v, err := n.inner.eval(row)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type cmpNode struct {
	op          string
	left, right node
}

func (n *cmpNode) eval(row Row) (any, error) {
	l, err := n.left.eval(row)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(row)
	if err != nil {
		return nil, err
	}
	// NULL compares false under every operator
	if l == nil || r == nil {
		return false, nil
	}

	if lf, lok := asNumber(l); lok {
		if rf, rok := asNumber(r); rok {
			return compareNumbers(n.op, lf, rf)
		}
	}
	return compareStrings(n.op, stringOf(l), stringOf(r))
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func compareNumbers(op string, l, r float64) (any, error) {
	switch op {
	case "=":
		return l == r, nil
	case "!=":
		return l != r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func compareStrings(op string, l, r string) (any, error) {
	switch op {
	case "=":
		return l == r, nil
	case "!=":
		return l != r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}
