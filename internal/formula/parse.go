package formula

import (
	"fmt"
	"strconv"
)

// Node is an expression tree node.
type Node interface{ node() }

type (
	// Field references one column of the event table.
	Field struct{ Name string }

	// Number is a numeric literal.
	Number struct{ Value float64 }

	// Unary is !x, -x or +x.
	Unary struct {
		Op string
		X  Node
	}

	// Binary is a two operand operator application.
	Binary struct {
		Op   string
		L, R Node
	}

	// Call is a function call, either a builtin such as sqrt(x) or a
	// namespaced call such as TMath::Abs(x).
	Call struct {
		Func string
		Args []Node
	}
)

func (Field) node()  {}
func (Number) node() {}
func (Unary) node()  {}
func (Binary) node() {}
func (Call) node()   {}

var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6,
}

const unaryPrecedence = 7

// Parse builds the expression tree for a single axis expression.
func Parse(s string) (Node, error) {
	toks, err := Tokenize(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	p := &parser{src: s, toks: toks}
	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		t := p.toks[p.pos]
		return nil, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrSyntax, t.Text, t.Pos, s)
	}
	return n, nil
}

type parser struct {
	src  string
	toks []Token
	pos  int
}

func (p *parser) peek() (Token, bool) {
	if p.pos >= len(p.toks) {
		return Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s in %q", ErrSyntax, fmt.Sprintf(format, args...), p.src)
}

func (p *parser) expr(minPrec int) (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.Kind != TokOperator {
			return left, nil
		}
		if t.Text == "." {
			return nil, p.errorf("member access at offset %d is not supported on flat event tables", t.Pos)
		}
		prec, isBinary := precedence[t.Text]
		if !isBinary {
			return nil, p.errorf("operator %q at offset %d is not a binary operator", t.Text, t.Pos)
		}
		if prec <= minPrec {
			return left, nil
		}
		p.pos++
		right, err := p.expr(prec)
		if err != nil {
			return nil, err
		}
		left = Binary{Op: t.Text, L: left, R: right}
	}
}

func (p *parser) unary() (Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of expression")
	}
	if t.Kind == TokOperator && (t.Text == "!" || t.Text == "-" || t.Text == "+") {
		p.pos++
		x, err := p.expr(unaryPrecedence - 1)
		if err != nil {
			return nil, err
		}
		return Unary{Op: t.Text, X: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of expression")
	}
	p.pos++
	switch t.Kind {
	case TokNumber:
		v, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, p.errorf("bad number %q", t.Text)
		}
		return Number{Value: v}, nil
	case TokIdent:
		if next, ok := p.peek(); ok && next.Kind == TokLParen {
			if _, isBuiltin := builtins[t.Text]; isBuiltin {
				return p.call(t.Text)
			}
			return nil, p.errorf("unknown function %q", t.Text)
		}
		return Field{Name: t.Text}, nil
	case TokNamespaced:
		next, ok := p.peek()
		if !ok || next.Kind != TokLParen {
			return nil, p.errorf("namespaced name %q must be called", t.Text)
		}
		return p.call(t.Text)
	case TokLParen:
		n, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if closing, ok := p.peek(); !ok || closing.Kind != TokRParen {
			return nil, p.errorf("missing ')' for '(' at offset %d", t.Pos)
		}
		p.pos++
		return n, nil
	}
	return nil, p.errorf("unexpected %q at offset %d", t.Text, t.Pos)
}

// call parses "(arg, ...)" after a function name.
func (p *parser) call(name string) (Node, error) {
	p.pos++ // '('
	c := Call{Func: name}
	if t, ok := p.peek(); ok && t.Kind == TokRParen {
		p.pos++
		return c, nil
	}
	for {
		arg, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, arg)
		t, ok := p.peek()
		if !ok {
			return nil, p.errorf("unterminated call to %s", name)
		}
		p.pos++
		switch t.Kind {
		case TokComma:
			continue
		case TokRParen:
			return c, nil
		default:
			return nil, p.errorf("unexpected %q in call to %s", t.Text, name)
		}
	}
}
