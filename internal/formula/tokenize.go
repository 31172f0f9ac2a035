// Package formula handles the selection, weight and variable expressions
// used to draw histograms from event tables. Expressions follow the ROOT
// TTree::Draw grammar: field names, numeric literals, C-style comparison,
// boolean and arithmetic operators, and namespaced calls such as
// TMath::Abs(x).
package formula

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is wrapped by every tokenizer and parser error.
var ErrSyntax = errors.New("formula syntax error")

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokIdent TokenKind = iota
	TokNumber
	TokNamespaced
	TokOperator
	TokLParen
	TokRParen
	TokComma
)

func (k TokenKind) String() string {
	switch k {
	case TokIdent:
		return "ident"
	case TokNumber:
		return "number"
	case TokNamespaced:
		return "namespaced"
	case TokOperator:
		return "operator"
	case TokLParen:
		return "("
	case TokRParen:
		return ")"
	case TokComma:
		return ","
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one lexical element of an expression.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// twoCharOps must be checked before the single character ones.
var twoCharOps = []string{"&&", "||", "==", "!=", "<=", ">="}

// '.' is member access (jet.pt) unless a digit follows, which makes it
// part of a number.
const singleCharOps = "<>!*/+-:."

// Tokenize splits an expression into an operand/operator stream.
func Tokenize(s string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			start := i
			i = scanIdent(s, i)
			kind := TokIdent
			// a::b and a::b::c collapse into one namespaced token
			for i+2 < len(s) && s[i] == ':' && s[i+1] == ':' && isIdentStart(s[i+2]) {
				i = scanIdent(s, i+2)
				kind = TokNamespaced
			}
			toks = append(toks, Token{Kind: kind, Text: s[start:i], Pos: start})
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			start := i
			i = scanNumber(s, i)
			if i < len(s) && isIdentChar(s[i]) {
				// Something like 2ndJet: keep it as an identifier so the
				// field is still loaded.
				i = scanIdent(s, i)
				toks = append(toks, Token{Kind: TokIdent, Text: s[start:i], Pos: start})
				continue
			}
			toks = append(toks, Token{Kind: TokNumber, Text: s[start:i], Pos: start})
		case c == '(':
			toks = append(toks, Token{Kind: TokLParen, Text: "(", Pos: i})
			i++
		case c == ')':
			toks = append(toks, Token{Kind: TokRParen, Text: ")", Pos: i})
			i++
		case c == ',':
			toks = append(toks, Token{Kind: TokComma, Text: ",", Pos: i})
			i++
		default:
			op := matchOperator(s[i:])
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d in %q", ErrSyntax, c, i, s)
			}
			toks = append(toks, Token{Kind: TokOperator, Text: op, Pos: i})
			i += len(op)
		}
	}
	return toks, nil
}

func matchOperator(s string) string {
	for _, op := range twoCharOps {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	if strings.IndexByte(singleCharOps, s[0]) >= 0 {
		return s[:1]
	}
	return ""
}

func scanIdent(s string, i int) int {
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return i
}

// scanNumber accepts 7, 0.95, .5, 1e-3 and 2.5E+4.
func scanNumber(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
