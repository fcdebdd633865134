package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenLeftParen
	tokenRightParen
	tokenEOF
)

type token struct {
	kind  tokenKind
	value float64
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+':
			tokens = append(tokens, token{kind: tokenPlus})
			i++
		case r == '-':
			tokens = append(tokens, token{kind: tokenMinus})
			i++
		case r == '*':
			tokens = append(tokens, token{kind: tokenStar})
			i++
		case r == '/':
			tokens = append(tokens, token{kind: tokenSlash})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLeftParen})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRightParen})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			literal := string(runes[start:i])
			value, err := strconv.ParseFloat(literal, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, literal)
			}
			tokens = append(tokens, token{kind: tokenNumber, value: value})
		default:
			return nil, ErrInvalidCharacters
		}
	}
	tokens = append(tokens, token{kind: tokenEOF})
	return tokens, nil
}

type node interface {
	eval() (float64, error)
}

type literalNode struct {
	value float64
}

func (n literalNode) eval() (float64, error) {
	return n.value, nil
}

type unaryNode struct {
	negate  bool
	operand node
}

func (n unaryNode) eval() (float64, error) {
	value, err := n.operand.eval()
	if err != nil {
		return 0, err
	}
	if n.negate {
		return -value, nil
	}
	return value, nil
}

type binaryNode struct {
	operator    tokenKind
	left, right node
}

func (n binaryNode) eval() (float64, error) {
	left, err := n.left.eval()
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval()
	if err != nil {
		return 0, err
	}
	switch n.operator {
	case tokenPlus:
		return left + right, nil
	case tokenMinus:
		return left - right, nil
	case tokenStar:
		return left * right, nil
	case tokenSlash:
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return left / right, nil
	default:
		return 0, ErrSyntax
	}
}

type parser struct {
	tokens []token
	pos    int
}

// parse builds the AST for a substituted candidate expression. Grammar:
//
//	expr    = term (("+" | "-") term)*
//	term    = unary (("*" | "/") unary)*
//	unary   = ("+" | "-") unary | primary
//	primary = NUMBER | "(" expr ")"
//
// Same-precedence operators associate left to right.
func parse(input string) (node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrSyntax
	}
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("%w: trailing input", ErrSyntax)
	}
	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpression() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != tokenPlus && kind != tokenMinus {
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{operator: kind, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != tokenStar && kind != tokenSlash {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{operator: kind, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokenMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{negate: true, operand: operand}, nil
	case tokenPlus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (node, error) {
	switch t := p.advance(); t.kind {
	case tokenNumber:
		return literalNode{value: t.value}, nil
	case tokenLeftParen:
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.advance().kind != tokenRightParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrSyntax)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token", ErrSyntax)
	}
}
