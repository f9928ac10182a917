package parser

import (
	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/lexer"
)

// parseLiteral parses a single literal value: a scalar atom, a `{...}`
// object, or a `[...]` array. Used for constant wires (`target = lit`),
// ConstDef bodies, and fallback operands.
func (p *parser) parseLiteral() (*ast.Literal, error) {
	t := p.cur()
	switch t.Kind {
	case lexer.Number:
		p.advance()
		return ast.Number(parseFloat(t.Text)), nil
	case lexer.Bool:
		p.advance()
		return ast.Bool(t.Text == "true"), nil
	case lexer.Null:
		p.advance()
		return ast.Null(), nil
	case lexer.String:
		p.advance()
		return ast.String(t.Text), nil
	case lexer.BarePath:
		p.advance()
		return ast.String(t.Text), nil
	case lexer.HTTPMethod:
		p.advance()
		return ast.String(t.Text), nil
	case lexer.Ident:
		// Unquoted identifier atom, per the lexer's literal-syntax rules
		// (spec.md §6): becomes a string unless it matches number/bool/
		// null, which the lexer has already classified separately.
		p.advance()
		return ast.String(t.Text), nil
	case lexer.LBrace:
		return p.parseObjectLiteral()
	case lexer.LBracket:
		return p.parseArrayLiteral()
	default:
		return nil, errAt(t.Pos, "expected a literal value, found %q", t.Text)
	}
}

func (p *parser) parseObjectLiteral() (*ast.Literal, error) {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	obj := map[string]*ast.Literal{}
	p.skipNewlines()
	for p.cur().Kind != lexer.RBrace {
		var key string
		switch p.cur().Kind {
		case lexer.Ident:
			key = p.advance().Text
		case lexer.String:
			key = p.advance().Text
		default:
			return nil, errAt(p.cur().Pos, "expected object key, found %q", p.cur().Text)
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		obj[key] = val
		p.skipNewlines()
		if p.cur().Kind == lexer.Comma {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return &ast.Literal{Kind: ast.LiteralObject, Object: obj}, nil
}

func (p *parser) parseArrayLiteral() (*ast.Literal, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var arr []*ast.Literal
	p.skipNewlines()
	for p.cur().Kind != lexer.RBracket {
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
		p.skipNewlines()
		if p.cur().Kind == lexer.Comma {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	return &ast.Literal{Kind: ast.LiteralArray, Array: arr}, nil
}
