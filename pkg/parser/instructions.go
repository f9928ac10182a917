package parser

import (
	"strings"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/lexer"
)

func (p *parser) parseBridge() (*ast.Bridge, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("bridge"); err != nil {
		return nil, err
	}
	header, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	typeName, field, err := splitTypeField(header, pos)
	if err != nil {
		return nil, err
	}

	bs := newBodyState()
	passthrough, err := p.parseBridgeOrDefineBody(bs)
	if err != nil {
		return nil, err
	}

	return &ast.Bridge{
		Type: typeName, Field: field,
		Handles:        handleList(bs),
		Wires:          bs.wires,
		ArrayIterators: bs.arrayIterators,
		ScopeParent:    bs.scopeParent,
		HandleScope:    bs.handleScope,
		PipeHandles:    bs.pipeHandles,
		Passthrough:    passthrough,
		Pos:            pos,
	}, nil
}

func splitTypeField(header string, pos ast.Position) (string, string, error) {
	idx := strings.LastIndexByte(header, '.')
	if idx < 0 {
		return "", "", errAt(pos, "bridge header %q must be <Type>.<field>", header)
	}
	return header[:idx], header[idx+1:], nil
}

func handleList(bs *bodyState) []ast.HandleBinding {
	out := make([]ast.HandleBinding, 0, len(bs.handleOrder))
	for _, alias := range bs.handleOrder {
		out = append(out, *bs.handles[alias])
	}
	return out
}

func (p *parser) parseDefineDef() (*ast.DefineDef, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("define"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}

	bs := newBodyState()
	if _, err := p.parseBridgeOrDefineBody(bs); err != nil {
		return nil, err
	}

	return &ast.DefineDef{
		Ident:          name.Text,
		Handles:        handleList(bs),
		Wires:          bs.wires,
		ArrayIterators: bs.arrayIterators,
		ScopeParent:    bs.scopeParent,
		HandleScope:    bs.handleScope,
		PipeHandles:    bs.pipeHandles,
		Pos:            pos,
	}, nil
}

func (p *parser) parseConstDef() (*ast.ConstDef, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("const"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}

	var lit *ast.Literal
	switch {
	case p.cur().Kind == lexer.Equals:
		p.advance()
		lit, err = p.parseLiteral()
	case p.cur().Kind == lexer.LBrace:
		lit, err = p.parseObjectLiteral()
	default:
		return nil, errAt(p.cur().Pos, "expected '=' or '{' after const name %q", name.Text)
	}
	if err != nil {
		return nil, err
	}

	return &ast.ConstDef{Ident: name.Text, Value: lit, Pos: pos}, nil
}

// parseToolDef parses `tool <name> [extends <parent>] { fn? deps wires }`.
func (p *parser) parseToolDef() (*ast.ToolDef, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("tool"); err != nil {
		return nil, err
	}
	name, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}

	td := &ast.ToolDef{Ident: name, Pos: pos}
	if p.cur().Kind == lexer.Keyword && p.cur().Text == "extends" {
		p.advance()
		parent, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		td.Extends = parent
	}

	bs := newBodyState()
	braced := p.openBody()
	for {
		p.skipNewlines()
		if p.atBodyEnd(braced) {
			break
		}
		if p.cur().Kind == lexer.Ident && p.cur().Text == "fn" {
			p.advance()
			fn, err := p.parseDottedName()
			if err != nil {
				return nil, err
			}
			td.Fn = fn
			continue
		}
		if p.cur().Kind == lexer.Keyword && p.cur().Text == "with" {
			if err := p.parseHandleDecl(bs); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.parseWireStatement(bs); err != nil {
			return nil, err
		}
	}
	if err := p.closeBody(braced); err != nil {
		return nil, err
	}

	td.Deps = handleList(bs)
	td.Wires = bs.wires
	td.ArrayIterators = bs.arrayIterators
	td.ScopeParent = bs.scopeParent
	td.HandleScope = bs.handleScope
	return td, nil
}
