package parser

import (
	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/lexer"
)

// bodyState accumulates the pieces common to a Bridge or DefineDef body
// while it is being parsed: declared handles, the wire list, the nested
// array-iterator registry, and the set of handles used in a pipe fork.
type bodyState struct {
	handles        map[string]*ast.HandleBinding
	handleOrder    []string
	iteratorAlias  map[string]bool // every iterator alias in scope at any depth, for I3
	wires          []ast.Wire
	arrayIterators map[string]string
	pipeHandles    []string
	instances      map[string]int // tool name -> next instance number

	// scope is the iterator alias of the mapping block currently being
	// parsed ("" at the bridge/tool root). Stamped onto every wire so the
	// execution tree and serializer can recover nesting from the flat
	// Wires slice.
	scope string
	// scopeParent maps each iterator alias declared anywhere in this body
	// to its enclosing scope ("" if declared at the root).
	scopeParent map[string]string
	// handleScope records, per declared handle alias, the scope it was
	// declared in. A tool/define handle's invocations memoize at the
	// execution-tree node owning that scope, however deep a wire that
	// references the handle is nested.
	handleScope map[string]string
}

func newBodyState() *bodyState {
	return &bodyState{
		handles:        map[string]*ast.HandleBinding{},
		iteratorAlias:  map[string]bool{},
		arrayIterators: map[string]string{},
		instances:      map[string]int{},
		scopeParent:    map[string]string{},
		handleScope:    map[string]string{},
	}
}

// parseBridgeOrDefineBody parses the five statement shapes of spec.md
// §4.2 into bs, starting from an already-opened (or legacy, unopened)
// body. Returns whether the field-tool passthrough shorthand applies.
func (p *parser) parseBridgeOrDefineBody(bs *bodyState) (passthrough *string, err error) {
	braced := p.openBody()

	firstStatement := true
	for {
		p.skipNewlines()
		if p.atBodyEnd(braced) {
			break
		}

		if firstStatement && p.cur().Kind == lexer.Keyword && p.cur().Text == "with" {
			// Passthrough shorthand: body is a single `with <tool>` line
			// and nothing else.
			save := p.pos
			name, perr := p.parseWithHeadOnly()
			if perr == nil && (p.atBodyEndAfterOptionalNewline(braced)) {
				passthrough = &name
				break
			}
			p.pos = save
		}
		firstStatement = false

		if err := p.parseStatement(bs); err != nil {
			return nil, err
		}
	}

	if err := p.closeBody(braced); err != nil {
		return nil, err
	}
	return passthrough, nil
}

// parseWithHeadOnly parses `with <dottedName>` without an `as` clause,
// used only to detect the passthrough shorthand.
func (p *parser) parseWithHeadOnly() (string, error) {
	if err := p.expectKeyword("with"); err != nil {
		return "", err
	}
	return p.parseDottedName()
}

func (p *parser) atBodyEndAfterOptionalNewline(braced bool) bool {
	save := p.pos
	p.skipNewlines()
	end := p.atBodyEnd(braced)
	if !end {
		p.pos = save
	}
	return end
}

// parseStatement parses one of the five body-line shapes.
func (p *parser) parseStatement(bs *bodyState) error {
	if p.cur().Kind == lexer.Keyword && p.cur().Text == "with" {
		return p.parseHandleDecl(bs)
	}
	return p.parseWireStatement(bs)
}

// parseHandleDecl parses `with <source> [as <alias>]`.
func (p *parser) parseHandleDecl(bs *bodyState) error {
	pos := p.cur().Pos
	if err := p.expectKeyword("with"); err != nil {
		return err
	}

	hb := ast.HandleBinding{Pos: pos}

	switch {
	case p.cur().Kind == lexer.Keyword && p.cur().Text == ast.HandleInput:
		p.advance()
		hb.Source = ast.SourceInput
		hb.Alias = ast.HandleInput
	case p.cur().Kind == lexer.Keyword && p.cur().Text == ast.HandleOutput:
		p.advance()
		hb.Source = ast.SourceOutput
		hb.Alias = ast.HandleOutput
	case p.cur().Kind == lexer.Keyword && p.cur().Text == ast.HandleContext:
		p.advance()
		hb.Source = ast.SourceContext
		hb.Alias = ast.HandleContext
	case p.cur().Kind == lexer.Keyword && p.cur().Text == ast.HandleConst:
		p.advance()
		hb.Source = ast.SourceConst
		hb.Alias = ast.HandleConst
	default:
		name, err := p.parseDottedName()
		if err != nil {
			return err
		}
		hb.ToolName = name
		if bs.handles != nil && p.defineNames[name] {
			hb.Source = ast.SourceDefine
		} else {
			hb.Source = ast.SourceTool
		}
		hb.Alias = name
	}

	if p.cur().Kind == lexer.Keyword && p.cur().Text == "as" {
		p.advance()
		alias, err := p.expect(lexer.Ident)
		if err != nil {
			return err
		}
		hb.Alias = alias.Text
	}

	if isReservedHandleName(hb.Alias) && hb.Source != ast.SourceInput && hb.Source != ast.SourceOutput &&
		hb.Source != ast.SourceContext && hb.Source != ast.SourceConst {
		return errAt(pos, "handle alias %q collides with a reserved name", hb.Alias)
	}
	if _, exists := bs.handles[hb.Alias]; exists {
		return errAt(pos, "duplicate handle %q", hb.Alias)
	}
	if bs.iteratorAlias[hb.Alias] {
		return errAt(pos, "handle %q collides with an array-iterator alias", hb.Alias)
	}

	if hb.Source == ast.SourceTool || hb.Source == ast.SourceDefine {
		// Defines share the tool instance counter keyed by name: each
		// binding occurrence of the same define is its own instance,
		// exactly like a tool handle, so concurrent aliases of one
		// define memoize independently.
		bs.instances[hb.ToolName]++
		hb.Instance = bs.instances[hb.ToolName]
	}

	bs.handles[hb.Alias] = &hb
	bs.handleOrder = append(bs.handleOrder, hb.Alias)
	bs.handleScope[hb.Alias] = bs.scope
	return nil
}

func isReservedHandleName(name string) bool {
	switch name {
	case ast.HandleInput, ast.HandleOutput, ast.HandleContext, ast.HandleConst:
		return true
	}
	return false
}

// parseWireStatement parses shapes 2-5: constant wire, pull wire, forced
// pull wire, and array-mapping block.
func (p *parser) parseWireStatement(bs *bodyState) error {
	targetPos := p.cur().Pos
	targetSegs, err := p.parsePathSegments()
	if err != nil {
		return err
	}
	for _, seg := range targetSegs {
		if seg.IsIndex {
			return errAt(targetPos, "explicit numeric index on the target side of a wire is not allowed")
		}
	}
	to := ast.NodeRef{Path: targetSegs}
	targetDotted := to.DottedPath()

	switch p.cur().Kind {
	case lexer.Equals:
		p.advance()
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		bs.wires = append(bs.wires, ast.Wire{Kind: ast.WireConstant, To: to, Value: lit, Pos: targetPos, Scope: bs.scope})
		return nil

	case lexer.Arrow, lexer.ForceArrow:
		force := p.cur().Kind == lexer.ForceArrow
		p.advance()

		from, err := p.parseSourceRef(bs)
		if err != nil {
			return err
		}

		// Array-mapping block: `<source>[] as <iter> { ... }`
		if p.cur().Kind == lexer.LBracket {
			if nxt, ok := p.at(1); ok && nxt.Kind == lexer.RBracket {
				p.advance() // [
				p.advance() // ]
				if err := p.expectKeyword("as"); err != nil {
					return err
				}
				iterTok, err := p.expect(lexer.Ident)
				if err != nil {
					return err
				}
				return p.parseArrayMapping(bs, to, targetDotted, from, iterTok.Text, force, targetPos)
			}
		}

		fallbacks, err := p.parseFallbackChain(bs)
		if err != nil {
			return err
		}
		bs.wires = append(bs.wires, ast.Wire{
			Kind: ast.WirePull, To: to, From: from, Force: force,
			Fallbacks: fallbacks, Pos: targetPos, Scope: bs.scope,
		})
		return nil

	default:
		return errAt(p.cur().Pos, "expected '=', '<-', or '<-!' after target path, found %q", p.cur().Text)
	}
}

func (p *parser) at(offset int) (lexer.Token, bool) {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return lexer.Token{}, false
	}
	return p.toks[idx], true
}

// parseArrayMapping parses the nested body of shape 5, recording the
// iterator alias in bs.arrayIterators and recursing into the nested
// statements with the iterator alias added to scope.
func (p *parser) parseArrayMapping(bs *bodyState, to ast.NodeRef, targetDotted string, from *ast.NodeRef, iterAlias string, force bool, pos ast.Position) error {
	if bs.handles[iterAlias] != nil || bs.iteratorAlias[iterAlias] {
		return errAt(pos, "array-iterator alias %q collides with an existing handle", iterAlias)
	}
	bs.iteratorAlias[iterAlias] = true
	bs.arrayIterators[targetDotted] = iterAlias
	bs.scopeParent[iterAlias] = bs.scope

	bs.wires = append(bs.wires, ast.Wire{
		Kind: ast.WirePull, To: to, From: from, Force: force, Pos: pos, Scope: bs.scope,
	})

	outerScope := bs.scope
	bs.scope = iterAlias
	defer func() { bs.scope = outerScope }()

	braced := p.openBody()
	for {
		p.skipNewlines()
		if p.atBodyEnd(braced) {
			break
		}
		if err := p.parseStatement(bs); err != nil {
			return err
		}
	}
	return p.closeBody(braced)
}

// parsePathSegments parses `ident (.ident | [number])*`.
func (p *parser) parsePathSegments() ([]ast.PathSegment, error) {
	head, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	segs := []ast.PathSegment{ast.Field(head.Text)}
	more, err := p.parsePathSuffix()
	if err != nil {
		return nil, err
	}
	return append(segs, more...), nil
}

// parsePathSuffix parses the `(.ident | [number])*` tail after an already
// consumed head identifier. Stops before an empty `[]` (array-mapping
// marker), which callers handle themselves.
func (p *parser) parsePathSuffix() ([]ast.PathSegment, error) {
	var segs []ast.PathSegment
	for {
		switch p.cur().Kind {
		case lexer.Dot:
			p.advance()
			tok, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			segs = append(segs, ast.Field(tok.Text))
		case lexer.LBracket:
			if nxt, ok := p.at(1); ok && nxt.Kind == lexer.RBracket {
				return segs, nil
			}
			p.advance()
			numTok, err := p.expect(lexer.Number)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RBracket); err != nil {
				return nil, err
			}
			segs = append(segs, ast.Index(int(parseFloat(numTok.Text))))
		default:
			return segs, nil
		}
	}
}

// parseSourceRef parses the right-hand side of a pull wire: either a
// plain handle reference (`h.q`) or a pipe-fork chain
// (`handleA:handleB:sourcePath`), resolving aliases against bs.
func (p *parser) parseSourceRef(bs *bodyState) (*ast.NodeRef, error) {
	head, err := p.expectHandleHead()
	if err != nil {
		return nil, err
	}

	var hops []lexer.Token
	for p.cur().Kind == lexer.Colon {
		p.advance()
		hops = append(hops, head)
		head, err = p.expectHandleHead()
		if err != nil {
			return nil, err
		}
	}

	tail, err := p.parsePathSuffix()
	if err != nil {
		return nil, err
	}
	ref, err := p.resolveAliasRef(bs, head, tail)
	if err != nil {
		return nil, err
	}

	for i := len(hops) - 1; i >= 0; i-- {
		ref, err = p.applyPipeHop(bs, hops[i], ref)
		if err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// looksLikeSourceRef reports whether the cursor sits on a token that could
// begin a NodeRef (handle alias, iterator alias, or reserved handle name),
// used to disambiguate a `??` fallback operand from a literal.
func (p *parser) looksLikeSourceRef() bool {
	t := p.cur()
	if t.Kind == lexer.Ident {
		return true
	}
	if t.Kind == lexer.Keyword {
		switch t.Text {
		case ast.HandleInput, ast.HandleOutput, ast.HandleContext, ast.HandleConst:
			return true
		}
	}
	return false
}

// expectHandleHead consumes the head token of a source reference: a plain
// alias (Ident) or one of the reserved handle names, which the lexer
// always tokenizes as a Keyword regardless of position.
func (p *parser) expectHandleHead() (lexer.Token, error) {
	t := p.cur()
	if t.Kind == lexer.Ident {
		return p.advance(), nil
	}
	if t.Kind == lexer.Keyword {
		switch t.Text {
		case ast.HandleInput, ast.HandleOutput, ast.HandleContext, ast.HandleConst:
			return p.advance(), nil
		}
	}
	return lexer.Token{}, errAt(t.Pos, "expected a handle or array-iterator alias, found %q", t.Text)
}

func (p *parser) resolveAliasRef(bs *bodyState, head lexer.Token, tail []ast.PathSegment) (*ast.NodeRef, error) {
	if bs.iteratorAlias[head.Text] {
		return &ast.NodeRef{Element: true, Field: head.Text, Path: tail}, nil
	}
	hb, ok := bs.handles[head.Text]
	if !ok {
		switch head.Text {
		case ast.HandleInput, ast.HandleOutput, ast.HandleContext, ast.HandleConst:
			return &ast.NodeRef{Module: ast.SelfModule, Field: head.Text, Path: tail}, nil
		}
		return nil, errAt(head.Pos, "reference to undeclared handle %q", head.Text)
	}
	switch hb.Source {
	case ast.SourceInput:
		return &ast.NodeRef{Module: ast.SelfModule, Field: ast.HandleInput, Path: tail}, nil
	case ast.SourceOutput:
		return &ast.NodeRef{Module: ast.SelfModule, Field: ast.HandleOutput, Path: tail}, nil
	case ast.SourceContext:
		return &ast.NodeRef{Module: ast.SelfModule, Field: ast.HandleContext, Path: tail}, nil
	case ast.SourceConst:
		return &ast.NodeRef{Module: ast.SelfModule, Field: ast.HandleConst, Path: tail}, nil
	case ast.SourceTool, ast.SourceDefine:
		return &ast.NodeRef{
			Module: ast.SelfModule, Type: ast.ToolType,
			Field: hb.ToolName, Instance: hb.Instance, Path: tail,
		}, nil
	default:
		return nil, errAt(head.Pos, "unresolvable handle %q", head.Text)
	}
}

// applyPipeHop instantiates a fresh tool instance for hopAlias, wiring
// `in` from the current chain value and returning a ref to its `out`.
func (p *parser) applyPipeHop(bs *bodyState, hopTok lexer.Token, cur *ast.NodeRef) (*ast.NodeRef, error) {
	hb, ok := bs.handles[hopTok.Text]
	if !ok || hb.Source != ast.SourceTool {
		return nil, errAt(hopTok.Pos, "pipe hop %q must reference a declared tool handle", hopTok.Text)
	}
	bs.instances[hb.ToolName]++
	inst := bs.instances[hb.ToolName]
	toolRef := ast.NodeRef{Module: ast.SelfModule, Type: ast.ToolType, Field: hb.ToolName, Instance: inst}

	bs.wires = append(bs.wires, ast.Wire{
		Kind:  ast.WirePull,
		To:    toolRef.WithPath(ast.Field("in")),
		From:  cur,
		Pipe:  true,
		Pos:   hopTok.Pos,
		Scope: bs.scope,
	})
	bs.pipeHandles = append(bs.pipeHandles, hopTok.Text)

	out := toolRef.WithPath(ast.Field("out"))
	return &out, nil
}

// parseFallbackChain parses zero or more trailing `|| lit` / `?? expr`
// operators appended to a pull wire.
func (p *parser) parseFallbackChain(bs *bodyState) ([]ast.FallbackOp, error) {
	var ops []ast.FallbackOp
	for {
		switch p.cur().Kind {
		case lexer.NullCoalesce:
			p.advance()
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			ops = append(ops, ast.FallbackOp{Kind: ast.FallbackNull, Literal: lit})
		case lexer.ErrCoalesce:
			p.advance()
			op, err := p.parseFallbackOperand(bs)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		default:
			return ops, nil
		}
	}
}

// parseFallbackOperand parses the operand of `??`, which may be a literal
// or another NodeRef (including a pipe chain).
func (p *parser) parseFallbackOperand(bs *bodyState) (ast.FallbackOp, error) {
	if p.looksLikeSourceRef() {
		ref, err := p.parseSourceRef(bs)
		if err != nil {
			return ast.FallbackOp{}, err
		}
		return ast.FallbackOp{Kind: ast.FallbackError, Ref: ref}, nil
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return ast.FallbackOp{}, err
	}
	return ast.FallbackOp{Kind: ast.FallbackError, Literal: lit}, nil
}
