// Package parser reduces a Bridge DSL token stream to the instruction
// model defined in pkg/ast.
//
// Grammar (spec.md §4.2):
//
//	file        = (version | instruction)*
//	instruction = bridge | tool | const | define
//
// Brace-delimited bodies are preferred; a legacy indentation-only form is
// accepted best-effort (never re-emitted by the serializer).
package parser

import (
	"strconv"
	"strings"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/lexer"
)

// Parse tokenizes and parses Bridge DSL source text into an instruction
// list. Returns a *Error (or *lexer.Error) on the first grammar or lexical
// violation.
func Parse(src string) ([]ast.Instruction, error) {
	toks, err := lexer.New(src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	p.collectDefineNames()
	return p.parseFile()
}

type parser struct {
	toks        []lexer.Token
	pos         int
	defineNames map[string]bool
}

// collectDefineNames pre-scans the token stream for `define <name>`
// headers so that later `with <name> as <alias>` references can be
// classified as SourceDefine vs SourceTool without needing forward
// declarations to be resolved first.
func (p *parser) collectDefineNames() {
	p.defineNames = map[string]bool{}
	for i := 0; i+1 < len(p.toks); i++ {
		if p.toks[i].Kind == lexer.Keyword && p.toks[i].Text == "define" {
			if p.toks[i+1].Kind == lexer.Ident {
				p.defineNames[p.toks[i+1].Text] = true
			}
		}
	}
}

func (p *parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Kind: lexer.EOF}
	}
	return p.toks[p.pos]
}

func (p *parser) peekKind(k lexer.Kind) bool {
	return p.cur().Kind == k
}

func (p *parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) skipNewlines() {
	for p.cur().Kind == lexer.Newline || p.cur().Kind == lexer.Separator {
		p.advance()
	}
}

func (p *parser) expect(k lexer.Kind) (lexer.Token, error) {
	if p.cur().Kind != k {
		return lexer.Token{}, errAt(p.cur().Pos, "unexpected token %q", p.cur().Text)
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(kw string) error {
	t := p.cur()
	if t.Kind != lexer.Keyword || t.Text != kw {
		return errAt(t.Pos, "expected keyword %q, found %q", kw, t.Text)
	}
	p.advance()
	return nil
}

// parseFile implements `file = (version? | instruction)*`.
func (p *parser) parseFile() ([]ast.Instruction, error) {
	var out []ast.Instruction

	p.skipNewlines()
	if p.cur().Kind == lexer.Keyword && p.cur().Text == "version" {
		if err := p.parseVersion(); err != nil {
			return nil, err
		}
	}

	for {
		p.skipNewlines()
		if p.cur().Kind == lexer.EOF {
			break
		}
		if p.cur().Kind != lexer.Keyword {
			return nil, errAt(p.cur().Pos, "unknown top-level token %q", p.cur().Text)
		}
		var (
			instr ast.Instruction
			err   error
		)
		switch p.cur().Text {
		case "bridge":
			instr, err = p.parseBridge()
		case "tool":
			instr, err = p.parseToolDef()
		case "const":
			instr, err = p.parseConstDef()
		case "define":
			instr, err = p.parseDefineDef()
		default:
			return nil, errAt(p.cur().Pos, "unknown top-level keyword %q", p.cur().Text)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
	}
	return out, nil
}

func (p *parser) parseVersion() error {
	if err := p.expectKeyword("version"); err != nil {
		return err
	}
	// major.minor, lexed as Number ("1") Dot Number ("2") or a single
	// float-looking Number token ("1.2") depending on lexer digit rules.
	if _, err := p.expect(lexer.Number); err != nil {
		return err
	}
	if p.cur().Kind == lexer.Dot {
		p.advance()
		if _, err := p.expect(lexer.Number); err != nil {
			return err
		}
	}
	return nil
}

// parseDottedName parses `ident(.ident)*` returning the joined text, used
// for tool/define names and `with <source>` targets.
func (p *parser) parseDottedName() (string, error) {
	tok, err := p.expect(lexer.Ident)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(tok.Text)
	for p.cur().Kind == lexer.Dot {
		p.advance()
		next, err := p.expect(lexer.Ident)
		if err != nil {
			return "", err
		}
		b.WriteByte('.')
		b.WriteString(next.Text)
	}
	return b.String(), nil
}

// openBody consumes a '{' if present, else returns false for the legacy
// indentation-only form (whose body runs to EOF or the next top-level
// instruction keyword; a blank line does not end it).
func (p *parser) openBody() bool {
	p.skipNewlines()
	if p.cur().Kind == lexer.LBrace {
		p.advance()
		return true
	}
	return false
}

func (p *parser) closeBody(braced bool) error {
	p.skipNewlines()
	if braced {
		if _, err := p.expect(lexer.RBrace); err != nil {
			return err
		}
		return nil
	}
	return nil
}

// atBodyEnd reports whether the cursor has reached the end of a body: a
// closing brace for the braced form, or (legacy form) EOF or the start of
// a new top-level instruction. Callers skip newlines before asking, so a
// blank line never ends a legacy body.
func (p *parser) atBodyEnd(braced bool) bool {
	if braced {
		return p.cur().Kind == lexer.RBrace
	}
	if p.cur().Kind == lexer.EOF {
		return true
	}
	if p.cur().Kind == lexer.Keyword {
		switch p.cur().Text {
		case "bridge", "tool", "const", "define":
			return true
		}
	}
	return false
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
