package ast

// Instruction is the closed sum {Bridge, ToolDef, ConstDef, DefineDef}
// produced by the parser. The unexported marker method keeps the set
// closed to this package's four variants (spec.md §9 "Polymorphism").
type Instruction interface {
	isInstruction()
	// Name identifies the instruction for diagnostics and duplicate
	// detection; bridges use "<Type>.<Field>".
	Name() string
}

// Bridge binds one schema field to one or more tool invocations and the
// wiring of their outputs into the field's value.
type Bridge struct {
	Type  string
	Field string

	Handles        []HandleBinding
	Wires          []Wire
	ArrayIterators map[string]string // target dotted path -> iterator alias
	// ScopeParent maps each iterator alias declared anywhere in this body
	// to its enclosing scope ("" for one declared at the body root), so
	// nested mapping blocks can be reconstructed from the flat Wires
	// slice (Wire.Scope) without a separate tree type.
	ScopeParent map[string]string
	// HandleScope maps each declared handle alias to the scope it was
	// declared in, so a tool/define invocation memoizes at the node that
	// owns its declaring scope regardless of how deeply a referencing
	// wire is nested.
	HandleScope map[string]string
	PipeHandles []string

	// Passthrough is set when the body is the `with <tool>` shorthand: the
	// tool's output becomes the field's value directly.
	Passthrough *string

	Pos Position
}

func (*Bridge) isInstruction() {}
func (b *Bridge) Name() string { return b.Type + "." + b.Field }

// ToolDef declares a named tool: either a built-in/host function (Fn) or a
// specialization of another tool via Extends.
type ToolDef struct {
	Ident   string
	Fn      string
	Extends string

	Deps  []HandleBinding // `with <otherTool> as <alias>` dependencies
	Wires []Wire

	ArrayIterators map[string]string
	ScopeParent    map[string]string
	HandleScope    map[string]string

	Pos Position
}

func (*ToolDef) isInstruction() {}
func (t *ToolDef) Name() string { return t.Ident }

// ConstDef is a named literal (scalar, object, or array) available to any
// bridge via the `const` handle.
type ConstDef struct {
	Ident string
	Value *Literal
	Pos   Position
}

func (*ConstDef) isInstruction() {}
func (c *ConstDef) Name() string { return c.Ident }

// DefineDef is a named sub-bridge that may be imported into another
// bridge or tool as a handle, semantically equivalent to inlining it in
// the importer's scope.
type DefineDef struct {
	Ident string

	Handles        []HandleBinding
	Wires          []Wire
	ArrayIterators map[string]string
	ScopeParent    map[string]string
	HandleScope    map[string]string
	PipeHandles    []string

	Pos Position
}

func (*DefineDef) isInstruction() {}
func (d *DefineDef) Name() string { return d.Ident }
