package ast

// HandleSource tags what a HandleBinding's alias resolves to.
type HandleSource int

const (
	SourceTool HandleSource = iota
	SourceInput
	SourceOutput
	SourceContext
	SourceConst
	SourceDefine
)

// HandleBinding binds a local alias to a source inside a Bridge or ToolDef
// body, declared with a `with <source> [as <alias>]` line.
type HandleBinding struct {
	Alias  string
	Source HandleSource

	// ToolName is the dotted tool name for SourceTool, or the define name
	// for SourceDefine. Empty for the other sources.
	ToolName string

	// Instance is the 1-based occurrence count of this (module, field)
	// tool binding within the enclosing bridge (invariant I2). Only
	// meaningful for SourceTool and SourceDefine.
	Instance int

	Pos Position
}
