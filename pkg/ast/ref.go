package ast

import "strconv"

// Reserved module/type markers. SelfModule addresses the bridge's own
// trunk (input/output); ToolType tags a NodeRef that points at a tool
// invocation rather than a schema field.
const (
	SelfModule = "self"
	ToolType   = "$tool"
)

// Reserved handle names; HandleBinding.Alias may never equal one of these,
// they are addressed directly instead.
const (
	HandleInput   = "input"
	HandleOutput  = "output"
	HandleContext = "context"
	HandleConst   = "const"
)

// PathSegment is one hop of a NodeRef's Path. A pure-digit segment is an
// array index (IsIndex true); anything else is a field name.
type PathSegment struct {
	Name    string
	Index   int
	IsIndex bool
}

func Field(name string) PathSegment { return PathSegment{Name: name} }
func Index(i int) PathSegment       { return PathSegment{Index: i, IsIndex: true} }

func (s PathSegment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Name
}

// NodeRef identifies a data point in the dataflow graph: a schema field, a
// tool handle, the current array element inside a mapping block, or a
// literal-bearing handle (input/context/const).
type NodeRef struct {
	Module   string // source namespace, or SelfModule
	Type     string // schema type, or ToolType for tool nodes
	Field    string // schema field, tool/define name, iterator alias, or reserved handle name
	Instance int     // 1-based tool invocation instance; 0 when not applicable
	Element  bool    // true if this ref addresses "the current array element"
	Path     []PathSegment
}

// WithPath returns a copy of the ref with path appended, leaving the
// receiver untouched (NodeRef values are meant to be immutable once built).
func (r NodeRef) WithPath(segs ...PathSegment) NodeRef {
	next := make([]PathSegment, 0, len(r.Path)+len(segs))
	next = append(next, r.Path...)
	next = append(next, segs...)
	r.Path = next
	return r
}

// IsSelf reports whether the ref addresses the bridge's own trunk.
func (r NodeRef) IsSelf() bool {
	return r.Module == SelfModule
}

// IsTool reports whether the ref addresses a tool instance.
func (r NodeRef) IsTool() bool {
	return r.Type == ToolType
}

// DottedPath joins Path into the dot-notation form used for target-path
// overrides and error messages.
func (r NodeRef) DottedPath() string {
	out := ""
	for i, s := range r.Path {
		if i > 0 {
			out += "."
		}
		out += s.String()
	}
	return out
}
