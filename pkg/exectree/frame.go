package exectree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/logger"
	"github.com/stackables/bridge/pkg/toolrun"
	"github.com/stackables/bridge/pkg/trace"
	"github.com/stackables/bridge/pkg/value"
	"github.com/stackables/bridge/pkg/wireeval"
)

// request holds everything shared by every Frame of one host request: the
// compiled program, the tool registry, the pushed input/context, and the
// trace collector. Frames reference it directly rather than walking a
// parent chain, since input/context/const are request-scoped regardless
// of how deeply nested the referencing wire is.
type request struct {
	lib      *Library
	registry *toolrun.Registry
	logger   logger.Interface
	tracer   *trace.Collector

	mu         sync.Mutex
	inputBag   map[string]any
	contextVal any

	// rootMemo dedups root-scope tool/define calls (those not owned by an
	// array-mapping shadow scope) across the whole request, not just
	// within one invocation's own Frame. This is what makes a diamond
	// dependency — the same tool declared independently by two sibling
	// tool bodies, each resolving identical input from request-level
	// input/context/const — collapse to a single call, matching spec.md
	// §8's "a tool instance is executed at most once" per execution tree.
	// Array-mapped deps keep per-element ownership via Owner.InstanceScope
	// instead, since those genuinely need independent calls per element.
	rootMemo singleflight.Group

	// results keeps each finished tool/define outcome by owning frame and
	// instance key, so a call arriving after the first one has returned
	// reuses it; the singleflight groups only join calls still in flight.
	results sync.Map
}

func (r *request) Input() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputBag
}

func (r *request) Context() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contextVal
}

// Frame is one node of the (shadow) execution tree: either the root of a
// bridge/tool/define invocation (scopeParent nil, scope "") or one
// element of an array-mapping block (scopeParent pointing at the frame
// whose wire produced the sequence, scope set to the iterator alias).
//
// Memoization and "current array element" lookups walk scopeParent,
// which never crosses an owner boundary (a tool/define invocation always
// starts a fresh chain); Input/Context/Const go through req instead,
// since those are shared with the request root regardless of owner.
type Frame struct {
	req         *request
	owner       *Owner
	scopeParent *Frame
	scope       string

	elementAlias string
	element      any

	scopeOnce sync.Once
	scopeObj  map[string]any
	scopeErr  error

	mappingMu     sync.Mutex
	mappingOnce   map[string]*sync.Once
	mappingFrames map[string][]*Frame
	mappingErr    map[string]error

	// memo dedups concurrent and repeat scheduleTool calls for the same
	// (tool, instance) key against this frame, the node that owns that
	// instance's memoization per Owner.InstanceScope.
	memo singleflight.Group
}

// NewRoot builds the root Frame for one bridge invocation. log and tracer
// may be nil (a Noop logger and a disabled tracer are substituted).
func NewRoot(lib *Library, bridge *ast.Bridge, registry *toolrun.Registry, log logger.Interface, tracer *trace.Collector) *Frame {
	if log == nil {
		log = logger.Noop{}
	}
	req := &request{
		lib:      lib,
		registry: registry,
		logger:   log,
		tracer:   tracer,
		inputBag: map[string]any{},
	}
	return &Frame{req: req, owner: CompileBridge(bridge)}
}

// Push merges args into the request's input bag. Safe to call more than
// once; later keys win, matching the host contract that Push is
// idempotent-by-overwrite.
func (f *Frame) Push(args map[string]any) {
	f.req.mu.Lock()
	defer f.req.mu.Unlock()
	for k, v := range args {
		f.req.inputBag[k] = v
	}
}

// SetContext assigns the value the `context` handle resolves to.
func (f *Frame) SetContext(ctx any) {
	f.req.mu.Lock()
	defer f.req.mu.Unlock()
	f.req.contextVal = ctx
}

// ExecuteForced fires every `<-!` wire at this frame's own scope and
// returns without awaiting them, logging (not surfacing) any failure.
// Forced wires nested inside an array-mapping block run as part of that
// mapping's own materialization, once/if the array is demanded.
func (f *Frame) ExecuteForced(ctx context.Context) {
	for _, w := range f.owner.wiresAt(f.scope) {
		if !w.Force {
			continue
		}
		w := w
		go func() {
			defer func() {
				if r := recover(); r != nil {
					f.req.logger.Error("forced wire panicked", "target", w.Target(), "panic", r)
				}
			}()
			if _, err := f.evalWire(ctx, w); err != nil {
				f.req.logger.Warn("forced wire failed", "target", w.Target(), "error", err)
			}
		}()
	}
}

// Response resolves a host-requested field path against this frame. When
// isList is true and path names an array-mapping field directly, the
// result is a []*Frame (one shadow frame per element) rather than a
// materialized array, letting the host resolve each element's own
// sub-fields lazily and share their memoization with any other Response
// call against the same elements.
func (f *Frame) Response(ctx context.Context, path []string, isList bool) (any, error) {
	if f.owner.Passthrough != "" {
		raw, err := f.scheduleTool(ctx, ast.NodeRef{
			Module: ast.SelfModule, Type: ast.ToolType,
			Field: f.owner.Passthrough, Instance: 1,
		})
		if err != nil {
			return nil, err
		}
		return descendToolResult(raw, pathSegs(path)), nil
	}

	if len(path) == 0 {
		return f.materialize(ctx)
	}

	root := path[0]
	if iterAlias, ok := f.owner.ArrayIterators[root]; ok && isList && len(path) == 1 {
		if w, ok2 := f.owner.findWire(f.scope, root); ok2 {
			frames, err := f.childFramesFor(ctx, w, iterAlias)
			if err != nil {
				return nil, err
			}
			return frames, nil
		}
	}

	obj, err := f.materialize(ctx)
	if err != nil {
		return nil, err
	}
	val, ok := value.Get(obj, pathSegs(path))
	if !ok {
		return nil, nil
	}
	return val, nil
}

func pathSegs(path []string) []ast.PathSegment {
	segs := make([]ast.PathSegment, 0, len(path))
	for _, p := range path {
		segs = append(segs, ast.Field(p))
	}
	return segs
}

// materialize builds this frame's own scope-level object, running every
// wire declared at f.scope concurrently and merging their results by
// target path. The result is cached: a frame corresponds to exactly one
// scope occurrence, so later calls (from sibling field demands, or from
// the array-mapping path that needs the whole element object) reuse it
// rather than re-running side-effecting tool calls.
func (f *Frame) materialize(ctx context.Context) (map[string]any, error) {
	f.scopeOnce.Do(func() {
		f.scopeObj, f.scopeErr = f.materializeUncached(ctx)
	})
	return f.scopeObj, f.scopeErr
}

func (f *Frame) materializeUncached(ctx context.Context) (map[string]any, error) {
	wires := f.owner.wiresAt(f.scope)
	obj := map[string]any{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range wires {
		if w.Pipe {
			// A pipe hop's synthetic `<tool>.in <- ...` wire targets a
			// tool instance, not a field of this frame's own object; it
			// is evaluated lazily by pipeInputFor when that instance is
			// scheduled, not merged in here.
			continue
		}
		w := w
		g.Go(func() error {
			val, err := f.evalWire(gctx, w)
			if err != nil {
				if w.Force {
					f.req.logger.Warn("forced wire failed", "target", w.Target(), "error", err)
					return nil
				}
				return err
			}
			mu.Lock()
			wireeval.MergeInto(obj, w, val)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return obj, nil
}

// evalWire resolves one wire's value: a constant's literal, an ordinary
// pull's fallback-applied reference, or (for a wire whose target is an
// array-mapping root) the fully materialized array of element objects.
func (f *Frame) evalWire(ctx context.Context, w ast.Wire) (any, error) {
	if w.Kind == ast.WireConstant {
		return w.Value.Value(), nil
	}
	if iterAlias, ok := f.owner.ArrayIterators[w.Target()]; ok && w.Scope == f.scope {
		return f.evalArrayMapping(ctx, w, iterAlias)
	}
	val, err := f.evalRef(ctx, w.From)
	return wireeval.ApplyFallbacks(val, err, w.Fallbacks, func(r *ast.NodeRef) (any, error) {
		return f.evalRef(ctx, r)
	})
}

func (f *Frame) evalArrayMapping(ctx context.Context, w ast.Wire, iterAlias string) (any, error) {
	frames, err := f.childFramesFor(ctx, w, iterAlias)
	if err != nil {
		return nil, err
	}
	results := make([]any, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range frames {
		i, child := i, child
		g.Go(func() error {
			sub, err := child.materialize(gctx)
			if err != nil {
				return err
			}
			results[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// childFramesFor resolves w's source sequence once and builds one shadow
// Frame per element, cached per wire target so repeated Response/wire
// evaluations against the same mapping share the same elements (and
// therefore the same per-element memoization).
func (f *Frame) childFramesFor(ctx context.Context, w ast.Wire, iterAlias string) ([]*Frame, error) {
	key := w.Target()

	f.mappingMu.Lock()
	if f.mappingOnce == nil {
		f.mappingOnce = map[string]*sync.Once{}
		f.mappingFrames = map[string][]*Frame{}
		f.mappingErr = map[string]error{}
	}
	once, ok := f.mappingOnce[key]
	if !ok {
		once = &sync.Once{}
		f.mappingOnce[key] = once
	}
	f.mappingMu.Unlock()

	once.Do(func() {
		seq, err := f.evalRef(ctx, w.From)
		if err != nil {
			f.mappingMu.Lock()
			f.mappingErr[key] = err
			f.mappingMu.Unlock()
			return
		}
		items := wireeval.CoerceSequence(seq)
		frames := make([]*Frame, len(items))
		for i, item := range items {
			frames[i] = &Frame{
				req: f.req, owner: f.owner, scopeParent: f,
				scope: iterAlias, elementAlias: iterAlias,
				element: item,
			}
		}
		f.mappingMu.Lock()
		f.mappingFrames[key] = frames
		f.mappingMu.Unlock()
	})

	f.mappingMu.Lock()
	frames, err := f.mappingFrames[key], f.mappingErr[key]
	f.mappingMu.Unlock()
	return frames, err
}

// ancestorWithScope walks the scopeParent chain (never crossing an owner
// boundary) to find the frame whose own scope equals tag, the node that
// owns memoization for any instance declared at that scope.
func (f *Frame) ancestorWithScope(tag string) *Frame {
	for n := f; n != nil; n = n.scopeParent {
		if n.scope == tag {
			return n
		}
	}
	return nil
}

// lookupElement resolves an array-iterator alias reference by walking
// the scopeParent chain for a frame whose elementAlias matches.
func (f *Frame) lookupElement(alias string) (any, bool) {
	for n := f; n != nil; n = n.scopeParent {
		if n.elementAlias == alias {
			return n.element, true
		}
	}
	return nil, false
}

// evalRef is the central dispatch for resolving a NodeRef: the current
// array element, a tool/define invocation's result, or the bridge's own
// input/context/const trunk (spec.md §4.5 "Resolution order").
func (f *Frame) evalRef(ctx context.Context, ref *ast.NodeRef) (any, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.Element {
		v, ok := f.lookupElement(ref.Field)
		if !ok {
			return nil, fmt.Errorf("exectree: no array element in scope for alias %q", ref.Field)
		}
		got, ok := value.Get(v, ref.Path)
		if !ok {
			return nil, nil
		}
		return got, nil
	}
	if ref.IsTool() {
		raw, err := f.scheduleTool(ctx, *ref)
		if err != nil {
			return nil, err
		}
		return descendToolResult(raw, ref.Path), nil
	}
	if ref.IsSelf() {
		switch ref.Field {
		case ast.HandleInput:
			got, ok := value.Get(f.req.Input(), ref.Path)
			if !ok {
				return nil, nil
			}
			return got, nil
		case ast.HandleContext:
			got, ok := value.Get(f.req.Context(), ref.Path)
			if !ok {
				return nil, nil
			}
			return got, nil
		case ast.HandleConst:
			if len(ref.Path) == 0 {
				return nil, nil
			}
			lit, ok := f.req.lib.Consts[ref.Path[0].Name]
			if !ok {
				return nil, fmt.Errorf("exectree: undeclared const %q", ref.Path[0].Name)
			}
			got, ok := value.Get(lit.Value(), ref.Path[1:])
			if !ok {
				return nil, nil
			}
			return got, nil
		case ast.HandleOutput:
			return nil, fmt.Errorf("exectree: %q cannot be read as a wire source within the same bridge pass", ast.HandleOutput)
		}
	}
	return nil, fmt.Errorf("exectree: unresolvable reference %+v", ref)
}

// descendToolResult applies the pipe-chain ".out" convention: an empty
// path or a path of exactly ["out"] addresses the tool's whole raw
// result (which may be a bare scalar), anything else is an ordinary
// field descent assuming raw is a map.
func descendToolResult(raw any, path []ast.PathSegment) any {
	if len(path) == 0 {
		return raw
	}
	if len(path) == 1 && !path[0].IsIndex && path[0].Name == "out" {
		return raw
	}
	got, ok := value.Get(raw, path)
	if !ok {
		return nil
	}
	return got
}

// scheduleTool resolves ref to the Frame that owns its instance's
// memoization (per Owner.InstanceScope) and runs the invocation exactly
// once there, however many concurrent wires reference it.
func (f *Frame) scheduleTool(ctx context.Context, ref ast.NodeRef) (any, error) {
	key := instanceKey(ref.Field, ref.Instance)
	tag, ok := f.owner.InstanceScope[key]
	if !ok {
		tag = ""
	}

	var owner *Frame
	if tag != "" {
		if owner = f.ancestorWithScope(tag); owner == nil {
			owner = f
		}
	}
	doneKey := fmt.Sprintf("%p|%s", owner, key)
	do := func() (any, error) {
		if done, ok := f.req.results.Load(doneKey); ok {
			return done.(func() (any, error))()
		}
		val, err := f.invokeToolOrDefine(ctx, ref)
		f.req.results.Store(doneKey, func() (any, error) { return val, err })
		return val, err
	}

	if owner == nil {
		val, err, _ := f.req.rootMemo.Do(key, do)
		return val, err
	}
	val, err, _ := owner.memo.Do(key, do)
	return val, err
}

func (f *Frame) invokeToolOrDefine(ctx context.Context, ref ast.NodeRef) (any, error) {
	lib := f.req.lib

	pipeInput, err := f.pipeInputFor(ctx, ref)
	if err != nil {
		return nil, err
	}

	if def, ok := lib.Defines[ref.Field]; ok {
		owner := CompileDefine(def)
		inv := &Frame{req: f.req, owner: owner}
		out, err := inv.materialize(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range pipeInput {
			out[k] = v
		}
		return out, nil
	}

	if _, ok := lib.Tools[ref.Field]; ok {
		owner, err := CompileTool(lib, ref.Field)
		if err != nil {
			return nil, err
		}
		inv := &Frame{req: f.req, owner: owner}
		input, err := inv.materialize(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range pipeInput {
			input[k] = v
		}
		start := time.Now()
		raw, err := f.req.registry.Invoke(ctx, owner.Fn, input)
		f.req.tracer.Append(trace.Record{
			Tool: ref.Field, Fn: owner.Fn, StartedAt: start,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      errString(err), Input: input, Output: asMap(raw),
		})
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	return nil, fmt.Errorf("exectree: tool or define %q not found", ref.Field)
}

// pipeInputFor resolves the pipe-hop wires the calling frame declared
// against ref's exact (Field, Instance) — `applyPipeHop` records these
// as synthetic `<tool>.in <- <chain value>` wires at the caller's own
// scope (pkg/parser/body.go) — and merges their values into a fresh
// object keyed by the wire's own target path (always "in"). The result
// overrides whatever the tool's own definition wires would otherwise
// produce for that path, since a pipe fork's whole point is to feed the
// chain value in as that parameter (spec.md §4.2 "each handleX is a
// distinct invocation consuming the next expression as its in
// parameter").
func (f *Frame) pipeInputFor(ctx context.Context, ref ast.NodeRef) (map[string]any, error) {
	if !ref.IsTool() {
		return nil, nil
	}
	var out map[string]any
	for _, w := range f.owner.wiresAt(f.scope) {
		if !w.Pipe || !w.To.IsTool() || w.To.Field != ref.Field || w.To.Instance != ref.Instance {
			continue
		}
		val, err := f.evalWire(ctx, w)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = map[string]any{}
		}
		value.Set(out, w.To.Path, val)
	}
	return out, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
