// Package transform wraps a gqlgen-generated schema so that every field
// covered by a Bridge instruction is resolved by the execution tree
// instead of hand-written resolver code (spec.md §4.7 "Transform
// Layer").
//
// A bridge-covered GraphQL type is expected to bind its model to
// *exectree.Frame (gqlgen's "external model" mechanism): a non-root
// field on such a type is answered by InterceptField from the parent
// Frame, looked up by response path, without calling the generated
// resolver. Root Query/Mutation fields need no resolver body at all — the
// extension returns the constructed Frame directly, opaque to the host,
// exactly as spec.md step 2 describes.
package transform

import (
	"context"
	"fmt"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/stackables/bridge/pkg/exectree"
	"github.com/stackables/bridge/pkg/logger"
	"github.com/stackables/bridge/pkg/toolrun"
	"github.com/stackables/bridge/pkg/trace"
)

// ContextMapper derives the value the bridge's `context` handle resolves
// to from the inbound request context (e.g. pulling an authenticated
// user out of ctx).
type ContextMapper func(ctx context.Context) any

type config struct {
	registry      *toolrun.Registry
	contextMapper ContextMapper
	traceLevel    trace.Level
	log           logger.Interface
}

// Option configures BridgeExtension, in the teacher's functional-options
// idiom (pkg/httpclient.Option).
type Option func(*config)

func WithTools(reg *toolrun.Registry) Option   { return func(c *config) { c.registry = reg } }
func WithContextMapper(m ContextMapper) Option { return func(c *config) { c.contextMapper = m } }
func WithTrace(level trace.Level) Option       { return func(c *config) { c.traceLevel = level } }
func WithLogger(l logger.Interface) Option     { return func(c *config) { c.log = l } }

// InstructionSource supplies the compiled Library a bridge operation
// resolves against. FixedLibrary returns the same Library for every
// request; SelectLibrary recompiles (or picks) per request, matching
// spec.md §6's `instructionsOrSelector` contract.
type InstructionSource interface {
	resolve(ctx context.Context) *exectree.Library
}

type fixedLibrary struct{ lib *exectree.Library }

func (f fixedLibrary) resolve(context.Context) *exectree.Library { return f.lib }

// FixedLibrary wraps a Library compiled once at startup (the common
// case: one static bridge program for the process lifetime).
func FixedLibrary(lib *exectree.Library) InstructionSource { return fixedLibrary{lib: lib} }

type selectedLibrary struct{ fn func(context.Context) *exectree.Library }

func (s selectedLibrary) resolve(ctx context.Context) *exectree.Library { return s.fn(ctx) }

// SelectLibrary wraps a callable that chooses a Library per request
// (e.g. multi-tenant deployments keyed off request metadata).
func SelectLibrary(fn func(ctx context.Context) *exectree.Library) InstructionSource {
	return selectedLibrary{fn: fn}
}

// staticOrDynamic is the gqlgen HandlerExtension installed via
// `executor.New(schema).Use(ext)` (or `srv.Use(ext)` on a
// handler.Server); it implements the field/operation/response
// interceptor trio that realize the Transform Layer.
type staticOrDynamic struct {
	instrs InstructionSource
	cfg    config
}

// BridgeExtension builds the gqlgen extension that resolves every field
// named by a Bridge instruction through the execution tree.
func BridgeExtension(instrs InstructionSource, opts ...Option) graphql.HandlerExtension {
	cfg := config{registry: toolrun.New(), traceLevel: trace.Off, log: logger.Noop{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &staticOrDynamic{instrs: instrs, cfg: cfg}
}

func (s *staticOrDynamic) ExtensionName() string { return "BridgeTransform" }
func (s *staticOrDynamic) Validate(graphql.ExecutableSchema) error { return nil }

func (s *staticOrDynamic) InterceptOperation(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
	lib := s.instrs.resolve(ctx)
	ctx = withOperationState(ctx, &operationState{lib: lib, cfg: s.cfg})
	return next(ctx)
}

func (s *staticOrDynamic) InterceptField(ctx context.Context, next graphql.Resolver) (any, error) {
	op := operationStateFromContext(ctx)
	if op == nil {
		return next(ctx)
	}
	fc := graphql.GetFieldContext(ctx)
	if fc == nil {
		return next(ctx)
	}
	path := fc.Path().String()

	if fc.Parent == nil || fc.Parent.Field.Name == "" {
		bridge, ok := op.lib.Bridges[fc.Object+"."+fc.Field.Name]
		if !ok {
			return next(ctx) // opt-out: no bridge for this field
		}
		frame := exectree.NewRoot(op.lib, bridge, op.cfg.registry, op.cfg.log, op.tracer(ctx))
		frame.Push(fc.Args)
		if op.cfg.contextMapper != nil {
			frame.SetContext(op.cfg.contextMapper(ctx))
		}
		frame.ExecuteForced(ctx)
		op.store(path, frame)
		return frame, nil
	}

	parentFrame, ok := op.lookup(fc.Parent.Path().String())
	if !ok {
		return next(ctx)
	}
	isList := isListType(fc.Field.Definition.Type)
	result, err := parentFrame.Response(ctx, []string{fc.Field.Name}, isList)
	if err != nil {
		return nil, err
	}
	switch v := result.(type) {
	case *exectree.Frame:
		op.store(path, v)
		return v, nil
	case []*exectree.Frame:
		for i, cf := range v {
			op.store(fmt.Sprintf("%s[%d]", path, i), cf)
		}
		return v, nil
	default:
		return v, nil
	}
}

func (s *staticOrDynamic) InterceptResponse(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	resp := next(ctx)
	op := operationStateFromContext(ctx)
	if op == nil || resp == nil {
		return resp
	}
	records := op.traces()
	if len(records) == 0 {
		return resp
	}
	if resp.Extensions == nil {
		resp.Extensions = map[string]any{}
	}
	resp.Extensions["traces"] = records
	return resp
}

func isListType(t *ast.Type) bool {
	return t != nil && t.Elem != nil
}

// operationState carries the per-request Library, config, and the
// path->Frame map InterceptField uses to thread a parent's resolved
// Frame down to its children without relying on gqlgen's generic `obj`
// plumbing to carry an opaque type across a model binding.
type operationState struct {
	lib *exectree.Library
	cfg config

	mu          sync.Mutex
	framesByPath map[string]any // *exectree.Frame
	collector    *trace.Collector
	collectorSet bool
}

type operationStateKey struct{}

func withOperationState(ctx context.Context, op *operationState) context.Context {
	return context.WithValue(ctx, operationStateKey{}, op)
}

func operationStateFromContext(ctx context.Context) *operationState {
	op, _ := ctx.Value(operationStateKey{}).(*operationState)
	return op
}

func (op *operationState) store(path string, frame any) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.framesByPath == nil {
		op.framesByPath = map[string]any{}
	}
	op.framesByPath[path] = frame
}

func (op *operationState) lookup(path string) (*exectree.Frame, bool) {
	op.mu.Lock()
	defer op.mu.Unlock()
	v, ok := op.framesByPath[path]
	if !ok {
		return nil, false
	}
	f, ok := v.(*exectree.Frame)
	return f, ok
}

func (op *operationState) tracer(ctx context.Context) *trace.Collector {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.collectorSet {
		op.collector = trace.NewCollector(op.cfg.traceLevel)
		op.collectorSet = true
	}
	return op.collector
}

func (op *operationState) traces() []trace.Record {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.collector == nil {
		return nil
	}
	return op.collector.Traces()
}

// GetBridgeTraces returns the trace records accumulated so far for the
// request ctx belongs to; the result is empty if tracing is off or ctx
// carries no bridge operation state.
func GetBridgeTraces(ctx context.Context) []trace.Record {
	op := operationStateFromContext(ctx)
	if op == nil {
		return nil
	}
	return op.traces()
}

// GetBridgeRequestID returns the correlation ID stamped on the trace
// collector for the request ctx belongs to, or "" if tracing was never
// initialized for this operation.
func GetBridgeRequestID(ctx context.Context) string {
	op := operationStateFromContext(ctx)
	if op == nil {
		return ""
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.collector.RequestID()
}
