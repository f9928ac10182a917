package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/executor"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/exectree"
	"github.com/stackables/bridge/pkg/logger"
	"github.com/stackables/bridge/pkg/parser"
	"github.com/stackables/bridge/pkg/serializer"
	"github.com/stackables/bridge/pkg/toolrun"
	"github.com/stackables/bridge/pkg/trace"
	"github.com/stackables/bridge/pkg/transform"
)

// ParseBridge parses Bridge DSL source into its instruction list. A
// malformed document returns a *parser.Error (grammar) or a *lexer.Error
// (lexical), each carrying {line, column, message}.
func ParseBridge(text string) ([]ast.Instruction, error) {
	return parser.Parse(text)
}

// SerializeBridge renders an instruction list back to Bridge DSL source.
// For every valid instruction set P, ParseBridge(SerializeBridge(P))
// structurally equals P.
func SerializeBridge(instrs []ast.Instruction) (string, error) {
	return serializer.Serialize(instrs)
}

// Option configures BridgeTransform, in the teacher's
// pkg/httpclient.Option functional-options idiom.
type Option = transform.Option

var (
	WithTools         = transform.WithTools
	WithContextMapper = transform.WithContextMapper
	WithTrace         = transform.WithTrace
	WithLogger        = transform.WithLogger
)

// InstructionSource is either a fixed instruction list or a callable
// producing one per request; BridgeTransform accepts either a []ast.Instruction,
// a func(context.Context) []ast.Instruction, or a pre-built InstructionSource.
type InstructionSource = transform.InstructionSource

// BridgeTransform decorates schema so that every field named by a Bridge
// instruction in instructionsOrSelector resolves through the execution
// tree instead of schema's own resolver; every other field is left
// untouched (opt-out per spec.md §4.7 step 1). instructionsOrSelector may
// be a []ast.Instruction, a func(context.Context) []ast.Instruction, or
// an InstructionSource.
func BridgeTransform(schema graphql.ExecutableSchema, instructionsOrSelector any, opts ...Option) (graphql.ExecutableSchema, error) {
	src, err := toInstructionSource(instructionsOrSelector)
	if err != nil {
		return nil, err
	}
	ext := transform.BridgeExtension(src, opts...)
	if err := ext.Validate(schema); err != nil {
		return nil, err
	}
	exec := executor.New(schema)
	exec.Use(ext)
	return exec, nil
}

func toInstructionSource(v any) (InstructionSource, error) {
	switch src := v.(type) {
	case InstructionSource:
		return src, nil
	case []ast.Instruction:
		return transform.FixedLibrary(exectree.NewLibrary(src)), nil
	case func(context.Context) []ast.Instruction:
		return transform.SelectLibrary(func(ctx context.Context) *exectree.Library {
			return exectree.NewLibrary(src(ctx))
		}), nil
	default:
		return nil, fmt.Errorf("bridge: instructionsOrSelector must be []ast.Instruction, func(context.Context) []ast.Instruction, or an InstructionSource, got %T", v)
	}
}

// GetBridgeTraces returns the trace records accumulated so far for the
// request ctx belongs to; the result is empty if tracing is off or ctx
// was never routed through a BridgeTransform-decorated schema.
func GetBridgeTraces(ctx context.Context) []trace.Record {
	return transform.GetBridgeTraces(ctx)
}

// GetBridgeRequestID returns the correlation ID stamped on ctx's trace
// collector, or "" if ctx was never routed through a BridgeTransform-
// decorated schema.
func GetBridgeRequestID(ctx context.Context) string {
	return transform.GetBridgeRequestID(ctx)
}

// UseBridgeTracing returns a standalone extension that copies
// GetBridgeTraces into the response's "traces" extension, for hosts that
// compose extensions manually instead of relying on BridgeTransform's own
// tracing hook.
func UseBridgeTracing() graphql.HandlerExtension {
	return tracingPlugin{}
}

type tracingPlugin struct{}

func (tracingPlugin) ExtensionName() string                     { return "BridgeTracing" }
func (tracingPlugin) Validate(graphql.ExecutableSchema) error    { return nil }
func (tracingPlugin) InterceptResponse(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	resp := next(ctx)
	if resp == nil {
		return resp
	}
	records := GetBridgeTraces(ctx)
	if len(records) == 0 {
		return resp
	}
	if resp.Extensions == nil {
		resp.Extensions = map[string]any{}
	}
	resp.Extensions["traces"] = records
	if id := GetBridgeRequestID(ctx); id != "" {
		resp.Extensions["requestId"] = id
	}
	return resp
}

// NewRegistry builds an empty tool registry; hosts populate it with
// RegisterFlat, RegisterNamespace or stdlib.Register and pass it to
// BridgeTransform through WithTools.
func NewRegistry() *toolrun.Registry { return toolrun.New() }

// NewLogger wraps an *slog.Logger (nil selects the package-level default
// via logger.GetLogger) as a logger.Interface.
func NewLogger(l *slog.Logger) logger.Interface { return logger.NewSlog(l) }
