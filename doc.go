// Package bridge wires a Bridge DSL program to a gqlgen schema: parse the
// DSL into an instruction list (ParseBridge), decorate a generated
// ExecutableSchema so its fields resolve through the execution tree
// (BridgeTransform), and write instructions back out to DSL text
// (SerializeBridge). See SPEC_FULL.md for the full design.
package bridge
