package flow

import "context"

// NodeKind distinguishes a regular node from a merge node.
type NodeKind int

const (
	// KindRegular nodes run with a single upstream output as input.
	KindRegular NodeKind = iota
	// KindMerge nodes wait for every declared branch to deliver an
	// output before running, and receive all of them keyed by source name.
	KindMerge
)

// Body is the work a regular node performs: it receives the input
// produced by whatever scheduled it and returns the output passed along
// to its successors (or used as the workflow result).
type Body func(ctx context.Context, input any) (any, error)

// MergeBody is the work a merge node performs. inputs is keyed by the
// name of each declared branch, populated once every branch has
// delivered its output.
type MergeBody func(ctx context.Context, inputs map[string]any) (any, error)

// Router computes the dynamic successors of a node from its own output.
// It may return nil, a string, a []string, or a []any containing only
// strings and nils; anything else fails the step with
// INVALID_DYNAMIC_EDGE_RESULT.
type Router func(ctx context.Context, output any) (any, error)

type edgeKind int

const (
	edgeNone edgeKind = iota
	edgeDirect
	edgeDynamic
)

type edge struct {
	kind            edgeKind
	targets         []string // direct targets
	router          Router   // dynamic only
	possibleTargets []string // dynamic only, informational
}

// nodeDecl is the builder-time representation of a declared node. Once
// Compile succeeds, nodes are frozen into a plan and never mutated again.
type nodeDecl struct {
	name     string
	kind     NodeKind
	run      func(ctx context.Context, input any) (any, error)
	branch   []string // merge nodes only, declared source order
	edge     *edge    // optional outgoing edge
	metadata map[string]any
}

func wrapMergeBody(mb MergeBody) func(ctx context.Context, input any) (any, error) {
	return func(ctx context.Context, input any) (any, error) {
		inputs, _ := input.(map[string]any)
		return mb(ctx, inputs)
	}
}
