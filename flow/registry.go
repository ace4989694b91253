package flow

import (
	"fmt"
	"sync"
)

var nameValidator = newNameValidator()

// Registry is the mutable graph builder: add nodes, declare their
// outgoing edges, then Compile into an immutable Runnable. A Registry is
// single-use — once Compile succeeds, further mutation attempts fail.
type Registry struct {
	mu       sync.Mutex
	nodes    map[string]*nodeDecl
	order    []string
	compiled bool
}

// NewGraph returns an empty Registry.
func NewGraph() *Registry {
	return &Registry{nodes: make(map[string]*nodeDecl)}
}

func (r *Registry) addDecl(d *nodeDecl) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return newConfigError(CodeMissingStartOrEnd, d.name, "registry already compiled")
	}
	if err := nameValidator(d.name); err != nil {
		return newConfigError(CodeInvalidNodeName, d.name, err.Error())
	}
	if _, exists := r.nodes[d.name]; exists {
		return newConfigError(CodeDuplicateNodeName, d.name, "node already declared")
	}
	r.nodes[d.name] = d
	r.order = append(r.order, d.name)
	return nil
}

// AddNode declares a regular node named name, running body when scheduled.
func (r *Registry) AddNode(name string, body Body, metadata map[string]any) error {
	return r.addDecl(&nodeDecl{
		name:     name,
		kind:     KindRegular,
		run:      body,
		metadata: metadata,
	})
}

// AddMergeNode declares a merge node named name that waits for every name
// in branch to deliver an output, then runs body with all of them keyed
// by source name. branch must be non-empty.
func (r *Registry) AddMergeNode(name string, branch []string, body MergeBody, metadata map[string]any) error {
	if len(branch) == 0 {
		return newConfigError(CodeMergeMissingBranch, name, "merge node declared with no branch sources")
	}
	return r.addDecl(&nodeDecl{
		name:     name,
		kind:     KindMerge,
		run:      wrapMergeBody(body),
		branch:   append([]string(nil), branch...),
		metadata: metadata,
	})
}

// Edge declares a static, direct outgoing edge from from to every name in
// to. from may have at most one outgoing edge declaration (direct or
// dynamic); declaring a second is a DUPLICATE_EDGE error.
func (r *Registry) Edge(from string, to ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return newConfigError(CodeMissingStartOrEnd, from, "registry already compiled")
	}
	decl, ok := r.nodes[from]
	if !ok {
		return newConfigError(CodeNodeNotFound, from, "edge declared from an undeclared node")
	}
	if decl.edge != nil {
		return newConfigError(CodeDuplicateEdge, from, "node already has an outgoing edge")
	}
	if len(to) == 0 {
		return newConfigError(CodeInvalidEdge, from, "direct edge declared with no targets")
	}
	decl.edge = &edge{kind: edgeDirect, targets: append([]string(nil), to...)}
	return nil
}

// DynamicEdge declares a dynamic outgoing edge from from, whose
// successors are computed at run time by router from the node's own
// output. possibleTargets is informational only (used by GetStructure
// for visualization) and is not enforced against the router's actual
// return value.
func (r *Registry) DynamicEdge(from string, router Router, possibleTargets ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return newConfigError(CodeMissingStartOrEnd, from, "registry already compiled")
	}
	decl, ok := r.nodes[from]
	if !ok {
		return newConfigError(CodeNodeNotFound, from, "edge declared from an undeclared node")
	}
	if decl.edge != nil {
		return newConfigError(CodeDuplicateEdge, from, "node already has an outgoing edge")
	}
	if router == nil {
		return newConfigError(CodeInvalidEdge, from, "dynamic edge declared with a nil router")
	}
	decl.edge = &edge{kind: edgeDynamic, router: router, possibleTargets: append([]string(nil), possibleTargets...)}
	return nil
}

// Compile validates the declared graph and freezes it into a Runnable.
// start must name a declared node. end, if non-empty, must also name a
// declared node. Every merge node's branch sources and every direct
// edge's targets must name declared nodes.
func (r *Registry) Compile(start string, end string, opts ...CompileOption) (*Runnable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return nil, newConfigError(CodeMissingStartOrEnd, "", "registry already compiled")
	}
	if _, ok := r.nodes[start]; !ok {
		return nil, newConfigError(CodeMissingStartOrEnd, start, "start node not declared")
	}
	if end != "" {
		if _, ok := r.nodes[end]; !ok {
			return nil, newConfigError(CodeMissingStartOrEnd, end, "end node not declared")
		}
	}

	sourceToMergeTargets := make(map[string][]string)
	for name, d := range r.nodes {
		if d.kind == KindMerge {
			for _, src := range d.branch {
				if _, ok := r.nodes[src]; !ok {
					return nil, newConfigError(CodeMergeMissingBranch, name, fmt.Sprintf("branch source %q not declared", src))
				}
				sourceToMergeTargets[src] = append(sourceToMergeTargets[src], name)
			}
		}
		if d.edge != nil && d.edge.kind == edgeDirect {
			for _, t := range d.edge.targets {
				if _, ok := r.nodes[t]; !ok {
					return nil, newConfigError(CodeMissingSourceNode, name, fmt.Sprintf("direct edge target %q not declared", t))
				}
			}
		}
	}

	frozenNodes := make(map[string]*nodeDecl, len(r.nodes))
	for k, v := range r.nodes {
		frozenNodes[k] = v
	}

	r.compiled = true

	p := &plan{
		nodes:                 frozenNodes,
		order:                 append([]string(nil), r.order...),
		sourceToMergeTargets:  sourceToMergeTargets,
		start:                 start,
		end:                   end,
	}
	rn := newRunnable(p)
	for _, opt := range opts {
		opt(rn)
	}
	return rn, nil
}
