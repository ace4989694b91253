package flow

// plan is the frozen, validated graph a Registry produces at Compile.
// It is never mutated once built; every Run over the owning Runnable
// reads it concurrently without locking.
type plan struct {
	nodes map[string]*nodeDecl
	order []string // declaration order, used by GetStructure

	// sourceToMergeTargets maps a node name to every merge node that
	// declares it as a branch source. Populated once at Compile time so
	// the node executor's merge-target fallback (spec.md §4.4 step 5)
	// is an O(1) lookup per step rather than a graph scan.
	sourceToMergeTargets map[string][]string

	start string
	end   string
}

// StructureEntry describes one declared node for visualization/tooling
// purposes (GetStructure). It never drives execution.
type StructureEntry struct {
	Name            string
	Kind            NodeKind
	Branch          []string
	EdgeKind        string // "none", "direct", "dynamic"
	DirectTargets   []string
	PossibleTargets []string
}

// GetStructure returns every declared node in declaration order. This is
// the external-contract-only graph-structure view the scheduler itself
// never consults.
func (r *Runnable) GetStructure() []StructureEntry {
	out := make([]StructureEntry, 0, len(r.plan.order))
	for _, name := range r.plan.order {
		d := r.plan.nodes[name]
		se := StructureEntry{Name: d.name, Kind: d.kind, Branch: d.branch, EdgeKind: "none"}
		if d.edge != nil {
			switch d.edge.kind {
			case edgeDirect:
				se.EdgeKind = "direct"
				se.DirectTargets = d.edge.targets
			case edgeDynamic:
				se.EdgeKind = "dynamic"
				se.PossibleTargets = d.edge.possibleTargets
			}
		}
		out = append(out, se)
	}
	return out
}
