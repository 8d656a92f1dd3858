package stage

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

// WriteDOT renders the graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer) error {
	leaves := make([]Stage, 0, len(g.order))
	for _, name := range g.order {
		leaves = append(leaves, g.stages[name])
	}
	var bound []PortRef
	for ref, src := range g.sources {
		if src.Bound {
			bound = append(bound, ref)
		}
	}
	return writeDOT(w, g.name, leaves, g.edges, bound)
}

// WriteDOT renders a composite stage's inner graph. Leaf stages render as
// a single node.
func (s Stage) WriteDOT(w io.Writer) error {
	if s.inner == nil {
		return writeDOT(w, s.name, []Stage{s}, nil, nil)
	}
	bound := make([]PortRef, 0, len(s.inner.bindings))
	for _, bd := range s.inner.bindings {
		bound = append(bound, bd.to)
	}
	return writeDOT(w, s.name, s.inner.leaves, sortEdges(s.inner.edges), bound)
}

func writeDOT(w io.Writer, name string, leaves []Stage, edges []Edge, bound []PortRef) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", quote(name))
	fmt.Fprintln(bw, "  rankdir=TB;")
	fmt.Fprintln(bw, "  node [shape=box, fontname=\"Helvetica\"];")

	for _, leaf := range leaves {
		fmt.Fprintf(bw, "  %s;\n", quote(leaf.name))
	}

	slices.SortFunc(bound, func(a, b PortRef) int { return strings.Compare(a.String(), b.String()) })
	for _, ref := range bound {
		id := quote("const:" + ref.String())
		fmt.Fprintf(bw, "  %s [shape=plaintext, label=%s];\n", id, quote(ref.Port))
		fmt.Fprintf(bw, "  %s -> %s [style=dashed];\n", id, quote(ref.Stage))
	}

	for _, e := range edges {
		fmt.Fprintf(bw, "  %s -> %s [label=%s];\n",
			quote(e.From.Stage), quote(e.To.Stage), quote(e.From.Port+":"+e.To.Port))
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
