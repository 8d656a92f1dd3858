package stage

import (
	"context"
	"slices"
)

// Call is the input of one stage invocation.
type Call struct {
	// Stage is the leaf stage name.
	Stage string
	// WorkDir is a scratch directory owned by this invocation.
	WorkDir string
	// Inputs holds a value for every connected or bound input port.
	Inputs Values
}

// Invoker runs the work of a leaf stage. It must return a value for every
// declared output port or an error.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (Values, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, call Call) (Values, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, call Call) (Values, error) {
	return f(ctx, call)
}

// Stage is a named unit with fixed ports. A leaf stage carries an Invoker;
// a composite stage carries the flattened subgraph it was nested from.
// Stages are values and never change after construction.
type Stage struct {
	name    string
	inputs  []Port
	outputs []Port
	invoker Invoker
	inner   *composite
}

// composite is the flattened content of a nested graph.
type composite struct {
	leaves   []Stage
	edges    []Edge
	bindings []binding
	inputs   map[string]PortRef
	outputs  map[string]PortRef
}

// PortRef addresses a port of a leaf stage.
type PortRef struct {
	Stage string
	Port  string
}

// String renders the reference as stage.port.
func (r PortRef) String() string { return r.Stage + "." + r.Port }

// New creates a leaf stage.
func New(name string, inputs, outputs []Port, invoker Invoker) Stage {
	return Stage{
		name:    name,
		inputs:  slices.Clone(inputs),
		outputs: slices.Clone(outputs),
		invoker: invoker,
	}
}

// Name returns the stage name.
func (s Stage) Name() string { return s.name }

// Inputs returns the input ports.
func (s Stage) Inputs() []Port { return slices.Clone(s.inputs) }

// Outputs returns the output ports.
func (s Stage) Outputs() []Port { return slices.Clone(s.outputs) }

// Input looks up an input port by name.
func (s Stage) Input(name string) (Port, bool) { return findPort(s.inputs, name) }

// Output looks up an output port by name.
func (s Stage) Output(name string) (Port, bool) { return findPort(s.outputs, name) }

// IsComposite reports whether s was produced by Builder.Nest.
func (s Stage) IsComposite() bool { return s.inner != nil }

// Leaves returns the leaf stages of a composite, or s itself for a leaf.
func (s Stage) Leaves() []Stage {
	if s.inner == nil {
		return []Stage{s}
	}
	return slices.Clone(s.inner.leaves)
}

// InnerEdges returns the edges inside a composite. Nil for a leaf.
func (s Stage) InnerEdges() []Edge {
	if s.inner == nil {
		return nil
	}
	return slices.Clone(s.inner.edges)
}

// Invoke runs a leaf stage.
func (s Stage) Invoke(ctx context.Context, call Call) (Values, error) {
	return s.invoker.Invoke(ctx, call)
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Edge connects an output port of one leaf stage to an input port of another.
type Edge struct {
	From PortRef
	To   PortRef
}

// String renders the edge as from.port -> to.port.
func (e Edge) String() string { return e.From.String() + " -> " + e.To.String() }

type binding struct {
	to    PortRef
	value Value
}
