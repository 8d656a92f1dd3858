package stage

import (
	"slices"
	"strings"
)

// Builder assembles stages and wiring into a Graph or a composite Stage.
// A Builder is a local construction helper: the Graph and Stage values it
// returns share nothing with it. The first wiring error is kept and
// reported by Compose or Nest.
type Builder struct {
	name       string
	leaves     map[string]Stage
	order      []string
	composites map[string]*composite
	edges      []Edge
	bindings   []binding
	err        error
}

// NewBuilder creates a builder. The name becomes the graph name, or the
// stage name when the result is nested.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:       name,
		leaves:     make(map[string]Stage),
		composites: make(map[string]*composite),
	}
}

// Add registers stages. Composite stages are flattened: their leaves,
// edges and bindings join this builder and their promoted ports become
// addressable through the composite name.
func (b *Builder) Add(stages ...Stage) *Builder {
	for _, s := range stages {
		if b.err != nil {
			return b
		}
		if s.inner == nil {
			b.addLeaf(s)
			continue
		}
		if b.taken(s.name) {
			b.err = wiringf(WiringDuplicateStage, s.name, "", "stage name already in use")
			return b
		}
		for _, leaf := range s.inner.leaves {
			b.addLeaf(leaf)
		}
		b.edges = append(b.edges, s.inner.edges...)
		b.bindings = append(b.bindings, s.inner.bindings...)
		b.composites[s.name] = s.inner
	}
	return b
}

func (b *Builder) addLeaf(s Stage) {
	if b.err != nil {
		return
	}
	if s.name == "" {
		b.err = wiringf(WiringUnknownStage, "", "", "stage has no name")
		return
	}
	if b.taken(s.name) {
		b.err = wiringf(WiringDuplicateStage, s.name, "", "stage name already in use")
		return
	}
	b.leaves[s.name] = s
	b.order = append(b.order, s.name)
}

func (b *Builder) taken(name string) bool {
	_, leaf := b.leaves[name]
	_, comp := b.composites[name]
	return leaf || comp || name == b.name
}

// Connect wires an output port to an input port. Either side may name a
// composite stage and one of its promoted ports.
func (b *Builder) Connect(from, output, to, input string) *Builder {
	if b.err != nil {
		return b
	}
	src, srcPort, err := b.resolve(from, output, false)
	if err != nil {
		b.err = err
		return b
	}
	dst, dstPort, err := b.resolve(to, input, true)
	if err != nil {
		b.err = err
		return b
	}
	if srcPort.Kind != dstPort.Kind {
		b.err = wiringf(WiringKindMismatch, dst.Stage, dst.Port,
			"%s output %s is %s, input is %s", src.Stage, src.Port, srcPort.Kind, dstPort.Kind)
		return b
	}
	b.edges = append(b.edges, Edge{From: src, To: dst})
	return b
}

// Bind supplies a constant value for an input port.
func (b *Builder) Bind(to, input string, v Value) *Builder {
	if b.err != nil {
		return b
	}
	dst, port, err := b.resolve(to, input, true)
	if err != nil {
		b.err = err
		return b
	}
	if v.Kind() != port.Kind {
		b.err = wiringf(WiringKindMismatch, dst.Stage, dst.Port,
			"bound %s value to %s input", v.Kind(), port.Kind)
		return b
	}
	b.bindings = append(b.bindings, binding{to: dst, value: v})
	return b
}

// resolve maps a (stage, port) reference to a leaf port.
func (b *Builder) resolve(stage, port string, input bool) (PortRef, Port, error) {
	if leaf, ok := b.leaves[stage]; ok {
		ports := leaf.outputs
		if input {
			ports = leaf.inputs
		}
		p, ok := findPort(ports, port)
		if !ok {
			return PortRef{}, Port{}, wiringf(WiringUnknownPort, stage, port, "no such %s port", direction(input))
		}
		return PortRef{Stage: stage, Port: port}, p, nil
	}

	if comp, ok := b.composites[stage]; ok {
		promoted := comp.outputs
		if input {
			promoted = comp.inputs
		}
		ref, ok := promoted[port]
		if !ok {
			return PortRef{}, Port{}, wiringf(WiringUnknownPort, stage, port, "no such promoted %s port", direction(input))
		}
		return b.resolve(ref.Stage, ref.Port, input)
	}

	return PortRef{}, Port{}, wiringf(WiringUnknownStage, stage, port, "no such stage")
}

func direction(input bool) string {
	if input {
		return "input"
	}
	return "output"
}

// check validates everything except unconnected required inputs and
// returns the number of sources per input port.
func (b *Builder) check() (map[PortRef]int, error) {
	if b.err != nil {
		return nil, b.err
	}

	sources := make(map[PortRef]int)
	for _, e := range b.edges {
		sources[e.To]++
	}
	for _, bd := range b.bindings {
		sources[bd.to]++
	}
	for _, name := range b.sortedLeaves() {
		for _, p := range b.leaves[name].inputs {
			ref := PortRef{Stage: name, Port: p.Name}
			if sources[ref] > 1 {
				return nil, wiringf(WiringMultipleSource, name, p.Name, "%d sources", sources[ref])
			}
		}
	}

	if cycle := findCycle(b.sortedLeaves(), b.edges); cycle != nil {
		return nil, &WiringError{Kind: WiringCycle, Stage: cycle[0], Cycle: cycle}
	}
	return sources, nil
}

// Compose validates the builder content and returns a runnable graph.
// Every required input must have exactly one incoming edge or binding,
// every leaf must have an invoker, and the graph must be acyclic.
func (b *Builder) Compose() (*Graph, error) {
	sources, err := b.check()
	if err != nil {
		return nil, err
	}

	for _, name := range b.sortedLeaves() {
		leaf := b.leaves[name]
		if leaf.invoker == nil {
			return nil, wiringf(WiringNoInvoker, name, "", "leaf stage has no invoker")
		}
		for _, p := range leaf.inputs {
			if !p.Optional && sources[PortRef{Stage: name, Port: p.Name}] == 0 {
				return nil, wiringf(WiringUnconnected, name, p.Name, "required %s input has no source", p.Kind)
			}
		}
	}

	return newGraph(b.name, b.leaves, b.edges, b.bindings), nil
}

// Nest validates the builder content and returns it as a composite stage.
// Unconnected inputs are promoted as "<leaf>.<port>"; every leaf output is
// promoted the same way.
func (b *Builder) Nest() (Stage, error) {
	sources, err := b.check()
	if err != nil {
		return Stage{}, err
	}

	inner := &composite{
		leaves:   make([]Stage, 0, len(b.order)),
		edges:    slices.Clone(b.edges),
		bindings: slices.Clone(b.bindings),
		inputs:   make(map[string]PortRef),
		outputs:  make(map[string]PortRef),
	}
	var inputs, outputs []Port

	for _, name := range b.order {
		leaf := b.leaves[name]
		inner.leaves = append(inner.leaves, leaf)
		for _, p := range leaf.inputs {
			ref := PortRef{Stage: name, Port: p.Name}
			if sources[ref] > 0 {
				continue
			}
			promoted := p
			promoted.Name = ref.String()
			inputs = append(inputs, promoted)
			inner.inputs[promoted.Name] = ref
		}
		for _, p := range leaf.outputs {
			ref := PortRef{Stage: name, Port: p.Name}
			promoted := p
			promoted.Name = ref.String()
			outputs = append(outputs, promoted)
			inner.outputs[promoted.Name] = ref
		}
	}
	return Stage{name: b.name, inputs: inputs, outputs: outputs, inner: inner}, nil
}

func (b *Builder) sortedLeaves() []string {
	names := slices.Clone(b.order)
	slices.SortFunc(names, strings.Compare)
	return names
}
