package stage

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func noop(outputs ...string) Invoker {
	return InvokerFunc(func(_ context.Context, call Call) (Values, error) {
		out := Values{}
		for _, o := range outputs {
			out[o] = FileValue(call.Stage + "/" + o)
		}
		return out, nil
	})
}

// chain returns stages a, b, c with a single file port each: a.out -> b.in -> c.in.
func chain() (Stage, Stage, Stage) {
	a := New("a", nil, []Port{FilePort("out")}, noop("out"))
	b := New("b", []Port{FilePort("in")}, []Port{FilePort("out")}, noop("out"))
	c := New("c", []Port{FilePort("in")}, []Port{FilePort("out")}, noop("out"))
	return a, b, c
}

func wantWiring(t *testing.T, err error, kind WiringKind) *WiringError {
	t.Helper()
	if !errors.Is(err, ErrGraphWiring) {
		t.Fatalf("expected ErrGraphWiring, got %v", err)
	}
	var we *WiringError
	if !errors.As(err, &we) {
		t.Fatalf("expected *WiringError, got %T", err)
	}
	if we.Kind != kind {
		t.Fatalf("kind = %s, want %s (%v)", we.Kind, kind, err)
	}
	return we
}

func TestCompose_Chain(t *testing.T) {
	a, b, c := chain()
	g, err := NewBuilder("p").
		Add(c, b, a).
		Connect("a", "out", "b", "in").
		Connect("b", "out", "c", "in").
		Compose()
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if got := g.Order(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", got)
	}
	if got := g.Dependencies("c"); !slices.Equal(got, []string{"b"}) {
		t.Errorf("deps(c) = %v", got)
	}
	if g.Workers() != 1 {
		t.Errorf("default workers = %d", g.Workers())
	}
	if g.WithWorkers(4).Workers() != 4 || g.Workers() != 1 {
		t.Error("WithWorkers must return a copy")
	}
}

func TestCompose_RejectsCycle(t *testing.T) {
	x := New("x", []Port{FilePort("in")}, []Port{FilePort("out")}, noop("out"))
	y := New("y", []Port{FilePort("in")}, []Port{FilePort("out")}, noop("out"))

	_, err := NewBuilder("p").
		Add(x, y).
		Connect("x", "out", "y", "in").
		Connect("y", "out", "x", "in").
		Compose()
	we := wantWiring(t, err, WiringCycle)
	if len(we.Cycle) != 3 || we.Cycle[0] != we.Cycle[2] {
		t.Errorf("cycle witness = %v", we.Cycle)
	}
}

func TestCompose_RejectsUnconnectedRequiredInput(t *testing.T) {
	_, b, _ := chain()
	_, err := NewBuilder("p").Add(b).Compose()
	we := wantWiring(t, err, WiringUnconnected)
	if we.Stage != "b" || we.Port != "in" {
		t.Errorf("offending port = %s.%s", we.Stage, we.Port)
	}
}

func TestCompose_OptionalInputMayStayUnconnected(t *testing.T) {
	s := New("s", []Port{FilePort("mask").AsOptional()}, []Port{FilePort("out")}, noop("out"))
	g, err := NewBuilder("p").Add(s).Compose()
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if _, ok := g.Source("s", "mask"); ok {
		t.Error("unconnected optional input should have no source")
	}
}

func TestCompose_WiringErrors(t *testing.T) {
	a, b, _ := chain()
	scalar := New("s", []Port{ScalarPort("n")}, nil, noop())

	tests := []struct {
		name  string
		build func() *Builder
		kind  WiringKind
	}{
		{
			name:  "unknown stage",
			build: func() *Builder { return NewBuilder("p").Add(a).Connect("a", "out", "zzz", "in") },
			kind:  WiringUnknownStage,
		},
		{
			name:  "unknown port",
			build: func() *Builder { return NewBuilder("p").Add(a, b).Connect("a", "nope", "b", "in") },
			kind:  WiringUnknownPort,
		},
		{
			name:  "duplicate stage",
			build: func() *Builder { return NewBuilder("p").Add(a, a) },
			kind:  WiringDuplicateStage,
		},
		{
			name: "multiple sources",
			build: func() *Builder {
				return NewBuilder("p").Add(a, b).
					Connect("a", "out", "b", "in").
					Bind("b", "in", FileValue("/x"))
			},
			kind: WiringMultipleSource,
		},
		{
			name:  "kind mismatch on bind",
			build: func() *Builder { return NewBuilder("p").Add(scalar).Bind("s", "n", FileValue("/x")) },
			kind:  WiringKindMismatch,
		},
		{
			name: "no invoker",
			build: func() *Builder {
				return NewBuilder("p").Add(New("bare", nil, nil, nil))
			},
			kind: WiringNoInvoker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compose()
			wantWiring(t, err, tt.kind)
		})
	}
}

func TestNest_IsAssociative(t *testing.T) {
	a, b, c := chain()

	direct, err := NewBuilder("p").
		Add(a, b, c).
		Connect("a", "out", "b", "in").
		Connect("b", "out", "c", "in").
		Compose()
	if err != nil {
		t.Fatalf("direct compose: %v", err)
	}

	// (b -> c) nested, then a -> (b -> c).
	bc, err := NewBuilder("bc").
		Add(b, c).
		Connect("b", "out", "c", "in").
		Nest()
	if err != nil {
		t.Fatalf("nest: %v", err)
	}
	if _, ok := bc.Input("b.in"); !ok {
		t.Fatalf("expected promoted input b.in, got %v", bc.Inputs())
	}

	nested, err := NewBuilder("p").
		Add(a, bc).
		Connect("a", "out", "bc", "b.in").
		Compose()
	if err != nil {
		t.Fatalf("nested compose: %v", err)
	}

	if !slices.Equal(direct.Edges(), nested.Edges()) {
		t.Errorf("edge sets differ:\n direct %v\n nested %v", direct.Edges(), nested.Edges())
	}
	if !slices.Equal(direct.Order(), nested.Order()) {
		t.Errorf("orders differ: %v vs %v", direct.Order(), nested.Order())
	}
}

func TestNest_PromotesOnlyUnconnectedInputs(t *testing.T) {
	a, b, _ := chain()
	ab, err := NewBuilder("ab").Add(a, b).Connect("a", "out", "b", "in").Nest()
	if err != nil {
		t.Fatalf("nest: %v", err)
	}
	if len(ab.Inputs()) != 0 {
		t.Errorf("connected input was promoted: %v", ab.Inputs())
	}
	if _, ok := ab.Output("b.out"); !ok {
		t.Errorf("expected promoted output b.out, got %v", ab.Outputs())
	}
	if !ab.IsComposite() || len(ab.Leaves()) != 2 {
		t.Errorf("composite leaves = %d", len(ab.Leaves()))
	}
}

func TestNest_TwoLevels(t *testing.T) {
	a, b, c := chain()
	bc, err := NewBuilder("bc").Add(b, c).Connect("b", "out", "c", "in").Nest()
	if err != nil {
		t.Fatalf("nest bc: %v", err)
	}
	wrapped, err := NewBuilder("outer").Add(bc).Nest()
	if err != nil {
		t.Fatalf("nest outer: %v", err)
	}

	g, err := NewBuilder("p").Add(a, wrapped).Connect("a", "out", "outer", "b.in").Compose()
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if g.Len() != 3 {
		t.Errorf("leaf count = %d", g.Len())
	}
}

func TestWriteDOT(t *testing.T) {
	a, b, _ := chain()
	g, err := NewBuilder("preprocessing").
		Add(a, b).
		Connect("a", "out", "b", "in").
		Compose()
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	var buf bytes.Buffer
	if err := g.WriteDOT(&buf); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`digraph "preprocessing"`, `"a" -> "b" [label="out:in"]`} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q:\n%s", want, out)
		}
	}
}
