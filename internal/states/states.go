// Package states loads the workflow state graph of each resource kind.
//
// The graphs are declared in an embedded CUE document so that the schema
// (state label format, non-empty edge labels, known kinds) is enforced by
// CUE itself. Load additionally checks that every edge and the initial
// state refer to declared states.
package states

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/hyperdash/internal/cursor"
)

//go:embed flows.cue
var flowsCUE []byte

// Edge is a labelled transition between two states.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// Graph is the state machine of one resource kind.
type Graph struct {
	Kind    cursor.Kind `json:"kind"`
	Initial string      `json:"initial"`
	States  []string    `json:"states"`
	Edges   []Edge      `json:"edges"`

	known map[string]bool
}

// Known reports whether label names a state of g.
func (g *Graph) Known(label string) bool {
	return g.known[label]
}

// String renders the graph as one transition per line.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (initial %s)\n", g.Kind, g.Initial)
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %s --%s--> %s\n", e.From, e.Label, e.To)
	}
	return b.String()
}

// Catalog holds the graph of every kind.
type Catalog struct {
	graphs map[cursor.Kind]*Graph
}

// Known reports whether label is a state of kind k. Unknown kinds know no
// states.
func (c *Catalog) Known(k cursor.Kind, label string) bool {
	g, ok := c.graphs[k]
	if !ok {
		return false
	}
	return g.Known(label)
}

// Graph returns the graph of kind k.
func (c *Catalog) Graph(k cursor.Kind) (*Graph, bool) {
	g, ok := c.graphs[k]
	return g, ok
}

// Kinds returns the kinds with a graph, sorted.
func (c *Catalog) Kinds() []cursor.Kind {
	kinds := make([]cursor.Kind, 0, len(c.graphs))
	for k := range c.graphs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Load compiles the embedded state graphs.
func Load() (*Catalog, error) {
	return Parse(flowsCUE)
}

// MustLoad is like Load but panics on error. The embedded document is
// covered by tests, so this only fails on a broken build.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse compiles a CUE document declaring a top-level flows struct.
func Parse(src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename("flows.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	flowsVal := v.LookupPath(cue.ParsePath("flows"))
	if !flowsVal.Exists() {
		return nil, fmt.Errorf("flows: not declared")
	}

	var raw map[string]Graph
	if err := flowsVal.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{graphs: make(map[cursor.Kind]*Graph, len(raw))}
	for name, g := range raw {
		g := g
		g.Kind = cursor.Kind(name)
		if err := g.index(); err != nil {
			return nil, fmt.Errorf("flows.%s: %w", name, err)
		}
		c.graphs[g.Kind] = &g
	}
	return c, nil
}

func (g *Graph) index() error {
	g.known = make(map[string]bool, len(g.States))
	for _, s := range g.States {
		if g.known[s] {
			return fmt.Errorf("duplicate state %s", s)
		}
		g.known[s] = true
	}
	if !g.known[g.Initial] {
		return fmt.Errorf("initial state %s is not declared", g.Initial)
	}
	for i, e := range g.Edges {
		if !g.known[e.From] {
			return fmt.Errorf("edges[%d]: unknown state %s", i, e.From)
		}
		if !g.known[e.To] {
			return fmt.Errorf("edges[%d]: unknown state %s", i, e.To)
		}
	}
	return nil
}

// formatCUEError flattens a CUE error list into one error with positions.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Error()
		if pos := e.Position(); pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), msg)
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid state graphs: %s", strings.Join(msgs, "; "))
}
