// Package support analyzes the positive support structure of a ground
// program. Atoms that participate in a positive dependency cycle cannot be
// justified by Clark's completion alone; the analysis marks them so the
// solver runs unfounded set checks over their components. Components without
// any outside support are unsatisfiable from the start and reported as
// vicious.
package support

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
)

// node is one arena slot of the dependency graph. Edges point at arena
// indices, never at other nodes.
type node struct {
	atom  store.Atom
	edges []int32
	loop  bool
}

type graph struct {
	nodes []node
	index map[store.Atom]int32
}

func (g *graph) intern(a store.Atom) int32 {
	if i, ok := g.index[a]; ok {
		return i
	}
	i := int32(len(g.nodes))
	g.nodes = append(g.nodes, node{atom: a})
	g.index[a] = i
	return i
}

// Analysis holds the outcome of a support analysis. It answers which atoms
// head at least one rule, which are recursive, and which components can
// never be founded.
type Analysis struct {
	comp      map[store.Atom]int32
	rules     map[store.Atom][]int
	nontriv   [][]store.Atom
	recursive map[store.Atom]bool
	vicious   [][]store.Atom
}

// Analyze builds the positive dependency graph of prg and decomposes it into
// strongly connected components. Rule heads depend on the positive literals
// of their bodies; choice rules count because a chosen atom is founded by the
// body of its choice. The true atom supports everything and never enters the
// graph.
func Analyze(prg *program.Program, logger *logrus.Logger) *Analysis {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	a := &Analysis{
		comp:      map[store.Atom]int32{},
		rules:     map[store.Atom][]int{},
		recursive: map[store.Atom]bool{},
	}
	g := &graph{index: map[store.Atom]int32{}}

	for i, r := range prg.Rules {
		for _, h := range r.Head {
			a.rules[h] = append(a.rules[h], i)
			g.intern(h)
		}
	}
	for _, r := range prg.Rules {
		for _, h := range r.Head {
			hi := g.index[h]
			for _, l := range r.Body {
				if !l.Positive() || l.Atom() == store.TrueAtom {
					continue
				}
				bi, ok := g.index[l.Atom()]
				if !ok {
					// atoms without rules cannot take part in a cycle
					continue
				}
				if bi == hi {
					g.nodes[hi].loop = true
				}
				g.nodes[hi].edges = append(g.nodes[hi].edges, bi)
			}
		}
	}

	comps := decompose(g)
	for id, members := range comps {
		for _, v := range members {
			a.comp[g.nodes[v].atom] = int32(id)
		}
		if len(members) == 1 && !g.nodes[members[0]].loop {
			continue
		}
		atoms := make([]store.Atom, len(members))
		for i, v := range members {
			atoms[i] = g.nodes[v].atom
			a.recursive[g.nodes[v].atom] = true
		}
		a.nontriv = append(a.nontriv, atoms)
		if !a.founded(prg, atoms) {
			a.vicious = append(a.vicious, atoms)
			logger.WithFields(logrus.Fields{
				"atoms": atomNames(prg.Store, atoms),
			}).Warn("support cycle without outside support; atoms can never be founded")
		}
	}

	logger.WithFields(logrus.Fields{
		"atoms":      len(g.nodes),
		"components": len(comps),
		"recursive":  len(a.recursive),
		"vicious":    len(a.vicious),
	}).Debug("support analysis complete")
	return a
}

// founded reports whether any member of the component has a rule whose
// positive body lies entirely outside the component.
func (a *Analysis) founded(prg *program.Program, members []store.Atom) bool {
	id := a.comp[members[0]]
	for _, m := range members {
		for _, ri := range a.rules[m] {
			if a.external(prg.Rules[ri], id) {
				return true
			}
		}
	}
	return false
}

func (a *Analysis) external(r program.Rule, id int32) bool {
	for _, l := range r.Body {
		if !l.Positive() {
			continue
		}
		if c, ok := a.comp[l.Atom()]; ok && c == id {
			return false
		}
	}
	return true
}

// Defined reports whether at heads at least one rule.
func (a *Analysis) Defined(at store.Atom) bool {
	return len(a.rules[at]) > 0
}

// Rules returns the indices of the rules headed by at.
func (a *Analysis) Rules(at store.Atom) []int {
	return a.rules[at]
}

// Recursive reports whether at belongs to a nontrivial component.
func (a *Analysis) Recursive(at store.Atom) bool {
	return a.recursive[at]
}

// SameComponent reports whether two atoms belong to the same component.
func (a *Analysis) SameComponent(x, y store.Atom) bool {
	cx, ok := a.comp[x]
	if !ok {
		return false
	}
	cy, ok := a.comp[y]
	return ok && cx == cy
}

// Components returns the nontrivial components.
func (a *Analysis) Components() [][]store.Atom {
	return a.nontriv
}

// Vicious returns the components that no rule can found. Their atoms are
// false in every model.
func (a *Analysis) Vicious() [][]store.Atom {
	return a.vicious
}

func atomNames(st *store.Store, atoms []store.Atom) []string {
	names := make([]string, len(atoms))
	for i, at := range atoms {
		if t, ok := st.Name(at); ok {
			names[i] = t.String()
		} else {
			names[i] = "__aux"
		}
	}
	return names
}

// frame is one step of the iterative depth-first search.
type frame struct {
	v    int32
	edge int
}

type tarjan struct {
	g       *graph
	index   []int32
	lowlink []int32
	onStack []bool
	stack   []int32
	frames  []frame
	next    int32
	comps   [][]int32
}

// decompose runs Tarjan's algorithm over the arena. The walk is iterative so
// deep rule chains cannot exhaust the goroutine stack.
func decompose(g *graph) [][]int32 {
	t := &tarjan{
		g:       g,
		index:   make([]int32, len(g.nodes)),
		lowlink: make([]int32, len(g.nodes)),
		onStack: make([]bool, len(g.nodes)),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	for v := range g.nodes {
		if t.index[v] == -1 {
			t.walk(int32(v))
		}
	}
	return t.comps
}

func (t *tarjan) visit(v int32) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true
}

func (t *tarjan) walk(root int32) {
	t.visit(root)
	t.frames = append(t.frames[:0], frame{v: root})
	for len(t.frames) > 0 {
		f := &t.frames[len(t.frames)-1]
		descended := false
		for f.edge < len(t.g.nodes[f.v].edges) {
			w := t.g.nodes[f.v].edges[f.edge]
			f.edge++
			if t.index[w] == -1 {
				t.visit(w)
				t.frames = append(t.frames, frame{v: w})
				descended = true
				break
			}
			if t.onStack[w] && t.index[w] < t.lowlink[f.v] {
				t.lowlink[f.v] = t.index[w]
			}
		}
		if descended {
			continue
		}

		v := f.v
		if t.lowlink[v] == t.index[v] {
			var comp []int32
			for {
				w := t.stack[len(t.stack)-1]
				t.stack = t.stack[:len(t.stack)-1]
				t.onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			t.comps = append(t.comps, comp)
		}
		t.frames = t.frames[:len(t.frames)-1]
		if len(t.frames) > 0 {
			p := &t.frames[len(t.frames)-1]
			if t.lowlink[v] < t.lowlink[p.v] {
				t.lowlink[p.v] = t.lowlink[v]
			}
		}
	}
}
