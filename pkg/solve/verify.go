package solve

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/store"
)

// litDict translates store literals onto the variables of an independent
// SAT solver used to replay the completion nogoods.
type litDict struct {
	g    *gini.Gini
	lits []z.Lit
}

func newLitDict(st *store.Store) *litDict {
	d := &litDict{
		g:    gini.New(),
		lits: make([]z.Lit, st.Len()),
	}
	for i := range d.lits {
		d.lits[i] = d.g.Lit()
	}
	return d
}

// litOf returns the solver literal for l. Atoms are dense, so the lookup is
// positional.
func (d *litDict) litOf(l store.Lit) z.Lit {
	m := d.lits[int(l.Atom())-1]
	if !l.Positive() {
		return m.Not()
	}
	return m
}

// addNogood teaches the solver the clause forbidding the joint assignment.
func (d *litDict) addNogood(ng []store.Lit) {
	for _, l := range ng {
		d.g.Add(d.litOf(l).Not())
	}
	d.g.Add(z.LitNull)
}

// verifyNogoods replays the assembled nogoods through a fresh SAT solver
// with every assigned atom of the model held at its value. The model is
// valid only if the replay is satisfiable.
func verifyNogoods(sp *prepared, slv *search.Solver) error {
	st := sp.grd.Store
	d := newLitDict(st)
	d.g.Add(d.litOf(store.TrueLit))
	d.g.Add(z.LitNull)
	for _, ng := range sp.grd.Nogoods {
		d.addNogood(ng)
	}

	assumptions := make([]z.Lit, 0, st.Len())
	for i := 1; i <= st.Len(); i++ {
		l := store.Pos(store.Atom(i))
		switch {
		case slv.IsTrue(l):
			assumptions = append(assumptions, d.litOf(l))
		case slv.IsFalse(l):
			assumptions = append(assumptions, d.litOf(l).Not())
		}
	}
	d.g.Assume(assumptions...)
	if d.g.Solve() != 1 {
		return errors.New("model violates a completion nogood")
	}
	return nil
}
