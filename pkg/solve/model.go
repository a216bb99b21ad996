package solve

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/order"
	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// Assignment is the value of one integer variable in a model. Defined
// reports whether the value is founded; in ModeCSP it always is.
type Assignment struct {
	Name    string
	Value   int
	Defined bool
}

// Model is one answer: the shown atoms and the variable values, both
// sorted by name. Variables with names starting with an underscore are
// hidden. Cost is set when the program optimizes.
type Model struct {
	Atoms       []string
	Assignments []Assignment
	Cost        *int
}

// String renders the model on one line, atoms first, then name=value
// pairs.
func (m Model) String() string {
	var b strings.Builder
	for i, a := range m.Atoms {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a)
	}
	for i, a := range m.Assignments {
		if i > 0 || len(m.Atoms) > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(a.Value))
	}
	return b.String()
}

// extract reads the model off a satisfiable core: the true shown atoms and
// the values the bound state assigns to the integer variables.
func (s *Solver) extract(sp *prepared, slv *search.Solver) (Model, error) {
	state := slv.State()
	if s.cfg.checkState {
		if err := verifyState(sp.grd.Problem, state, s.cfg.minInt, s.cfg.maxInt); err != nil {
			return Model{}, err
		}
	}

	var m Model
	st := sp.grd.Store
	for i := 2; i <= st.Len(); i++ {
		a := store.Atom(i)
		name, ok := st.Name(a)
		if !ok || !slv.IsTrue(store.Pos(a)) {
			continue
		}
		if !sp.prg.Shown(name) || hiddenDef(name) {
			continue
		}
		m.Atoms = append(m.Atoms, name.String())
	}
	sort.Strings(m.Atoms)

	if s.cfg.mode == ModeCSP {
		prob := sp.grd.Problem
		for i := 0; i < prob.NumVars(); i++ {
			v := order.Var(i)
			name := prob.Name(v)
			if strings.HasPrefix(name, "_") {
				continue
			}
			m.Assignments = append(m.Assignments, Assignment{Name: name, Value: state.Value(v), Defined: true})
		}
	} else {
		for _, vt := range sp.vars {
			name := vt.String()
			if strings.HasPrefix(name, "_") {
				continue
			}
			v, ok := sp.grd.Problem.Lookup(name)
			if !ok {
				continue
			}
			defined := false
			if da, ok := st.Lookup(theory.Fun("def", vt)); ok {
				defined = slv.IsTrue(store.Pos(da))
			}
			m.Assignments = append(m.Assignments, Assignment{Name: name, Value: state.Value(v), Defined: defined})
		}
	}
	sort.Slice(m.Assignments, func(i, j int) bool { return m.Assignments[i].Name < m.Assignments[j].Name })

	if s.cfg.checkSolution {
		if err := verifySolution(sp, slv); err != nil {
			return Model{}, err
		}
		if err := verifyNogoods(sp, slv); err != nil {
			return Model{}, err
		}
	}
	return m, nil
}

// hiddenDef suppresses definedness atoms of hidden variables, like the
// objective variable.
func hiddenDef(name theory.Term) bool {
	if !name.Match("def", 1) {
		return false
	}
	inner := name.Args[0]
	return inner.Kind != theory.Number && strings.HasPrefix(inner.Name, "_")
}

// verifySolution replays every order constraint against the model values.
func verifySolution(sp *prepared, slv *search.Solver) error {
	state := slv.State()
	eval := func(c *order.Constraint) int {
		sum := 0
		for _, t := range c.Terms {
			sum += t.Coef * state.Value(t.Var)
		}
		return sum
	}
	for _, c := range sp.grd.Problem.Constraints() {
		if slv.IsTrue(c.Lit) && eval(c) > c.RHS {
			return errors.Errorf("model violates constraint: %d > %d", eval(c), c.RHS)
		}
	}
	for _, c := range sp.grd.Problem.Ties() {
		holds := eval(c) <= c.RHS
		if slv.IsTrue(c.Lit) && !holds {
			return errors.Errorf("model violates strict constraint: %d > %d", eval(c), c.RHS)
		}
		if slv.IsFalse(c.Lit) && holds {
			return errors.Errorf("model violates strict constraint complement: %d <= %d", eval(c), c.RHS)
		}
	}
	return nil
}

// verifyState checks that the bound state assigns every variable exactly
// one in-domain value.
func verifyState(prob *order.Problem, state *order.State, min, max int) error {
	for i := 0; i < prob.NumVars(); i++ {
		v := order.Var(i)
		lo, hi := state.Bounds(v)
		if lo != hi {
			return errors.Errorf("variable %s not assigned: [%d,%d]", prob.Name(v), lo, hi)
		}
		if lo < min || lo > max {
			return errors.Errorf("variable %s outside domain: %d", prob.Name(v), lo)
		}
	}
	return nil
}
