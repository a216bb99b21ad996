// Package order propagates bounds of integer variables over order
// literals. An order literal stands for an upper bound "v <= value" on a
// variable; literals are created lazily while linear constraints tighten
// the bounds. The solver drives a State through the Control interface and
// restores bounds on backjumps with UndoTo.
package order

import (
	"sort"

	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// Var identifies an integer variable of a Problem.
type Var int32

// LinearTerm is a coefficient applied to a variable.
type LinearTerm struct {
	Coef int
	Var  Var
}

// Constraint requires co_1*v_1 + ... + co_n*v_n <= RHS to hold whenever Lit
// does. A strict constraint has exactly one term and is enforced in both
// directions by identifying Lit with the corresponding order literal.
type Constraint struct {
	Lit    store.Lit
	Terms  []LinearTerm
	RHS    int
	Strict bool
}

// Problem collects the integer variables and linear constraints of a solve
// step. It is immutable during search and shared by all solver states.
type Problem struct {
	names []string
	index map[string]Var
	cons  []*Constraint
	ties  []*Constraint
	l2c   map[store.Lit][]*Constraint
	vl2c  map[Var][]*Constraint
	vu2c  map[Var][]*Constraint
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{
		index: map[string]Var{},
		l2c:   map[store.Lit][]*Constraint{},
		vl2c:  map[Var][]*Constraint{},
		vu2c:  map[Var][]*Constraint{},
	}
}

// Var interns the named integer variable.
func (p *Problem) Var(name string) Var {
	if v, ok := p.index[name]; ok {
		return v
	}
	v := Var(len(p.names))
	p.index[name] = v
	p.names = append(p.names, name)
	return v
}

// Lookup returns the variable for name if it has been interned.
func (p *Problem) Lookup(name string) (Var, bool) {
	v, ok := p.index[name]
	return v, ok
}

// Name returns the name of v.
func (p *Problem) Name(v Var) string {
	return p.names[v]
}

// NumVars returns the number of interned variables.
func (p *Problem) NumVars() int {
	return len(p.names)
}

// Add registers a constraint. Constraints with a positive coefficient on a
// variable are reconsidered when its lower bound rises, those with a
// negative coefficient when its upper bound falls. Strict constraints are
// kept aside and turned into order literals by State.Init.
func (p *Problem) Add(c *Constraint) {
	if c.Strict {
		p.ties = append(p.ties, c)
		return
	}
	p.cons = append(p.cons, c)
	p.l2c[c.Lit] = append(p.l2c[c.Lit], c)
	for _, t := range c.Terms {
		if t.Coef > 0 {
			p.vl2c[t.Var] = append(p.vl2c[t.Var], c)
		} else {
			p.vu2c[t.Var] = append(p.vu2c[t.Var], c)
		}
	}
}

// Constraints returns the non-strict constraints.
func (p *Problem) Constraints() []*Constraint {
	return p.cons
}

// Ties returns the strict constraints awaiting State.Init.
func (p *Problem) Ties() []*Constraint {
	return p.ties
}

// Control is the solver surface a State drives. AddClause reports false
// when the clause conflicts under the current assignment, Propagate reports
// false when boolean propagation derives a conflict. Level must only be
// queried for assigned literals.
type Control interface {
	AddLiteral() store.Lit
	AddClause(clause []store.Lit, lock bool) bool
	Propagate() bool
	IsTrue(l store.Lit) bool
	IsFalse(l store.Lit) bool
	Level(l store.Lit) int
	DecisionLevel() int
}

type litEntry struct {
	value int
	lit   store.Lit
}

// litSeq maps values to order literals, sorted by value.
type litSeq struct {
	entries []litEntry
}

func (s *litSeq) search(value int) int {
	return sort.Search(len(s.entries), func(i int) bool { return s.entries[i].value >= value })
}

func (s *litSeq) get(value int) (store.Lit, bool) {
	i := s.search(value)
	if i < len(s.entries) && s.entries[i].value == value {
		return s.entries[i].lit, true
	}
	return 0, false
}

func (s *litSeq) set(value int, lit store.Lit) {
	i := s.search(value)
	if i < len(s.entries) && s.entries[i].value == value {
		s.entries[i].lit = lit
		return
	}
	s.entries = append(s.entries, litEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = litEntry{value: value, lit: lit}
}

// prev returns the greatest entry strictly below value.
func (s *litSeq) prev(value int) (int, bool) {
	i := s.search(value)
	if i == 0 {
		return 0, false
	}
	return s.entries[i-1].value, true
}

// succ returns the smallest entry strictly above value.
func (s *litSeq) succ(value int) (int, bool) {
	i := s.search(value + 1)
	if i == len(s.entries) {
		return 0, false
	}
	return s.entries[i].value, true
}

// varState tracks the bounds of one variable. Bounds are stacks with one
// entry per decision level that changed them; markLower and markUpper hold
// the level a bound was last pushed at so each level pushes at most once.
type varState struct {
	lower     []int
	upper     []int
	lits      litSeq
	markLower int
	markUpper int
}

func newVarState(min, max int) *varState {
	return &varState{
		lower:     []int{min},
		upper:     []int{max},
		markLower: -1,
		markUpper: -1,
	}
}

func (vs *varState) lowerBound() int { return vs.lower[len(vs.lower)-1] }
func (vs *varState) upperBound() int { return vs.upper[len(vs.upper)-1] }
func (vs *varState) setLower(v int)  { vs.lower[len(vs.lower)-1] = v }
func (vs *varState) setUpper(v int)  { vs.upper[len(vs.upper)-1] = v }
func (vs *varState) pushLower()      { vs.lower = append(vs.lower, vs.lowerBound()) }
func (vs *varState) pushUpper()      { vs.upper = append(vs.upper, vs.upperBound()) }
func (vs *varState) popLower()       { vs.lower = vs.lower[:len(vs.lower)-1] }
func (vs *varState) popUpper()       { vs.upper = vs.upper[:len(vs.upper)-1] }
func (vs *varState) assigned() bool  { return vs.lowerBound() == vs.upperBound() }

type undoLevel struct {
	level     int
	undoLower []Var
	undoUpper []Var
}

type mapEntry struct {
	v     Var
	value int
}

type truth uint8

const (
	truthOpen truth = iota
	truthTrue
	truthFalse
)

// State is the per-solver propagation state: variable bounds, the lazily
// created order literals, and the queue of constraints to reconsider.
type State struct {
	prob      *Problem
	min, max  int
	vars      []*varState
	litmap    map[store.Lit][]mapEntry
	levels    []undoLevel
	todo      []*Constraint
	inTodo    map[*Constraint]bool
	facts     [][2]int
	orderLits int
}

// NewState returns a fresh state over prob with variable domains
// [min, max].
func NewState(prob *Problem, min, max int) *State {
	s := &State{
		prob:   prob,
		min:    min,
		max:    max,
		litmap: map[store.Lit][]mapEntry{},
		levels: []undoLevel{{level: 0}},
		inTodo: map[*Constraint]bool{},
		facts:  [][2]int{{0, 0}},
	}
	for range prob.names {
		s.vars = append(s.vars, newVarState(min, max))
	}
	return s
}

// Init identifies the literals of strict constraints with order literals
// and queues all constraints for the first Check.
func (s *State) Init(ctl Control) bool {
	for _, c := range s.prob.ties {
		if !s.tie(ctl, c) {
			return false
		}
	}
	s.queue(s.prob.cons)
	return true
}

// tie makes c.Lit equivalent to the order literal of its single term.
func (s *State) tie(ctl Control, c *Constraint) bool {
	t := c.Terms[0]
	lit := c.Lit
	var value int
	if t.Coef > 0 {
		// co*v <= rhs iff v <= floor(rhs/co)
		value = theory.FloorDiv(c.RHS, t.Coef)
	} else {
		// co*v <= rhs iff v >= ceil(rhs/co), the negated order literal
		value = -theory.FloorDiv(c.RHS, -t.Coef) - 1
		lit = lit.Neg()
	}
	if value < s.min {
		return ctl.AddClause([]store.Lit{lit.Neg()}, true)
	}
	if value >= s.max {
		return ctl.AddClause([]store.Lit{lit}, true)
	}
	vs := s.vars[t.Var]
	if old, ok := vs.lits.get(value); ok {
		if old == lit {
			return true
		}
		return ctl.AddClause([]store.Lit{lit.Neg(), old}, true) &&
			ctl.AddClause([]store.Lit{old.Neg(), lit}, true)
	}
	vs.lits.set(value, lit)
	s.litmap[lit] = append(s.litmap[lit], mapEntry{v: t.Var, value: value})
	return true
}

func (s *State) getLiteral(ctl Control, v Var, value int) store.Lit {
	if value < s.min {
		return store.TrueLit.Neg()
	}
	if value >= s.max {
		return store.TrueLit
	}
	vs := s.vars[v]
	if lit, ok := vs.lits.get(value); ok {
		return lit
	}
	lit := ctl.AddLiteral()
	vs.lits.set(value, lit)
	s.litmap[lit] = append(s.litmap[lit], mapEntry{v: v, value: value})
	s.orderLits++
	return lit
}

// updateLiteral returns the literal for value, fixing the slot to a truth
// constant when the bound is entailed at the top level. A replaced literal
// is returned so the caller can assert it with a unit clause.
func (s *State) updateLiteral(ctl Control, v Var, value int, t truth) (store.Lit, store.Lit) {
	if value < s.min || value >= s.max || t == truthOpen {
		return 0, s.getLiteral(ctl, v, value)
	}
	lit := store.TrueLit
	if t == truthFalse {
		lit = store.TrueLit.Neg()
	}
	vs := s.vars[v]
	cur, ok := vs.lits.get(value)
	if !ok {
		vs.lits.set(value, lit)
		s.litmap[lit] = append(s.litmap[lit], mapEntry{v: v, value: value})
		return 0, lit
	}
	if cur == lit {
		return 0, lit
	}
	vs.lits.set(value, lit)
	s.removeEntry(cur, v, value)
	s.litmap[lit] = append(s.litmap[lit], mapEntry{v: v, value: value})
	return cur, lit
}

func (s *State) removeEntry(lit store.Lit, v Var, value int) {
	vec := s.litmap[lit]
	for i, e := range vec {
		if e.v == v && e.value == value {
			s.litmap[lit] = append(vec[:i], vec[i+1:]...)
			break
		}
	}
	if len(s.litmap[lit]) == 0 {
		delete(s.litmap, lit)
	}
}

func (s *State) topLevel() *undoLevel {
	return &s.levels[len(s.levels)-1]
}

func (s *State) pushLevel(level int) {
	if s.topLevel().level < level {
		s.levels = append(s.levels, undoLevel{level: level})
	}
}

func (s *State) boundLower(v Var, value int) {
	vs := s.vars[v]
	lvl := s.topLevel()
	if vs.markLower != lvl.level {
		vs.markLower = lvl.level
		lvl.undoLower = append(lvl.undoLower, v)
		vs.pushLower()
	}
	vs.setLower(value)
}

func (s *State) boundUpper(v Var, value int) {
	vs := s.vars[v]
	lvl := s.topLevel()
	if vs.markUpper != lvl.level {
		vs.markUpper = lvl.level
		lvl.undoUpper = append(lvl.undoUpper, v)
		vs.pushUpper()
	}
	vs.setUpper(value)
}

func (s *State) queue(cons []*Constraint) {
	for _, c := range cons {
		if !s.inTodo[c] {
			s.inTodo[c] = true
			s.todo = append(s.todo, c)
		}
	}
}

func (s *State) clearTodo() {
	s.todo = s.todo[:0]
	for c := range s.inTodo {
		delete(s.inTodo, c)
	}
}

// Propagate integrates the bound updates implied by the newly assigned
// literals and queues the constraints they affect.
func (s *State) Propagate(ctl Control, changes []store.Lit) bool {
	s.pushLevel(ctl.DecisionLevel())
	for _, lit := range changes {
		s.queue(s.prob.l2c[lit])
		if !s.updateDomain(ctl, lit) {
			return false
		}
	}
	return true
}

// updateDomain tightens bounds from the order literals mapped to lit, which
// must be true. The succeeding order literal of a new upper bound is made
// true, the preceding literal of a new lower bound false. For the true
// literal only facts not integrated on the current level are visited.
func (s *State) updateDomain(ctl Control, lit store.Lit) bool {
	for _, e := range s.snapshot(lit, 0) {
		vs := s.vars[e.v]
		if vs.upperBound() > e.value {
			s.boundUpper(e.v, e.value)
			s.queue(s.prob.vu2c[e.v])
		}
		if succ, ok := vs.lits.succ(e.value); ok {
			if !s.propagateVariable(ctl, e.v, succ, lit, 1) {
				return false
			}
		}
	}
	for _, e := range s.snapshot(lit.Neg(), 1) {
		vs := s.vars[e.v]
		if vs.lowerBound() < e.value+1 {
			s.boundLower(e.v, e.value+1)
			s.queue(s.prob.vl2c[e.v])
		}
		if prev, ok := vs.lits.prev(e.value); ok {
			if !s.propagateVariable(ctl, e.v, prev, lit, -1) {
				return false
			}
		}
	}
	return true
}

// snapshot copies the litmap entries to visit for key. Entries may be added
// or replaced while they are processed; additions are picked up by the next
// Check round.
func (s *State) snapshot(key store.Lit, side int) []mapEntry {
	src := s.litmap[key]
	start := 0
	if key == store.TrueLit || key == store.TrueLit.Neg() {
		start = s.facts[len(s.facts)-1][side]
	}
	if start >= len(src) {
		return nil
	}
	out := make([]mapEntry, len(src)-start)
	copy(out, src[start:])
	return out
}

// propagateVariable asserts the order literal at value as a consequence of
// lit, which must be true. A positive sign asserts the literal, a negative
// sign its negation. Literals implied by facts are replaced with constants.
func (s *State) propagateVariable(ctl Control, v Var, value int, lit store.Lit, sign int) bool {
	l := s.getLiteral(ctl, v, value)
	if sign < 0 {
		l = l.Neg()
	}

	if ctl.Level(lit) == 0 && (ctl.IsTrue(l) || ctl.IsFalse(l)) && ctl.Level(l) > 0 {
		t := truthTrue
		if sign < 0 {
			t = truthFalse
		}
		old, nl := s.updateLiteral(ctl, v, value, t)
		if sign < 0 {
			old, nl = old.Neg(), nl.Neg()
		}
		if old != 0 && !ctl.AddClause([]store.Lit{old}, true) {
			return false
		}
		l = nl
	}

	if !ctl.IsTrue(l) && !ctl.AddClause([]store.Lit{lit.Neg(), l}, false) {
		return false
	}
	return true
}

// propagateConstraint tightens bounds for a constraint whose literal became
// true. The slack is measured against the bound literals of all variables;
// each propagated bound is justified by a clause over those literals.
func (s *State) propagateConstraint(ctl Control, c *Constraint) bool {
	l := c.Lit

	slack := c.RHS
	lbs := make([]store.Lit, 0, len(c.Terms)+1)
	numGuess := 0
	for _, t := range c.Terms {
		vs := s.vars[t.Var]
		var lit store.Lit
		if t.Coef > 0 {
			slack -= t.Coef * vs.lowerBound()
			// literals below the lower bound are false
			lit = s.getLiteral(ctl, t.Var, vs.lowerBound()-1)
		} else {
			slack -= t.Coef * vs.upperBound()
			// literals at or above the upper bound are true
			lit = s.getLiteral(ctl, t.Var, vs.upperBound()).Neg()
		}
		if ctl.Level(lit) > 0 {
			numGuess++
		}
		lbs = append(lbs, lit)
	}
	if ctl.IsTrue(l) && ctl.Level(l) > 0 {
		numGuess++
	}
	lbs = append(lbs, l.Neg())

	// handles empty constraints and propagates violated ones
	if slack < 0 {
		if !ctl.AddClause(lbs, false) || !ctl.Propagate() {
			return false
		}
	}

	if !ctl.IsTrue(l) {
		return true
	}

	for i, t := range c.Terms {
		vs := s.vars[t.Var]

		adjust := 0
		if ctl.Level(lbs[i]) > 0 {
			adjust = 1
		}

		// when every contributing literal is a top-level fact the new
		// bound is one as well and its slot becomes a truth constant
		var implied store.Lit
		if t.Coef > 0 {
			tr := truthOpen
			if numGuess == adjust {
				tr = truthTrue
			}
			diff := slack + t.Coef*vs.lowerBound()
			value := theory.FloorDiv(diff, t.Coef)
			old, lit := s.updateLiteral(ctl, t.Var, value, tr)
			if old != 0 && !ctl.AddClause([]store.Lit{old}, true) {
				return false
			}
			implied = lit
		} else {
			tr := truthFalse
			if numGuess > adjust {
				tr = truthOpen
			}
			diff := slack + t.Coef*vs.upperBound()
			value := -theory.FloorDiv(diff, -t.Coef)
			old, lit := s.updateLiteral(ctl, t.Var, value-1, tr)
			if old != 0 && !ctl.AddClause([]store.Lit{old.Neg()}, true) {
				return false
			}
			implied = lit.Neg()
		}

		if !ctl.IsTrue(implied) {
			save := lbs[i]
			lbs[i] = implied
			ok := ctl.AddClause(lbs, false) && ctl.Propagate()
			lbs[i] = save
			if !ok {
				return false
			}
		}
	}
	return true
}

// Check integrates pending facts and propagates every queued constraint.
// It loops because constraint propagation can produce new facts whose
// watches never fire again.
func (s *State) Check(ctl Control) bool {
	dl := ctl.DecisionLevel()
	for len(s.facts) <= dl {
		s.facts = append(s.facts, s.facts[len(s.facts)-1])
	}
	s.facts = s.facts[:dl+1]

	for {
		if !s.updateDomain(ctl, store.TrueLit) {
			return false
		}
		nt := len(s.litmap[store.TrueLit])
		nf := len(s.litmap[store.TrueLit.Neg()])
		s.facts[len(s.facts)-1] = [2]int{nt, nf}

		for i := 0; i < len(s.todo); i++ {
			c := s.todo[i]
			// release the queue mark so later bound changes requeue it
			delete(s.inTodo, c)
			if ctl.IsFalse(c.Lit) {
				continue
			}
			if !s.propagateConstraint(ctl, c) {
				s.clearTodo()
				return false
			}
		}
		s.clearTodo()

		if nt == len(s.litmap[store.TrueLit]) && nf == len(s.litmap[store.TrueLit.Neg()]) {
			return true
		}
	}
}

// CheckFull reports whether every variable is assigned. If not, it
// introduces the order literal at the midpoint of the first open variable
// so the solver splits its domain.
func (s *State) CheckFull(ctl Control) bool {
	for v, vs := range s.vars {
		if !vs.assigned() {
			s.getLiteral(ctl, Var(v), lerp(vs.lowerBound(), vs.upperBound()))
			return false
		}
	}
	return true
}

func lerp(x, y int) int {
	return x + (y-x)/2
}

// UndoTo pops all bound changes recorded above the given decision level.
func (s *State) UndoTo(level int) {
	for len(s.levels) > 1 && s.topLevel().level > level {
		lvl := s.topLevel()
		for _, v := range lvl.undoLower {
			vs := s.vars[v]
			vs.popLower()
			vs.markLower = -1
		}
		for _, v := range lvl.undoUpper {
			vs := s.vars[v]
			vs.popUpper()
			vs.markUpper = -1
		}
		s.levels = s.levels[:len(s.levels)-1]
	}
}

// Value returns the current value of v, its lower bound.
func (s *State) Value(v Var) int {
	return s.vars[v].lowerBound()
}

// Literal returns the order literal asserting v <= value, creating it
// through ctl on first use. Values outside the domain yield truth
// constants.
func (s *State) Literal(ctl Control, v Var, value int) store.Lit {
	return s.getLiteral(ctl, v, value)
}

// Bounds returns the current bounds of v.
func (s *State) Bounds(v Var) (int, int) {
	vs := s.vars[v]
	return vs.lowerBound(), vs.upperBound()
}

// OrderLiterals returns the number of order literals created so far.
func (s *State) OrderLiterals() int {
	return s.orderLits
}
