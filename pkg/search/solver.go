// Package search implements the conflict-driven nogood learning core. The
// solver propagates completion nogoods and order constraints to a common
// fixpoint, checks recursive atoms for unfounded support, learns a first-UIP
// nogood from every conflict, and restarts on the Luby sequence. Integer
// bounds live in an order.State the solver drives through the Control
// interface it implements itself.
package search

import (
	"context"
	"io"
	"math/bits"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/assemble"
	"github.com/wanko/clingo/pkg/order"
	"github.com/wanko/clingo/pkg/store"
)

// Status is the outcome of a solve call.
type Status uint8

const (
	// Unknown means the search has not finished.
	Unknown Status = iota
	// Satisfiable means the assignment forms a model.
	Satisfiable
	// Unsatisfiable means no model exists under the given assumptions.
	Unsatisfiable
	// Interrupted means the context was canceled before a result.
	Interrupted
)

// String returns the conventional answer set solver wording.
func (s Status) String() string {
	switch s {
	case Satisfiable:
		return "SATISFIABLE"
	case Unsatisfiable:
		return "UNSATISFIABLE"
	case Interrupted:
		return "INTERRUPTED"
	}
	return "UNKNOWN"
}

// Config tunes a solver.
type Config struct {
	// MinInt and MaxInt bound the integer variable domains.
	MinInt int
	MaxInt int
	// LubyBase scales the restart sequence. Zero means 64.
	LubyBase int
	// Seed perturbs the initial decision order. Zero keeps the plain
	// atom order.
	Seed int64
}

// Stats counts search work.
type Stats struct {
	Conflicts    uint64
	Decisions    uint64
	Restarts     uint64
	Propagations uint64
	Learnt       uint64
}

// Solver is a single search engine over an assembled program. It is not safe
// for concurrent use; portfolio solving runs one Solver per goroutine.
type Solver struct {
	logger *logrus.Logger
	cfg    Config

	atoms    int
	assigned int
	val      []int8
	level    []int32
	reason   []*nogood
	phase    []bool
	seen     []bool

	trail    []store.Lit
	limits   []int
	qhead    int
	orderFed int

	watches [][]*nogood
	pending *nogood
	unsat   bool

	act    []float64
	varInc float64
	heap   []store.Atom
	hpos   []int32

	state    *order.State
	support  map[store.Atom][]assemble.SupportRule
	recAtoms []store.Atom

	rootLevel int
	restarts  uint64
	quota     int

	stats Stats
}

// New prepares a solver for the assembled program. A top level conflict in
// the input is remembered and reported by the first Solve call.
func New(g *assemble.Ground, cfg Config, logger *logrus.Logger) *Solver {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg.LubyBase == 0 {
		cfg.LubyBase = 64
	}

	s := &Solver{
		logger:  logger,
		cfg:     cfg,
		varInc:  1,
		support: g.Support,
		quota:   cfg.LubyBase,
	}
	s.grow(g.Store.Len())
	if cfg.Seed != 0 {
		rng := rand.New(rand.NewSource(cfg.Seed))
		for a := 2; a <= s.atoms; a++ {
			s.act[a] = rng.Float64() * 0.001
			s.heapBump(store.Atom(a))
		}
	}
	for a := range g.Support {
		s.recAtoms = append(s.recAtoms, a)
	}
	sort.Slice(s.recAtoms, func(i, j int) bool { return s.recAtoms[i] < s.recAtoms[j] })

	s.enqueue(store.TrueLit, nil)
	for _, ng := range g.Nogoods {
		s.addBase(ng)
	}

	s.state = order.NewState(g.Problem, cfg.MinInt, cfg.MaxInt)
	if !s.unsat && !s.state.Init(s) {
		s.pending = nil
		s.unsat = true
	}

	logger.WithFields(logrus.Fields{
		"atoms":     s.atoms,
		"nogoods":   len(g.Nogoods),
		"recursive": len(s.recAtoms),
	}).Debug("solver initialized")
	return s
}

// grow extends the per-atom arrays up to atom id n and feeds new atoms to
// the decision heap.
func (s *Solver) grow(n int) {
	for len(s.val) <= n {
		s.val = append(s.val, 0)
		s.level = append(s.level, 0)
		s.reason = append(s.reason, nil)
		s.phase = append(s.phase, false)
		s.seen = append(s.seen, false)
		s.act = append(s.act, 0)
		s.hpos = append(s.hpos, 0)
		s.watches = append(s.watches, nil, nil)
	}
	for a := s.atoms + 1; a <= n; a++ {
		s.heapPush(store.Atom(a))
	}
	if n > s.atoms {
		s.atoms = n
	}
}

func (s *Solver) newAtom() store.Atom {
	a := store.Atom(s.atoms + 1)
	s.grow(s.atoms + 1)
	return a
}

// AddLiteral allocates a fresh solver literal.
func (s *Solver) AddLiteral() store.Lit {
	return store.Pos(s.newAtom())
}

// AddClause integrates a clause under the current assignment. It reports
// false when the clause is violated; the conflict is picked up by the search
// loop.
func (s *Solver) AddClause(clause []store.Lit, lock bool) bool {
	_ = lock // every clause is kept
	var lits []store.Lit
	for _, l := range clause {
		n := l.Neg()
		if lv := s.level[n.Atom()]; lv == 0 {
			if s.IsFalse(n) {
				// satisfied on the top level
				return true
			}
			if s.IsTrue(n) {
				continue
			}
		}
		lits = append(lits, n)
	}
	return s.integrate(lits)
}

// Propagate runs unit propagation and feeds newly assigned literals to the
// bound state until both are at fixpoint.
func (s *Solver) Propagate() bool {
	for {
		if ng := s.propagate(); ng != nil {
			s.pending = ng
			return false
		}
		if s.orderFed == len(s.trail) {
			return true
		}
		changes := s.trail[s.orderFed:]
		s.orderFed = len(s.trail)
		if !s.state.Propagate(s, changes) {
			return false
		}
	}
}

// IsTrue reports whether l holds under the current assignment.
func (s *Solver) IsTrue(l store.Lit) bool {
	v := s.val[l.Atom()]
	return v != 0 && (v > 0) == (l > 0)
}

// IsFalse reports whether the complement of l holds.
func (s *Solver) IsFalse(l store.Lit) bool {
	v := s.val[l.Atom()]
	return v != 0 && (v > 0) != (l > 0)
}

// Level returns the decision level l was assigned at.
func (s *Solver) Level(l store.Lit) int {
	return int(s.level[l.Atom()])
}

// DecisionLevel returns the current decision level.
func (s *Solver) DecisionLevel() int {
	return len(s.limits)
}

// State exposes the integer bounds of the current assignment.
func (s *Solver) State() *order.State {
	return s.state
}

// Stats returns the accumulated counters.
func (s *Solver) Stats() Stats {
	st := s.stats
	st.Restarts = s.restarts
	return st
}

func (s *Solver) enqueue(l store.Lit, reason *nogood) {
	a := l.Atom()
	if l > 0 {
		s.val[a] = 1
	} else {
		s.val[a] = -1
	}
	s.level[a] = int32(s.DecisionLevel())
	s.reason[a] = reason
	s.trail = append(s.trail, l)
	s.assigned++
	if reason != nil {
		s.stats.Propagations++
	}
}

func (s *Solver) backjumpTo(level int) {
	if s.DecisionLevel() <= level {
		return
	}
	base := s.limits[level]
	for i := len(s.trail) - 1; i >= base; i-- {
		l := s.trail[i]
		a := l.Atom()
		s.phase[a] = l > 0
		s.val[a] = 0
		s.reason[a] = nil
		s.assigned--
		s.heapPush(a)
	}
	s.trail = s.trail[:base]
	s.limits = s.limits[:level]
	if s.qhead > base {
		s.qhead = base
	}
	if s.orderFed > base {
		s.orderFed = base
	}
	s.state.UndoTo(level)
}

func (s *Solver) decide() {
	for {
		a, ok := s.heapPop()
		if !ok {
			return
		}
		if s.val[a] != 0 {
			continue
		}
		s.limits = append(s.limits, len(s.trail))
		l := store.Neg(a)
		if s.phase[a] {
			l = store.Pos(a)
		}
		s.enqueue(l, nil)
		s.stats.Decisions++
		return
	}
}

// Solve searches for the next model. Without assumptions the solver resumes
// where the previous call or Block left off, so repeated calls enumerate.
func (s *Solver) Solve(ctx context.Context, assumptions []store.Lit) Status {
	if s.unsat {
		return Unsatisfiable
	}
	if len(assumptions) > 0 {
		s.backjumpTo(0)
		s.rootLevel = 0
		for _, l := range assumptions {
			if confl := s.propagateAll(); confl != nil {
				if s.DecisionLevel() == 0 || len(confl.lits) == 0 {
					s.unsat = true
				}
				return Unsatisfiable
			}
			if s.IsFalse(l) {
				return Unsatisfiable
			}
			if !s.IsTrue(l) {
				s.limits = append(s.limits, len(s.trail))
				s.enqueue(l, nil)
			}
		}
		s.rootLevel = s.DecisionLevel()
	}
	return s.search(ctx)
}

func (s *Solver) search(ctx context.Context) Status {
	for {
		if ctx.Err() != nil {
			return Interrupted
		}
		if confl := s.propagateAll(); confl != nil {
			s.stats.Conflicts++
			if !s.resolve(confl) {
				return Unsatisfiable
			}
			continue
		}
		if s.quota <= 0 && s.DecisionLevel() > s.rootLevel {
			s.restarts++
			s.quota = s.cfg.LubyBase * int(luby(s.restarts))
			s.backjumpTo(s.rootLevel)
			continue
		}
		if s.assigned == s.atoms {
			if !s.state.CheckFull(s) {
				// a fresh order literal splits the open domain
				continue
			}
			return Satisfiable
		}
		s.decide()
	}
}

// propagateAll interleaves unit propagation, constraint checks and the
// unfounded set check until nothing changes, returning a violated nogood if
// one turned up.
func (s *Solver) propagateAll() *nogood {
	for {
		if !s.Propagate() {
			return s.takePending()
		}
		if !s.state.Check(s) {
			return s.takePending()
		}
		if s.qhead < len(s.trail) || s.orderFed < len(s.trail) {
			continue
		}
		added, ok := s.unfoundedCheck()
		if !ok {
			return s.takePending()
		}
		if !added {
			return nil
		}
	}
}

func (s *Solver) takePending() *nogood {
	ng := s.pending
	s.pending = nil
	if ng == nil {
		ng = &nogood{}
	}
	return ng
}

// resolve learns from a conflict and backjumps. It reports false when the
// conflict reaches the root level.
func (s *Solver) resolve(confl *nogood) bool {
	if len(confl.lits) == 0 {
		s.unsat = true
		return false
	}
	maxLvl := 0
	for _, l := range confl.lits {
		if lv := int(s.level[l.Atom()]); lv > maxLvl {
			maxLvl = lv
		}
	}
	if maxLvl < s.DecisionLevel() {
		s.backjumpTo(maxLvl)
	}
	if maxLvl <= s.rootLevel {
		if s.rootLevel == 0 {
			s.unsat = true
		}
		return false
	}
	learnt, bj := s.analyze(confl)
	if bj < s.rootLevel {
		bj = s.rootLevel
	}
	s.backjumpTo(bj)
	s.record(learnt)
	s.quota--
	return true
}

// Block excludes the current model by forbidding its decisions and
// backtracks the most recent one. It reports false when no decisions remain
// and the search space is exhausted.
func (s *Solver) Block() bool {
	dl := s.DecisionLevel()
	if dl <= s.rootLevel {
		if s.rootLevel == 0 {
			s.unsat = true
		}
		return false
	}
	lits := make([]store.Lit, 0, dl-s.rootLevel)
	for l := dl; l > s.rootLevel; l-- {
		lits = append(lits, s.trail[s.limits[l-1]])
	}
	s.backjumpTo(dl - 1)
	return s.integrate(lits)
}

// luby yields the i-th element of the Luby restart sequence
// 1 1 2 1 1 2 4 1 1 2 1 1 2 4 8 ...
func luby(i uint64) uint64 {
	for {
		n := uint(bits.Len64(i + 1))
		if i+1 == uint64(1)<<n-1 {
			return uint64(1) << (n - 1)
		}
		i = i + 1 - (uint64(1)<<(n-1) - 1)
	}
}
