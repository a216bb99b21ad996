package search

import (
	"github.com/wanko/clingo/pkg/store"
)

// A nogood is a set of literals that must not become jointly true. Two of
// them are watched at positions 0 and 1; the watch lists are visited when a
// watched literal becomes true.
type nogood struct {
	lits   []store.Lit
	learnt bool
}

// widx maps a literal to its watch list slot.
func widx(l store.Lit) int {
	if l > 0 {
		return 2 * int(l)
	}
	return -2*int(l) + 1
}

func (s *Solver) watch(ng *nogood) {
	s.watches[widx(ng.lits[0])] = append(s.watches[widx(ng.lits[0])], ng)
	s.watches[widx(ng.lits[1])] = append(s.watches[widx(ng.lits[1])], ng)
}

// addBase installs an input nogood on the top level. True literals are
// dropped, a false literal discharges the whole nogood, and what remains is
// installed, propagated, or flagged as inconsistent.
func (s *Solver) addBase(lits []store.Lit) {
	if s.unsat {
		return
	}
	var out []store.Lit
	for _, l := range lits {
		if s.IsFalse(l) {
			return
		}
		if s.IsTrue(l) {
			continue
		}
		dup := false
		for _, o := range out {
			if o == l {
				dup = true
				break
			}
			if o == l.Neg() {
				return
			}
		}
		if !dup {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		s.unsat = true
	case 1:
		s.enqueue(out[0].Neg(), nil)
	default:
		ng := &nogood{lits: out}
		s.watch(ng)
	}
}

// integrate adds a nogood during search, at any decision level. A violated
// nogood is parked as the pending conflict and reported with false; a unit
// nogood propagates its remaining literal right away.
func (s *Solver) integrate(lits []store.Lit) bool {
	var out []store.Lit
	for _, l := range lits {
		dup := false
		for _, o := range out {
			if o == l {
				dup = true
				break
			}
			if o == l.Neg() {
				return true
			}
		}
		if !dup {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		s.pending = &nogood{}
		return false
	}
	ng := &nogood{lits: out}
	if len(out) == 1 {
		l := out[0]
		if s.IsTrue(l) {
			s.pending = ng
			return false
		}
		if !s.IsFalse(l) {
			s.enqueue(l.Neg(), ng)
		}
		return true
	}

	// watch the two best candidates: non-true literals first, then the
	// latest assigned ones
	for w := 0; w < 2; w++ {
		best := w
		for i := w + 1; i < len(out); i++ {
			if s.betterWatch(out[i], out[best]) {
				best = i
			}
		}
		out[w], out[best] = out[best], out[w]
	}
	s.watch(ng)
	if s.IsTrue(out[0]) {
		s.pending = ng
		return false
	}
	if s.IsTrue(out[1]) {
		s.enqueue(out[0].Neg(), ng)
	}
	return true
}

func (s *Solver) betterWatch(a, b store.Lit) bool {
	at, bt := s.IsTrue(a), s.IsTrue(b)
	if at != bt {
		return !at
	}
	if !at {
		return false
	}
	return s.level[a.Atom()] > s.level[b.Atom()]
}

// propagate drains the trail queue, returning the first violated nogood.
func (s *Solver) propagate() *nogood {
	for s.qhead < len(s.trail) {
		l := s.trail[s.qhead]
		s.qhead++
		if ng := s.propagateLit(l); ng != nil {
			return ng
		}
	}
	return nil
}

func (s *Solver) propagateLit(l store.Lit) *nogood {
	ws := s.watches[widx(l)]
	j := 0
	for i := 0; i < len(ws); i++ {
		ng := ws[i]
		lits := ng.lits
		if lits[0] != l {
			lits[0], lits[1] = lits[1], lits[0]
		}
		other := lits[1]
		if s.IsFalse(other) {
			// the complement holds, nothing can fire below it
			ws[j] = ng
			j++
			continue
		}
		moved := false
		for k := 2; k < len(lits); k++ {
			if !s.IsTrue(lits[k]) {
				lits[0], lits[k] = lits[k], lits[0]
				s.watches[widx(lits[0])] = append(s.watches[widx(lits[0])], ng)
				moved = true
				break
			}
		}
		if moved {
			continue
		}
		ws[j] = ng
		j++
		if s.IsTrue(other) {
			copy(ws[j:], ws[i+1:])
			j += len(ws) - i - 1
			s.watches[widx(l)] = ws[:j]
			return ng
		}
		s.enqueue(other.Neg(), ng)
	}
	s.watches[widx(l)] = ws[:j]
	return nil
}

// analyze resolves the conflict back to the first unique implication point.
// The learnt nogood keeps the UIP literal at position 0 and the latest of
// the remaining literals at position 1; the second return value is the
// backjump level.
func (s *Solver) analyze(confl *nogood) ([]store.Lit, int) {
	dl := s.DecisionLevel()
	learnt := []store.Lit{0}
	var toClear []store.Atom
	count := 0
	idx := len(s.trail) - 1
	var p store.Lit

	reason := confl.lits
	for {
		for _, q := range reason {
			a := q.Atom()
			if s.seen[a] || s.level[a] == 0 {
				continue
			}
			s.seen[a] = true
			toClear = append(toClear, a)
			s.bumpVar(a)
			if int(s.level[a]) == dl {
				count++
			} else {
				learnt = append(learnt, q)
			}
		}
		for !s.seen[s.trail[idx].Atom()] {
			idx--
		}
		p = s.trail[idx]
		idx--
		count--
		if count == 0 {
			break
		}
		reason = s.reason[p.Atom()].lits
	}
	learnt[0] = p

	bj := 0
	if len(learnt) > 1 {
		latest := 1
		for i := 2; i < len(learnt); i++ {
			if s.level[learnt[i].Atom()] > s.level[learnt[latest].Atom()] {
				latest = i
			}
		}
		learnt[1], learnt[latest] = learnt[latest], learnt[1]
		bj = int(s.level[learnt[1].Atom()])
	}
	for _, a := range toClear {
		s.seen[a] = false
	}
	s.decay()
	return learnt, bj
}

// record installs a learnt nogood after the backjump and asserts its UIP.
func (s *Solver) record(lits []store.Lit) {
	ng := &nogood{lits: lits, learnt: true}
	s.stats.Learnt++
	if len(lits) > 1 {
		s.watch(ng)
	}
	s.enqueue(lits[0].Neg(), ng)
}

func (s *Solver) bumpVar(a store.Atom) {
	s.act[a] += s.varInc
	if s.act[a] > 1e100 {
		for i := range s.act {
			s.act[i] *= 1e-100
		}
		s.varInc *= 1e-100
	}
	s.heapBump(a)
}

func (s *Solver) decay() {
	s.varInc /= 0.95
}
