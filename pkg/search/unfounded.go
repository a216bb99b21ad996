package search

import "github.com/wanko/clingo/pkg/store"

// unfoundedCheck runs at propagation fixpoints. It closes the founded set
// over the support rules of recursive atoms and forbids every leftover atom
// through a loop nogood built from the external bodies of the unfounded
// set. The first return value reports whether any nogood was added, the
// second is false on conflict.
func (s *Solver) unfoundedCheck() (bool, bool) {
	if len(s.recAtoms) == 0 {
		return false, true
	}

	founded := make(map[store.Atom]bool, len(s.recAtoms))
	for changed := true; changed; {
		changed = false
		for _, a := range s.recAtoms {
			if founded[a] || s.IsFalse(store.Pos(a)) {
				continue
			}
			for _, r := range s.support[a] {
				// a false body cannot support; an aux body is false
				// whenever one of its conjuncts is
				if s.IsFalse(r.Body) {
					continue
				}
				ok := true
				for _, in := range r.Internal {
					if !founded[in] {
						ok = false
						break
					}
				}
				if ok {
					founded[a] = true
					changed = true
					break
				}
			}
		}
	}

	var unfounded []store.Atom
	for _, a := range s.recAtoms {
		if !founded[a] && !s.IsFalse(store.Pos(a)) {
			unfounded = append(unfounded, a)
		}
	}
	if len(unfounded) == 0 {
		return false, true
	}

	inSet := make(map[store.Atom]bool, len(unfounded))
	for _, u := range unfounded {
		inSet[u] = true
	}
	var external []store.Lit
	seenBody := make(map[store.Lit]bool)
	for _, u := range unfounded {
		for _, r := range s.support[u] {
			internal := false
			for _, in := range r.Internal {
				if inSet[in] {
					internal = true
					break
				}
			}
			if internal || seenBody[r.Body] {
				continue
			}
			seenBody[r.Body] = true
			external = append(external, r.Body)
		}
	}

	s.logger.WithField("atoms", len(unfounded)).Debug("unfounded set")
	for _, u := range unfounded {
		lits := make([]store.Lit, 0, len(external)+1)
		lits = append(lits, store.Pos(u))
		for _, b := range external {
			lits = append(lits, b.Neg())
		}
		if !s.integrate(lits) {
			return true, false
		}
	}
	return true, true
}
