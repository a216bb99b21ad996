// Package assemble turns a translated ground program into search input.
// Clark's completion relates every ruled atom to its bodies through nogoods;
// recursive atoms additionally carry the support rules the dynamic unfounded
// set check walks during search.
package assemble

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/order"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/support"
	"github.com/wanko/clingo/pkg/translate"
)

// SupportRule is one way a recursive atom can be founded. Internal lists the
// positive body atoms from the head's own component; a rule without internal
// atoms founds its head from outside the cycle.
type SupportRule struct {
	Body     store.Lit
	Internal []store.Atom
}

// Ground is assembled search input. A nogood is a set of literals that must
// not be jointly true; the true literal is asserted on the top level before
// anything else.
type Ground struct {
	Store   *store.Store
	Problem *order.Problem
	Nogoods [][]store.Lit
	Support map[store.Atom][]SupportRule
}

type assembler struct {
	prg     *program.Program
	an      *support.Analysis
	nogoods [][]store.Lit
	bodies  map[string]store.Lit
	facts   map[store.Lit]bool
	exempt  map[store.Atom]bool
}

// Assemble emits the completion nogoods for prg and normalizes the given
// constraint atoms into an order problem. Atoms heading no rule are forced
// false unless they are free or belong to an untranslated constraint atom;
// members of vicious components are forced false outright.
func Assemble(prg *program.Program, an *support.Analysis, sums []*program.TheoryAtom, logger *logrus.Logger) (*Ground, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	a := &assembler{
		prg:    prg,
		an:     an,
		bodies: map[string]store.Lit{},
		facts:  map[store.Lit]bool{},
		exempt: map[store.Atom]bool{},
	}
	a.collectFacts()
	if err := a.completion(); err != nil {
		return nil, err
	}

	prob := order.NewProblem()
	if err := translate.Normalize(a, prob, sums); err != nil {
		return nil, err
	}

	for _, s := range sums {
		if !an.Defined(s.Lit.Atom()) {
			// constraint atoms without rules are decided by their
			// order constraints alone
			a.exempt[s.Lit.Atom()] = true
		}
	}
	a.forceUnruled()
	a.forceVicious()

	g := &Ground{
		Store:   prg.Store,
		Problem: prob,
		Nogoods: a.nogoods,
		Support: a.supportRules(),
	}
	logger.WithFields(logrus.Fields{
		"rules":       len(prg.Rules),
		"nogoods":     len(g.Nogoods),
		"bodies":      len(a.bodies),
		"constraints": len(prob.Constraints()) + len(prob.Ties()),
		"recursive":   len(g.Support),
	}).Debug("program assembled")
	return g, nil
}

// collectFacts closes the set of literals derivable without any guess. Only
// positive derivations count; the closure feeds the fact queries of
// normalization.
func (a *assembler) collectFacts() {
	a.facts[store.TrueLit] = true
	for changed := true; changed; {
		changed = false
		for _, r := range a.prg.Rules {
			if r.Choice || len(r.Head) != 1 {
				continue
			}
			h := store.Pos(r.Head[0])
			if a.facts[h] {
				continue
			}
			derived := true
			for _, l := range r.Body {
				if !a.facts[l] {
					derived = false
					break
				}
			}
			if derived {
				a.facts[h] = true
				changed = true
			}
		}
	}
}

func (a *assembler) completion() error {
	type headSupport struct {
		atom   store.Atom
		bodies []store.Lit
	}
	var heads []*headSupport
	index := map[store.Atom]*headSupport{}
	addSupport := func(h store.Atom, body store.Lit) {
		hs, ok := index[h]
		if !ok {
			hs = &headSupport{atom: h}
			index[h] = hs
			heads = append(heads, hs)
		}
		hs.bodies = append(hs.bodies, body)
	}

	for _, r := range a.prg.Rules {
		if len(r.Head) == 0 {
			if len(r.Body) == 0 {
				a.nogoods = append(a.nogoods, []store.Lit{store.TrueLit})
				continue
			}
			a.nogoods = append(a.nogoods, append([]store.Lit(nil), r.Body...))
			continue
		}
		if !r.Choice && len(r.Head) > 1 {
			return errors.Errorf("disjunctive rule with %d heads not supported", len(r.Head))
		}
		body := a.bodyLit(r.Body)
		for _, h := range r.Head {
			addSupport(h, body)
		}
		if !r.Choice {
			a.nogoods = append(a.nogoods, []store.Lit{store.Neg(r.Head[0]), body})
		}
	}

	for _, hs := range heads {
		ng := make([]store.Lit, 0, len(hs.bodies)+1)
		ng = append(ng, store.Pos(hs.atom))
		seen := map[store.Lit]bool{}
		supported := false
		for _, body := range hs.bodies {
			if body == store.TrueLit {
				supported = true
				break
			}
			if !seen[body] {
				seen[body] = true
				ng = append(ng, body.Neg())
			}
		}
		if !supported {
			a.nogoods = append(a.nogoods, ng)
		}
	}
	return nil
}

// bodyLit interns a rule body as a single literal. Bodies with the same
// literals share one auxiliary, pinned to the conjunction by nogoods.
func (a *assembler) bodyLit(body []store.Lit) store.Lit {
	switch len(body) {
	case 0:
		return store.TrueLit
	case 1:
		return body[0]
	}
	lits := append([]store.Lit(nil), body...)
	sort.Slice(lits, func(i, j int) bool { return lits[i] < lits[j] })
	var sb strings.Builder
	for i, l := range lits {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(int(l)))
	}
	key := sb.String()
	if l, ok := a.bodies[key]; ok {
		return l
	}

	l := a.prg.Store.NewFreeLit()
	a.bodies[key] = l
	conj := make([]store.Lit, 0, len(lits)+1)
	conj = append(conj, l.Neg())
	conj = append(conj, lits...)
	a.nogoods = append(a.nogoods, conj)
	for _, b := range lits {
		a.nogoods = append(a.nogoods, []store.Lit{l, b.Neg()})
	}
	return l
}

func (a *assembler) forceUnruled() {
	st := a.prg.Store
	for i := 2; i <= st.Len(); i++ {
		at := store.Atom(i)
		if st.IsFree(at) || a.an.Defined(at) || a.exempt[at] {
			continue
		}
		a.nogoods = append(a.nogoods, []store.Lit{store.Pos(at)})
	}
}

func (a *assembler) forceVicious() {
	for _, comp := range a.an.Vicious() {
		for _, at := range comp {
			a.nogoods = append(a.nogoods, []store.Lit{store.Pos(at)})
		}
	}
}

// supportRules gathers, per recursive atom, the bodies that can found it and
// the in-component atoms each body depends on. Vicious components are
// already false and carry no support.
func (a *assembler) supportRules() map[store.Atom][]SupportRule {
	vicious := map[store.Atom]bool{}
	for _, comp := range a.an.Vicious() {
		for _, at := range comp {
			vicious[at] = true
		}
	}

	sup := map[store.Atom][]SupportRule{}
	for _, comp := range a.an.Components() {
		for _, h := range comp {
			if vicious[h] {
				continue
			}
			for _, ri := range a.an.Rules(h) {
				r := a.prg.Rules[ri]
				var internal []store.Atom
				for _, l := range r.Body {
					if l.Positive() && a.an.SameComponent(h, l.Atom()) {
						internal = append(internal, l.Atom())
					}
				}
				sup[h] = append(sup[h], SupportRule{Body: a.bodyLit(r.Body), Internal: internal})
			}
		}
	}
	return sup
}

// NewLit allocates a free literal for decomposed relations.
func (a *assembler) NewLit() store.Lit {
	return a.prg.Store.NewFreeLit()
}

// AddClause records a clause as the nogood over its negated literals.
func (a *assembler) AddClause(clause []store.Lit) {
	ng := make([]store.Lit, len(clause))
	for i, l := range clause {
		ng[i] = l.Neg()
	}
	a.nogoods = append(a.nogoods, ng)
}

// IsFact reports whether lit is derivable without any guess.
func (a *assembler) IsFact(lit store.Lit) bool {
	return a.facts[lit]
}
