package translate

import (
	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/order"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// expandDistinct turns a distinct atom into pairwise inequalities over the
// canonical forms of its elements. Head occurrences share the atom
// literal; body occurrences tie the literal to the conjunction of the
// pairs through fresh literals.
func expandDistinct(b Builder, prob *order.Problem, atom *program.TheoryAtom) error {
	forms, err := canonicalElements(atom.Elements)
	if err != nil {
		return errors.Wrapf(err, "constraint %s", atom)
	}

	// elements that collapse still contribute their variables
	for _, form := range forms {
		for _, p := range form.terms {
			prob.Var(p.v)
		}
	}

	if atom.Loc == program.LocHead {
		for i := range forms {
			for j := i + 1; j < len(forms); j++ {
				pair := inequalityAtom(forms[i], forms[j], atom.Lit, program.LocHead)
				if err := NormalizeAtom(b, prob, pair); err != nil {
					return err
				}
			}
		}
		return nil
	}

	conj := []store.Lit{atom.Lit}
	for i := range forms {
		for j := i + 1; j < len(forms); j++ {
			p := b.NewLit()
			pair := inequalityAtom(forms[i], forms[j], p, program.LocBody)
			if err := NormalizeAtom(b, prob, pair); err != nil {
				return err
			}
			b.AddClause([]store.Lit{atom.Lit.Neg(), p})
			conj = append(conj, p.Neg())
		}
	}
	b.AddClause(conj)
	return nil
}

// expandDom restricts the guard term to a union of ranges. Membership in
// each range is reified so a single clause can require one of them.
func expandDom(b Builder, prob *order.Problem, atom *program.TheoryAtom) error {
	if atom.Guard == nil || atom.Guard.Rel != program.RelEQ {
		return errors.Errorf("malformed domain constraint %s", atom)
	}

	member := func(lo, hi theory.Term) (store.Lit, error) {
		m := b.NewLit()
		ge := b.NewLit()
		le := b.NewLit()
		err := NormalizeAtom(b, prob, &program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocBody,
			Lit:      ge,
			Elements: []program.Element{{Terms: []theory.Term{atom.Guard.Term}}},
			Guard:    &program.Guard{Rel: program.RelGE, Term: lo},
		})
		if err != nil {
			return 0, err
		}
		err = NormalizeAtom(b, prob, &program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocBody,
			Lit:      le,
			Elements: []program.Element{{Terms: []theory.Term{atom.Guard.Term}}},
			Guard:    &program.Guard{Rel: program.RelLE, Term: hi},
		})
		if err != nil {
			return 0, err
		}
		b.AddClause([]store.Lit{m.Neg(), ge})
		b.AddClause([]store.Lit{m.Neg(), le})
		b.AddClause([]store.Lit{m, ge.Neg(), le.Neg()})
		return m, nil
	}

	oneOf := []store.Lit{atom.Lit.Neg()}
	for _, elem := range atom.Elements {
		lo, hi := elem.Terms[0], elem.Terms[0]
		if elem.Terms[0].Match("..", 2) {
			lo, hi = elem.Terms[0].Args[0], elem.Terms[0].Args[1]
		}
		m, err := member(lo, hi)
		if err != nil {
			return err
		}
		oneOf = append(oneOf, m)
		if atom.Loc == program.LocBody {
			b.AddClause([]store.Lit{atom.Lit, m.Neg()})
		}
	}
	b.AddClause(oneOf)
	return nil
}
