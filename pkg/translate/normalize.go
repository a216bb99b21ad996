// Package translate rewrites constraint atoms into plain rules and linear
// order constraints. The Translator eliminates conditionals, assignments
// and the min, max, in, distinct and dom constructs; normalization then
// reduces the remaining sum and difference constraints to "<=" form over
// integer variables.
package translate

import (
	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/order"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// Builder provides the solver hooks normalization needs: fresh literals
// for decomposed relations, clause output, and fact queries for literals
// already decided at the top level.
type Builder interface {
	NewLit() store.Lit
	AddClause(clause []store.Lit)
	IsFact(lit store.Lit) bool
}

type linear struct {
	co int
	v  string
}

// Normalize adds the order constraints for all given atoms to prob.
// Distinct and domain atoms are expanded into plain sum constraints on the
// fly; everything else must already be in sum or difference form.
func Normalize(b Builder, prob *order.Problem, atoms []*program.TheoryAtom) error {
	for _, atom := range atoms {
		var err error
		switch atom.Kind {
		case program.KindDistinct:
			err = expandDistinct(b, prob, atom)
		case program.KindDom:
			err = expandDom(b, prob, atom)
		default:
			err = NormalizeAtom(b, prob, atom)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// NormalizeAtom adds the order constraints for a single sum or difference
// atom. Atoms tagged with a body occurrence are enforced in both
// directions.
func NormalizeAtom(b Builder, prob *order.Problem, atom *program.TheoryAtom) error {
	if atom.Kind != program.KindSum && atom.Kind != program.KindDiff {
		return errors.Errorf("cannot normalize %s constraint", atom.Kind)
	}
	if atom.Guard == nil {
		return errors.Errorf("constraint %s has no guard", atom)
	}

	elems, rhs, err := parseAtom(atom)
	if err != nil {
		return errors.Wrapf(err, "constraint %s", atom)
	}

	// drop zero weights and divide by the gcd
	kept := elems[:0]
	for _, e := range elems {
		if e.co != 0 {
			kept = append(kept, e)
		}
	}
	d := rhs
	for _, e := range kept {
		d = gcd(d, e.co)
	}
	if d > 1 {
		for i := range kept {
			kept[i].co /= d
		}
		rhs = theory.FloorDiv(rhs, d)
	}

	strict := atom.Loc == program.LocBody
	return normalize(b, prob, atom.Lit, kept, atom.Guard.Rel, rhs, strict)
}

// parseAtom combines the coefficients of the elements and the guard into a
// merged linear form. Guard terms contribute with negated coefficients,
// constants move to the right-hand side.
func parseAtom(atom *program.TheoryAtom) ([]linear, int, error) {
	var elems []linear
	rhs := 0
	seen := map[string]int{}

	add := func(co int, v string) {
		if co == 0 {
			return
		}
		if v == "" {
			rhs -= co
			return
		}
		if i, ok := seen[v]; ok {
			elems[i].co += co
			return
		}
		seen[v] = len(elems)
		elems = append(elems, linear{co: co, v: v})
	}

	isSum := atom.Kind == program.KindSum
	if !isSum && len(atom.Elements) != 1 {
		return nil, 0, errors.New("difference constraint needs exactly one element")
	}
	for _, elem := range atom.Elements {
		if len(elem.Terms) == 0 || elem.Condition != 0 {
			return nil, 0, errors.New("conditional element not eliminated")
		}
		pairs, err := parseElem(elem.Terms[0], isSum)
		if err != nil {
			return nil, 0, err
		}
		for _, p := range pairs {
			add(p.co, p.v)
		}
	}

	if isSum {
		pairs, err := parseElem(atom.Guard.Term, true)
		if err != nil {
			return nil, 0, errors.Wrap(err, "guard")
		}
		for _, p := range pairs {
			add(-p.co, p.v)
		}
	} else {
		t, err := theory.Eval(atom.Guard.Term)
		if err != nil {
			return nil, 0, errors.Wrap(err, "guard")
		}
		if !t.IsNumber() {
			return nil, 0, errors.New("difference constraint needs a numeric guard")
		}
		add(-t.Num, "")
	}
	return elems, rhs, nil
}

type pair struct {
	co int
	v  string
}

// parseElem flattens a term into coefficient and variable pairs. An empty
// variable name marks a constant. Difference constraints only admit the
// form "u - v" with numeric or variable sides.
func parseElem(t theory.Term, isSum bool) ([]pair, error) {
	if !isSum {
		if !t.Match("-", 2) {
			return nil, errors.New("difference constraint needs the form u - v")
		}
		var out []pair
		for i, sign := range []int{1, -1} {
			side, err := theory.Eval(t.Args[i])
			if err != nil {
				return nil, err
			}
			if side.IsNumber() {
				out = append(out, pair{co: sign * side.Num})
			} else {
				out = append(out, pair{co: sign, v: side.String()})
			}
		}
		return out, nil
	}

	switch {
	case t.Match("+", 2):
		lhs, err := parseElem(t.Args[0], true)
		if err != nil {
			return nil, err
		}
		rhs, err := parseElem(t.Args[1], true)
		if err != nil {
			return nil, err
		}
		return append(lhs, rhs...), nil

	case t.Match("-", 2):
		lhs, err := parseElem(t.Args[0], true)
		if err != nil {
			return nil, err
		}
		rhs, err := parseElem(t.Args[1], true)
		if err != nil {
			return nil, err
		}
		for _, p := range rhs {
			lhs = append(lhs, pair{co: -p.co, v: p.v})
		}
		return lhs, nil

	case t.Match("*", 2):
		lhs, err := parseElem(t.Args[0], true)
		if err != nil {
			return nil, err
		}
		rhs, err := parseElem(t.Args[1], true)
		if err != nil {
			return nil, err
		}
		var out []pair
		for _, pr := range rhs {
			for _, pl := range lhs {
				switch {
				case pl.v == "":
					out = append(out, pair{co: pl.co * pr.co, v: pr.v})
				case pr.v == "":
					out = append(out, pair{co: pl.co * pr.co, v: pl.v})
				default:
					return nil, errors.New("only linear constraints allowed")
				}
			}
		}
		return out, nil

	case t.Match("-", 1):
		inner, err := parseElem(t.Args[0], true)
		if err != nil {
			return nil, err
		}
		for i := range inner {
			inner[i].co = -inner[i].co
		}
		return inner, nil

	case t.Match("+", 1):
		return parseElem(t.Args[0], true)

	case t.IsNumber():
		return []pair{{co: t.Num}}, nil

	default:
		v, err := theory.Eval(t)
		if err != nil {
			return nil, err
		}
		if v.IsNumber() {
			return []pair{{co: v.Num}}, nil
		}
		return []pair{{co: 1, v: v.String()}}, nil
	}
}

// normalize rewrites a constraint over an arbitrary relation into "<="
// constraints. Equality and inequality split into fresh literals; in
// strict mode the complementary direction is added for the negated
// literal, and single variable constraints turn into order literals
// directly.
func normalize(b Builder, prob *order.Problem, lit store.Lit, elems []linear, rel program.Rel, rhs int, strict bool) error {
	switch rel {
	case program.RelGT:
		rel = program.RelGE
		rhs++
	case program.RelLT:
		rel = program.RelLE
		rhs--
	}
	if rel == program.RelGE {
		rel = program.RelLE
		rhs = -rhs
		negated := make([]linear, len(elems))
		for i, e := range elems {
			negated[i] = linear{co: -e.co, v: e.v}
		}
		elems = negated
	}

	switch rel {
	case program.RelLE:
		c := &order.Constraint{Lit: lit, Terms: intern(prob, elems), RHS: rhs}
		if strict && len(elems) == 1 {
			c.Strict = true
			prob.Add(c)
			return nil
		}
		prob.Add(c)
		if strict {
			return normalize(b, prob, lit.Neg(), elems, program.RelGT, rhs, false)
		}
		return nil

	case program.RelEQ:
		la, lb := lit, lit
		if strict {
			if b.IsFact(lit) {
				la, lb = store.TrueLit, store.TrueLit
			} else {
				la, lb = b.NewLit(), b.NewLit()
			}
			b.AddClause([]store.Lit{lit.Neg(), la})
			b.AddClause([]store.Lit{lit.Neg(), lb})
			b.AddClause([]store.Lit{la.Neg(), lb.Neg(), lit})
		}
		if err := normalize(b, prob, la, elems, program.RelLE, rhs, strict); err != nil {
			return err
		}
		return normalize(b, prob, lb, elems, program.RelGE, rhs, strict)

	case program.RelNE:
		if strict {
			return normalize(b, prob, lit.Neg(), elems, program.RelEQ, rhs, true)
		}
		la := b.NewLit()
		lb := b.NewLit()
		if err := normalize(b, prob, la, elems, program.RelLT, rhs, false); err != nil {
			return err
		}
		if err := normalize(b, prob, lb, elems, program.RelGT, rhs, false); err != nil {
			return err
		}
		b.AddClause([]store.Lit{la, lb, lit.Neg()})
		b.AddClause([]store.Lit{la.Neg(), lb.Neg()})
		return nil
	}

	return errors.Errorf("unsupported relation %q", rel)
}

func intern(prob *order.Problem, elems []linear) []order.LinearTerm {
	terms := make([]order.LinearTerm, len(elems))
	for i, e := range elems {
		terms[i] = order.LinearTerm{Coef: e.co, Var: prob.Var(e.v)}
	}
	return terms
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
