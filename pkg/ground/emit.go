package ground

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/parse"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// maxBoundClauses caps the counting encoding of choice bounds.
const maxBoundClauses = 4096

// emit turns the recorded instances into ground rules. It runs after the
// possible base is complete, so negated literals and element conditions
// can be decided or reduced to residual literals here.
func (g *grounder) emit() error {
	for _, inst := range g.instances {
		r := inst.rule
		lits, dies, err := g.emitBody(r, inst.sub)
		if err != nil {
			return err
		}
		if dies {
			continue
		}
		switch r.src.Head.Kind {
		case parse.HeadAtom:
			ts, err := atomInstances(r.src.Head.Atom, inst.sub)
			if err != nil {
				return errors.Wrapf(err, "in rule %q", r.src)
			}
			for _, t := range ts {
				g.prg.AddRule([]store.Atom{g.st.Atom(t)}, lits)
			}
		case parse.HeadNone:
			g.prg.AddConstraint(lits)
		case parse.HeadChoice:
			if err := g.emitChoice(r, inst.sub, lits); err != nil {
				return err
			}
		case parse.HeadTheory:
			if err := g.emitTheoryHead(r, inst.sub, lits); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitBody reduces an instance body to solver literals. Literals decided
// during instantiation are dropped, certain atoms vanish, and negated
// literals expand over their possible matches.
func (g *grounder) emitBody(r *rule, sub binding) ([]store.Lit, bool, error) {
	var lits []store.Lit
	for _, l := range r.src.Body {
		switch l.Kind {
		case parse.LitComparison, parse.LitAggregate:
		case parse.LitAtom:
			if l.Negated {
				dies, neg := g.negate(g.possDB, l.Atom, sub)
				if dies {
					return nil, true, nil
				}
				lits = append(lits, neg...)
				continue
			}
			t, err := subst(l.Atom, sub)
			if err != nil {
				return nil, false, errors.Wrapf(err, "in rule %q", r.src)
			}
			v, err := theory.Eval(t)
			if err != nil {
				return nil, false, errors.Wrapf(err, "in rule %q", r.src)
			}
			if a := g.st.Atom(v); !g.certain[a] {
				lits = append(lits, store.Pos(a))
			}
		case parse.LitTheory:
			ta, err := g.theoryLit(l.Theory, sub, program.LocBody)
			if err != nil {
				return nil, false, errors.Wrapf(err, "in rule %q", r.src)
			}
			lit := ta.Lit
			if l.Negated {
				lit = lit.Neg()
			}
			lits = append(lits, lit)
		}
	}
	return lits, false, nil
}

// theoryLit grounds a constraint atom at the given position, reusing the
// literal of a structurally identical atom.
func (g *grounder) theoryLit(src *parse.TheoryAtom, sub binding, loc program.Loc) (*program.TheoryAtom, error) {
	elems, err := g.groundElements(src.Elements, sub)
	if err != nil {
		return nil, err
	}
	atom := &program.TheoryAtom{Kind: src.Kind, Loc: loc, Elements: elems}
	if src.Guard != nil {
		t, err := subst(src.Guard.Term, sub)
		if err != nil {
			return nil, err
		}
		v, err := evalNumeric(t)
		if err != nil {
			return nil, err
		}
		atom.Guard = &program.Guard{Rel: src.Guard.Rel, Term: v}
	}
	key := atom.String()
	if prev, ok := g.theoryAtoms[key]; ok {
		return prev, nil
	}
	atom.Lit = store.Pos(g.st.NewAtom())
	g.theoryAtoms[key] = atom
	g.prg.AddTheory(atom)
	return atom, nil
}

// groundElements instantiates constraint atom elements over the possible
// base. Arithmetic collapses where the operands are numbers, and elements
// that become identical afterwards are dropped.
func (g *grounder) groundElements(elems []parse.TheoryElem, sub binding) ([]program.Element, error) {
	var out []program.Element
	seen := map[string]bool{}
	for _, e := range elems {
		e := e
		err := g.matchCondition(g.possDB, e.Condition, sub, true, func(s binding, residual []store.Lit) error {
			terms := make([]theory.Term, len(e.Terms))
			for i, t := range e.Terms {
				tt, err := subst(t, s)
				if err != nil {
					return err
				}
				v, err := evalNumeric(tt)
				if err != nil {
					return err
				}
				terms[i] = v
			}
			cond := g.condLit(residual)
			var key strings.Builder
			for _, t := range terms {
				key.WriteString(t.String())
				key.WriteByte(',')
			}
			key.WriteString(strconv.Itoa(int(cond)))
			if seen[key.String()] {
				return nil
			}
			seen[key.String()] = true
			out = append(out, program.Element{Terms: terms, Condition: cond})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// condLit returns the literal standing for a residual condition: zero for
// the empty condition, the literal itself for a single positive atom, and
// a defined auxiliary atom otherwise.
func (g *grounder) condLit(residual []store.Lit) store.Lit {
	if len(residual) == 0 {
		return 0
	}
	if len(residual) == 1 && residual[0].Positive() {
		return residual[0]
	}
	sorted := append([]store.Lit(nil), residual...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var b strings.Builder
	for _, l := range sorted {
		b.WriteString(strconv.Itoa(int(l)))
		b.WriteByte(',')
	}
	key := b.String()
	if l, ok := g.condAux[key]; ok {
		return l
	}
	a := g.st.NewAtom()
	g.prg.AddRule([]store.Atom{a}, residual)
	l := store.Pos(a)
	g.condAux[key] = l
	return l
}

func (g *grounder) emitChoice(r *rule, sub binding, body []store.Lit) error {
	c := r.src.Head.Choice
	var members []store.Atom
	seen := map[store.Atom]bool{}
	conditional := false
	for _, e := range c.Elements {
		e := e
		err := g.matchCondition(g.possDB, e.Condition, sub, true, func(s binding, residual []store.Lit) error {
			ts, err := atomInstances(e.Atom, s)
			if err != nil {
				return err
			}
			for _, t := range ts {
				a := g.st.Atom(t)
				g.prg.AddChoice([]store.Atom{a}, append(body[:len(body):len(body)], residual...))
				if len(residual) > 0 {
					conditional = true
					continue
				}
				if !seen[a] {
					seen[a] = true
					members = append(members, a)
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "in rule %q", r.src)
		}
	}
	if c.Lower == nil && c.Upper == nil {
		return nil
	}
	if conditional {
		return errors.Errorf("conditional elements in bounded choice %q", r.src)
	}
	return g.encodeBounds(r, body, members)
}

// encodeBounds adds the counting constraints for choice bounds: at least
// l of n atoms hold unless some n-l+1 of them are all false, at most u
// unless some u+1 are all true.
func (g *grounder) encodeBounds(r *rule, body []store.Lit, members []store.Atom) error {
	c := r.src.Head.Choice
	n := len(members)
	if c.Lower != nil && *c.Lower > 0 {
		k := n - *c.Lower + 1
		if k <= 0 {
			g.prg.AddConstraint(body)
		} else {
			if binom(n, k) > maxBoundClauses {
				return errors.Errorf("choice bounds in %q are too large to encode", r.src)
			}
			combinations(n, k, func(idx []int) {
				con := make([]store.Lit, 0, len(body)+len(idx))
				con = append(con, body...)
				for _, i := range idx {
					con = append(con, store.Neg(members[i]))
				}
				g.prg.AddConstraint(con)
			})
		}
	}
	if c.Upper != nil && *c.Upper < n {
		if *c.Upper < 0 {
			g.prg.AddConstraint(body)
		} else {
			k := *c.Upper + 1
			if binom(n, k) > maxBoundClauses {
				return errors.Errorf("choice bounds in %q are too large to encode", r.src)
			}
			combinations(n, k, func(idx []int) {
				con := make([]store.Lit, 0, len(body)+len(idx))
				con = append(con, body...)
				for _, i := range idx {
					con = append(con, store.Pos(members[i]))
				}
				g.prg.AddConstraint(con)
			})
		}
	}
	return nil
}

func (g *grounder) emitTheoryHead(r *rule, sub binding, body []store.Lit) error {
	a := r.src.Head.Theory
	if a.Kind == program.KindMinimize || a.Kind == program.KindMaximize {
		if len(body) > 0 {
			return errors.Errorf("optimization directive %q has an undecided body", r.src)
		}
		elems, err := g.groundElements(a.Elements, sub)
		if err != nil {
			return errors.Wrapf(err, "in rule %q", r.src)
		}
		g.prg.Objectives = append(g.prg.Objectives, program.Objective{
			Minimize: a.Kind == program.KindMinimize,
			Elements: elems,
		})
		return nil
	}
	ta, err := g.theoryLit(a, sub, program.LocHead)
	if err != nil {
		return errors.Wrapf(err, "in rule %q", r.src)
	}
	g.prg.AddRule([]store.Atom{ta.Lit.Atom()}, body)
	return nil
}
