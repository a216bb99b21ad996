// Package program holds ground programs: rules over store atoms together
// with the constraint atoms awaiting translation.
package program

import (
	"strings"

	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// Rule is a ground rule. An empty head is an integrity constraint. A choice
// rule derives no head; it only makes its heads possible when the body
// holds.
type Rule struct {
	Choice bool
	Head   []store.Atom
	Body   []store.Lit
}

// Fact reports whether the rule unconditionally derives a single head.
func (r Rule) Fact() bool {
	return !r.Choice && len(r.Head) == 1 && len(r.Body) == 0
}

// Rel is a constraint relation.
type Rel uint8

const (
	RelLE Rel = iota
	RelGE
	RelLT
	RelGT
	RelEQ
	RelNE
	// RelAssign is the ordered assignment "=:".
	RelAssign
)

// String returns the surface syntax of the relation.
func (r Rel) String() string {
	switch r {
	case RelLE:
		return "<="
	case RelGE:
		return ">="
	case RelLT:
		return "<"
	case RelGT:
		return ">"
	case RelEQ:
		return "="
	case RelNE:
		return "!="
	case RelAssign:
		return "=:"
	}
	return "?"
}

// Mirror swaps the orientation of an order relation. Equality relations are
// unchanged.
func (r Rel) Mirror() Rel {
	switch r {
	case RelLE:
		return RelGE
	case RelGE:
		return RelLE
	case RelLT:
		return RelGT
	case RelGT:
		return RelLT
	}
	return r
}

// AtomKind names the constraint construct of a theory atom.
type AtomKind uint8

const (
	KindSum AtomKind = iota
	KindDiff
	KindMin
	KindMax
	KindIn
	KindDistinct
	KindDom
	KindMinimize
	KindMaximize
)

// String returns the construct name as written after "&".
func (k AtomKind) String() string {
	switch k {
	case KindSum:
		return "sum"
	case KindDiff:
		return "diff"
	case KindMin:
		return "min"
	case KindMax:
		return "max"
	case KindIn:
		return "in"
	case KindDistinct:
		return "distinct"
	case KindDom:
		return "dom"
	case KindMinimize:
		return "minimize"
	case KindMaximize:
		return "maximize"
	}
	return "?"
}

// Loc distinguishes head from body occurrences of constraint atoms. Body
// occurrences are enforced in both directions, head occurrences only from
// the atom to the constraint.
type Loc uint8

const (
	LocHead Loc = iota
	LocBody
)

// String returns "head" or "body".
func (l Loc) String() string {
	if l == LocBody {
		return "body"
	}
	return "head"
}

// Element is one element of a constraint atom. The first term carries the
// linear expression; any trailing terms only disambiguate the element within
// the set. A zero Condition means the element is unconditional.
type Element struct {
	Terms     []theory.Term
	Condition store.Lit
}

// Guard is the relation and right-hand side of a constraint atom.
type Guard struct {
	Rel  Rel
	Term theory.Term
}

// TheoryAtom is a ground constraint atom.
type TheoryAtom struct {
	Kind     AtomKind
	Loc      Loc
	Lit      store.Lit
	Elements []Element
	Guard    *Guard
}

// Conditional reports whether any element carries a condition.
func (a *TheoryAtom) Conditional() bool {
	for _, e := range a.Elements {
		if e.Condition != 0 {
			return true
		}
	}
	return false
}

// String renders the atom for diagnostics and for structural deduplication.
func (a *TheoryAtom) String() string {
	var b strings.Builder
	b.WriteByte('&')
	b.WriteString(a.Kind.String())
	b.WriteByte('(')
	b.WriteString(a.Loc.String())
	b.WriteString("){")
	for i, e := range a.Elements {
		if i > 0 {
			b.WriteString("; ")
		}
		for j, t := range e.Terms {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.String())
		}
		if e.Condition != 0 {
			b.WriteString(" : ")
			b.WriteString(litString(e.Condition))
		}
	}
	b.WriteByte('}')
	if a.Guard != nil {
		b.WriteByte(' ')
		b.WriteString(a.Guard.Rel.String())
		b.WriteByte(' ')
		b.WriteString(a.Guard.Term.String())
	}
	return b.String()
}

func litString(l store.Lit) string {
	var b strings.Builder
	if !l.Positive() {
		b.WriteString("not ")
	}
	b.WriteByte('#')
	b.WriteString(theory.Num(int(l.Atom())).String())
	return b.String()
}

// Show restricts model output to a predicate signature.
type Show struct {
	Name  string
	Arity int
}

// Objective is a collected optimization directive. Minimize is false for
// &maximize atoms.
type Objective struct {
	Minimize bool
	Elements []Element
}

// Program is a ground program under construction. The grounder fills it,
// the translator rewrites the constraint atoms into rules and plain sum
// constraints, and the assembler turns the result into solver input.
type Program struct {
	Store      *store.Store
	Rules      []Rule
	Theory     []*TheoryAtom
	Shows      []Show
	Objectives []Objective
}

// New returns an empty program over the given store.
func New(s *store.Store) *Program {
	return &Program{Store: s}
}

// AddRule appends a normal rule.
func (p *Program) AddRule(head []store.Atom, body []store.Lit) {
	p.Rules = append(p.Rules, Rule{Head: head, Body: body})
}

// AddChoice appends a choice rule.
func (p *Program) AddChoice(head []store.Atom, body []store.Lit) {
	p.Rules = append(p.Rules, Rule{Choice: true, Head: head, Body: body})
}

// AddConstraint appends an integrity constraint.
func (p *Program) AddConstraint(body []store.Lit) {
	p.Rules = append(p.Rules, Rule{Body: body})
}

// AddTheory appends a constraint atom.
func (p *Program) AddTheory(a *TheoryAtom) {
	p.Theory = append(p.Theory, a)
}

// Shown reports whether the named atom is included in model output. Without
// any #show directive all named atoms are shown.
func (p *Program) Shown(t theory.Term) bool {
	if len(p.Shows) == 0 {
		return true
	}
	name := t.Name
	arity := len(t.Args)
	if t.Kind == theory.Number || t.Kind == theory.Tuple {
		return false
	}
	for _, s := range p.Shows {
		if s.Name == name && s.Arity == arity {
			return true
		}
	}
	return false
}
