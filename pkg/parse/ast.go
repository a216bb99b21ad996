package parse

import (
	"strconv"
	"strings"

	"github.com/wanko/clingo/pkg/program"
)

// Kind discriminates the term variant.
type Kind uint8

const (
	// Number is an integer constant.
	Number Kind = iota
	// Symbol is a constant without arguments. Names starting with an
	// underscore are constants, not variables.
	Symbol
	// Variable is a first-order variable. The anonymous variable is
	// named "_".
	Variable
	// Function is a symbol applied to one or more arguments. Arithmetic
	// operators are represented as functions named "+", "-", "*", "/",
	// "\\", "**" and "..".
	Function
	// Tuple is a parenthesized sequence of terms.
	Tuple
	// Pool is a set of alternatives the grounder expands into separate
	// instances, as in person(paul;mary).
	Pool
)

// Term is a node of a non-ground term tree.
type Term struct {
	Kind Kind
	Name string
	Num  int
	Args []Term
}

// Num returns a number term.
func Num(n int) Term {
	return Term{Kind: Number, Num: n}
}

// Sym returns a constant term.
func Sym(name string) Term {
	return Term{Kind: Symbol, Name: name}
}

// Var returns a variable term.
func Var(name string) Term {
	return Term{Kind: Variable, Name: name}
}

// Fun returns a function term. A function without arguments collapses to a
// symbol.
func Fun(name string, args ...Term) Term {
	if len(args) == 0 {
		return Sym(name)
	}
	return Term{Kind: Function, Name: name, Args: args}
}

// Tup returns a tuple term.
func Tup(args ...Term) Term {
	return Term{Kind: Tuple, Args: args}
}

// Alt returns a pool of alternative terms.
func Alt(args ...Term) Term {
	return Term{Kind: Pool, Args: args}
}

// Anonymous reports whether the term is the anonymous variable.
func (t Term) Anonymous() bool {
	return t.Kind == Variable && t.Name == "_"
}

// Ground reports whether the term contains neither variables nor pools.
func (t Term) Ground() bool {
	if t.Kind == Variable || t.Kind == Pool {
		return false
	}
	for _, a := range t.Args {
		if !a.Ground() {
			return false
		}
	}
	return true
}

// String renders the term. Operators are fully parenthesized.
func (t Term) String() string {
	var b strings.Builder
	t.render(&b)
	return b.String()
}

func (t Term) render(b *strings.Builder) {
	switch t.Kind {
	case Number:
		b.WriteString(strconv.Itoa(t.Num))
	case Symbol, Variable:
		b.WriteString(t.Name)
	case Function:
		if isOperator(t.Name) {
			t.renderOp(b)
			return
		}
		b.WriteString(t.Name)
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			a.render(b)
		}
		b.WriteByte(')')
	case Tuple:
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			a.render(b)
		}
		if len(t.Args) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case Pool:
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(';')
			}
			a.render(b)
		}
		b.WriteByte(')')
	}
}

func (t Term) renderOp(b *strings.Builder) {
	if len(t.Args) == 1 {
		b.WriteByte('(')
		b.WriteString(t.Name)
		t.Args[0].render(b)
		b.WriteByte(')')
		return
	}
	b.WriteByte('(')
	t.Args[0].render(b)
	b.WriteString(t.Name)
	t.Args[1].render(b)
	b.WriteByte(')')
}

func isOperator(name string) bool {
	switch name {
	case "+", "-", "*", "/", "\\", "**", "..":
		return true
	}
	return false
}

// LitKind discriminates body and condition literals.
type LitKind uint8

const (
	// LitAtom is a plain or negated predicate atom.
	LitAtom LitKind = iota
	// LitComparison relates two terms.
	LitComparison
	// LitTheory is a constraint atom occurrence in a rule body.
	LitTheory
	// LitAggregate binds a term to a body aggregate, as in
	// T = #max{ T' : rate(R,L,T') }.
	LitAggregate
)

// Literal is a single body or condition literal.
type Literal struct {
	Kind    LitKind
	Negated bool
	Atom    Term
	Rel     program.Rel
	Left    Term
	Right   Term
	Theory  *TheoryAtom
	Bind    Term
	Agg     *Aggregate
}

// Pos returns a positive atom literal.
func Pos(atom Term) Literal {
	return Literal{Kind: LitAtom, Atom: atom}
}

// Not negates a literal.
func Not(l Literal) Literal {
	l.Negated = !l.Negated
	return l
}

// Compare returns a comparison literal.
func Compare(left Term, rel program.Rel, right Term) Literal {
	return Literal{Kind: LitComparison, Rel: rel, Left: left, Right: right}
}

// String renders the literal.
func (l Literal) String() string {
	var b strings.Builder
	if l.Negated {
		b.WriteString("not ")
	}
	switch l.Kind {
	case LitAtom:
		l.Atom.render(&b)
	case LitComparison:
		l.Left.render(&b)
		b.WriteByte(' ')
		b.WriteString(l.Rel.String())
		b.WriteByte(' ')
		l.Right.render(&b)
	case LitTheory:
		b.WriteString(l.Theory.String())
	case LitAggregate:
		l.Bind.render(&b)
		b.WriteString(" = ")
		b.WriteString(l.Agg.String())
	}
	return b.String()
}

// TheoryAtom is a non-ground constraint atom.
type TheoryAtom struct {
	Kind     program.AtomKind
	Elements []TheoryElem
	Guard    *TheoryGuard
}

// TheoryElem is one element of a constraint atom, a term tuple under an
// optional condition.
type TheoryElem struct {
	Terms     []Term
	Condition []Literal
}

// TheoryGuard is the relation and right-hand side following the element set.
type TheoryGuard struct {
	Rel  program.Rel
	Term Term
}

// String renders the constraint atom.
func (a *TheoryAtom) String() string {
	var b strings.Builder
	b.WriteByte('&')
	b.WriteString(a.Kind.String())
	b.WriteByte('{')
	for i, e := range a.Elements {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.String())
	}
	b.WriteByte('}')
	if a.Guard != nil {
		b.WriteByte(' ')
		b.WriteString(a.Guard.Rel.String())
		b.WriteByte(' ')
		a.Guard.Term.render(&b)
	}
	return b.String()
}

// String renders the element.
func (e TheoryElem) String() string {
	var b strings.Builder
	for i, t := range e.Terms {
		if i > 0 {
			b.WriteByte(',')
		}
		t.render(&b)
	}
	for i, c := range e.Condition {
		if i == 0 {
			b.WriteString(" : ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(c.String())
	}
	return b.String()
}

// AggFn names a body aggregate function.
type AggFn uint8

const (
	AggCount AggFn = iota
	AggSum
	AggMin
	AggMax
)

// String returns the function name as written after "#".
func (f AggFn) String() string {
	switch f {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "?"
}

// Aggregate is a body aggregate over conditional term tuples.
type Aggregate struct {
	Fn       AggFn
	Elements []AggElem
}

// AggElem is one element of a body aggregate.
type AggElem struct {
	Terms     []Term
	Condition []Literal
}

// String renders the aggregate.
func (a *Aggregate) String() string {
	var b strings.Builder
	b.WriteByte('#')
	b.WriteString(a.Fn.String())
	b.WriteByte('{')
	for i, e := range a.Elements {
		if i > 0 {
			b.WriteString("; ")
		}
		for j, t := range e.Terms {
			if j > 0 {
				b.WriteByte(',')
			}
			t.render(&b)
		}
		for j, c := range e.Condition {
			if j == 0 {
				b.WriteString(" : ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(c.String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

// HeadKind discriminates rule heads.
type HeadKind uint8

const (
	// HeadNone marks an integrity constraint.
	HeadNone HeadKind = iota
	// HeadAtom is a plain atom, possibly a pool.
	HeadAtom
	// HeadChoice is a choice with optional cardinality bounds.
	HeadChoice
	// HeadTheory is a constraint atom.
	HeadTheory
)

// Head is the head of a rule.
type Head struct {
	Kind   HeadKind
	Atom   Term
	Choice *Choice
	Theory *TheoryAtom
}

// Choice is a choice head. Nil bounds leave the respective side open.
type Choice struct {
	Lower    *int
	Upper    *int
	Elements []ChoiceElem
}

// ChoiceElem is one element of a choice head, an atom under an optional
// condition.
type ChoiceElem struct {
	Atom      Term
	Condition []Literal
}

// Rule is a non-ground rule. Facts have an empty body, integrity
// constraints an empty head.
type Rule struct {
	Head Head
	Body []Literal
}

// String renders the rule.
func (r Rule) String() string {
	var b strings.Builder
	switch r.Head.Kind {
	case HeadAtom:
		r.Head.Atom.render(&b)
	case HeadChoice:
		c := r.Head.Choice
		if c.Lower != nil {
			b.WriteString(strconv.Itoa(*c.Lower))
			b.WriteByte(' ')
		}
		b.WriteByte('{')
		for i, e := range c.Elements {
			if i > 0 {
				b.WriteString("; ")
			}
			e.Atom.render(&b)
			for j, l := range e.Condition {
				if j == 0 {
					b.WriteString(" : ")
				} else {
					b.WriteString(", ")
				}
				b.WriteString(l.String())
			}
		}
		b.WriteByte('}')
		if c.Upper != nil {
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(*c.Upper))
		}
	case HeadTheory:
		b.WriteString(r.Head.Theory.String())
	}
	if len(r.Body) > 0 {
		if r.Head.Kind != HeadNone {
			b.WriteByte(' ')
		}
		b.WriteString(":- ")
		for i, l := range r.Body {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(l.String())
		}
	}
	b.WriteByte('.')
	return b.String()
}

// Show is a #show directive restricting model output to a predicate.
type Show struct {
	Name  string
	Arity int
}

// Program is a parsed source unit. Rules keep their source order.
type Program struct {
	Rules []Rule
	Shows []Show
}
