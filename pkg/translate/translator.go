package translate

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// OptVar is the hidden variable objectives are assigned to.
const OptVar = "__opt"

// Config carries the translation parameters. MinInt and MaxInt bound the
// neutral elements substituted for unsatisfied conditionals of min and max
// aggregates. Trace, when set, receives the emitted rules in source form.
type Config struct {
	MinInt int
	MaxInt int
	Trace  io.Writer
	Logger *logrus.Logger
}

// Translator rewrites the constraint atoms of a ground program into plain
// rules and non-conditional sum constraints. Variables occurring in
// constraints receive definedness atoms; variables that end up undefined
// in an answer are pinned to zero.
type Translator struct {
	prg      *program.Program
	cfg      Config
	logger   *logrus.Logger
	defined  map[string]store.Lit
	defOrder []theory.Term
	auxvars  int
	sums     []*program.TheoryAtom
	sumIndex map[string]*program.TheoryAtom
	optimize bool
}

// New returns a translator for prg.
func New(prg *program.Program, cfg Config) *Translator {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Translator{
		prg:      prg,
		cfg:      cfg,
		logger:   logger,
		defined:  map[string]store.Lit{},
		sumIndex: map[string]*program.TheoryAtom{},
	}
}

// Run translates every constraint atom of the program, lowers the
// optimization directives and pins undefined variables. The resulting sum
// constraints are available through Sums.
func (t *Translator) Run() error {
	for _, atom := range t.prg.Theory {
		if err := t.translateConstraint(atom); err != nil {
			return err
		}
	}
	if err := t.lowerObjectives(); err != nil {
		return err
	}
	t.fixUndefined()
	t.logger.WithFields(logrus.Fields{
		"constraints": len(t.sums),
		"auxvars":     t.auxvars,
		"defined":     len(t.defOrder),
	}).Debug("translated constraint atoms")
	return nil
}

// Sums returns the accumulated non-conditional sum constraints.
func (t *Translator) Sums() []*program.TheoryAtom {
	return t.sums
}

// HasObjective reports whether an optimization directive was lowered. The
// objective value is the value of OptVar, to be minimized.
func (t *Translator) HasObjective() bool {
	return t.optimize
}

// AuxVars returns the number of auxiliary variables introduced.
func (t *Translator) AuxVars() int {
	return t.auxvars
}

// Variables returns every variable that received a definedness atom, in
// first-use order.
func (t *Translator) Variables() []theory.Term {
	return t.defOrder
}

func (t *Translator) translateConstraint(atom *program.TheoryAtom) error {
	switch {
	case (atom.Kind == program.KindSum || atom.Kind == program.KindDiff) &&
		!atom.Conditional() && atom.Guard != nil && simpleRel(atom.Guard.Rel):
		t.addSumConstraint(atom)
		return nil
	case atom.Conditional():
		return t.translateConditional(atom)
	case atom.Guard != nil && atom.Guard.Rel == program.RelAssign:
		return t.translateAssignment(atom)
	case atom.Kind == program.KindMax:
		return t.translateMax(atom)
	case atom.Kind == program.KindMin:
		return t.translateMin(atom)
	case atom.Kind == program.KindIn:
		return t.translateIn(atom)
	case atom.Kind == program.KindDistinct:
		return t.translateDistinct(atom)
	case atom.Kind == program.KindDom:
		return t.translateDom(atom)
	}
	return errors.Errorf("cannot translate constraint %s", atom)
}

func simpleRel(r program.Rel) bool {
	switch r {
	case program.RelEQ, program.RelLT, program.RelGT, program.RelLE, program.RelGE, program.RelNE:
		return true
	}
	return false
}

// addSumConstraint registers a non-conditional sum constraint, reusing the
// literal of a structurally equal one. All variables must be defined for
// the constraint to hold. Head occurrences define their variables; body
// occurrences are replaced by a free choice literal so the constraint can
// be assumed independently of definedness.
func (t *Translator) addSumConstraint(atom *program.TheoryAtom) store.Lit {
	key := atom.String()
	if existing, ok := t.sumIndex[key]; ok {
		return existing.Lit
	}
	if atom.Lit == 0 {
		atom.Lit = t.freshLit()
	}
	t.sumIndex[key] = atom
	t.sums = append(t.sums, atom)
	t.tracef("%% adding sum constraint: %s", key)

	var defined []store.Lit
	for _, elem := range atom.Elements {
		for _, v := range theory.Vars(elem.Terms[0]) {
			dl := t.defLit(v)
			defined = append(defined, dl)
			t.addRule(nil, []store.Lit{atom.Lit, dl.Neg()}, false)
		}
	}
	if atom.Guard != nil {
		for _, v := range theory.Vars(atom.Guard.Term) {
			dl := t.defLit(v)
			t.addRule(nil, []store.Lit{atom.Lit, dl.Neg()}, false)
			defined = append(defined, dl)
		}
	}

	switch atom.Loc {
	case program.LocHead:
		t.defineVariables(atom)
	case program.LocBody:
		newLit := t.freshLit()
		t.addRule([]store.Atom{newLit.Atom()}, nil, true)
		defined = append(defined, newLit)
		t.addRule([]store.Atom{atom.Lit.Atom()}, defined, false)
		atom.Lit = newLit
	}
	return atom.Lit
}

// defineVariables derives definedness of the variables of a head
// constraint from its literal.
func (t *Translator) defineVariables(atom *program.TheoryAtom) {
	if atom.Guard != nil {
		for _, v := range theory.Vars(atom.Guard.Term) {
			t.define(v, []store.Lit{atom.Lit})
		}
	}
	for _, elem := range atom.Elements {
		for _, v := range theory.Vars(elem.Terms[0]) {
			t.define(v, []store.Lit{atom.Lit})
		}
	}
}

// translateConditional eliminates conditional elements by substituting an
// auxiliary variable that holds either the element value or the neutral
// element of the aggregate.
func (t *Translator) translateConditional(atom *program.TheoryAtom) error {
	t.tracef("%% translating conditionals: %s", atom)

	neutral := theory.Num(0)
	switch atom.Kind {
	case program.KindMin:
		neutral = theory.Num(t.cfg.MaxInt)
	case program.KindMax:
		neutral = theory.Num(t.cfg.MinInt)
	}

	var elements []program.Element
	for _, elem := range atom.Elements {
		if elem.Condition == 0 {
			elements = append(elements, elem)
			continue
		}
		cond := elem.Condition
		auxVar := t.addAuxVar()
		terms := append([]theory.Term{auxVar}, elem.Terms[1:]...)
		elements = append(elements, program.Element{Terms: terms})

		auxDef := t.defLit(auxVar)
		var holdsDef []store.Lit
		for _, v := range theory.Vars(elem.Terms[0]) {
			holdsDef = append(holdsDef, t.defLit(v))
		}
		auxElem := []program.Element{{Terms: []theory.Term{auxVar}}}
		holds := t.addSumConstraint(&program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocHead,
			Elements: auxElem,
			Guard:    &program.Guard{Rel: program.RelEQ, Term: elem.Terms[0]},
		})
		nholds := t.addSumConstraint(&program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocHead,
			Elements: auxElem,
			Guard:    &program.Guard{Rel: program.RelEQ, Term: neutral},
		})

		t.addRule([]store.Atom{holds.Atom()}, append([]store.Lit{cond}, holdsDef...), false)
		t.addRule([]store.Atom{nholds.Atom()}, []store.Lit{cond.Neg()}, false)
		t.addRule([]store.Atom{holds.Atom()}, []store.Lit{cond, auxDef}, false)
		t.addRule([]store.Atom{nholds.Atom()}, []store.Lit{cond.Neg(), auxDef}, false)
		t.addRule([]store.Atom{cond.Atom()}, []store.Lit{auxDef}, true)
	}

	condFree := t.freshLit()
	err := t.translateConstraint(&program.TheoryAtom{
		Kind:     atom.Kind,
		Loc:      atom.Loc,
		Lit:      condFree,
		Elements: elements,
		Guard:    atom.Guard,
	})
	if err != nil {
		return err
	}
	t.addRule([]store.Atom{condFree.Atom()}, []store.Lit{atom.Lit}, false)
	t.addRule([]store.Atom{atom.Lit.Atom()}, []store.Lit{condFree}, false)
	return nil
}

// translateAssignment implements "=:". The assigned variable becomes
// defined exactly when the body literal holds and all element variables
// are defined.
func (t *Translator) translateAssignment(atom *program.TheoryAtom) error {
	if n := len(theory.Vars(atom.Guard.Term)); n != 1 {
		return errors.Errorf("assignment %s needs exactly one target variable, got %d", atom, n)
	}
	t.tracef("%% translating assignment: %s", atom)

	body := []store.Lit{atom.Lit}
	for _, elem := range atom.Elements {
		for _, v := range theory.Vars(elem.Terms[0]) {
			body = append(body, t.defLit(v))
		}
	}
	headLit := t.freshLit()
	err := t.translateConstraint(&program.TheoryAtom{
		Kind:     atom.Kind,
		Loc:      atom.Loc,
		Lit:      headLit,
		Elements: atom.Elements,
		Guard:    &program.Guard{Rel: program.RelEQ, Term: atom.Guard.Term},
	})
	if err != nil {
		return err
	}
	t.addRule([]store.Atom{headLit.Atom()}, body, false)
	return nil
}

// translateMax negates the elements and the guard and reduces to min.
func (t *Translator) translateMax(atom *program.TheoryAtom) error {
	t.tracef("%% translating max aggregate: %s", atom)

	elements := make([]program.Element, len(atom.Elements))
	for i, elem := range atom.Elements {
		terms := append([]theory.Term{theory.Fun("-", elem.Terms[0])}, elem.Terms[1:]...)
		elements[i] = program.Element{Terms: terms, Condition: elem.Condition}
	}
	headLit := t.freshLit()
	err := t.translateConstraint(&program.TheoryAtom{
		Kind:     program.KindMin,
		Loc:      atom.Loc,
		Lit:      headLit,
		Elements: elements,
		Guard: &program.Guard{
			Rel:  atom.Guard.Rel.Mirror(),
			Term: theory.Fun("-", atom.Guard.Term),
		},
	})
	if err != nil {
		return err
	}
	t.addRule([]store.Atom{headLit.Atom()}, []store.Lit{atom.Lit}, false)
	t.addRule([]store.Atom{atom.Lit.Atom()}, []store.Lit{headLit}, false)
	return nil
}

// translateMin introduces an auxiliary variable holding the minimum. The
// variable is bounded by every element from above, and a choice over
// equality constraints requires it to meet at least one element.
func (t *Translator) translateMin(atom *program.TheoryAtom) error {
	t.tracef("%% translating min aggregate: %s", atom)

	minVar := t.addAuxVar()
	minDef := t.defLit(minVar)
	defFact := false
	betaLit := t.freshLit()

	for _, elem := range atom.Elements {
		if !defFact {
			var body []store.Lit
			for _, v := range theory.Vars(elem.Terms[0]) {
				body = append(body, t.defLit(v))
			}
			if len(body) == 0 {
				defFact = true
			}
			t.define(minVar, body)
		}

		minElem := []program.Element{{Terms: []theory.Term{minVar}}}
		checkLit := t.addSumConstraint(&program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocHead,
			Elements: minElem,
			Guard:    &program.Guard{Rel: program.RelLE, Term: elem.Terms[0]},
		})
		t.addRule([]store.Atom{checkLit.Atom()}, []store.Lit{minDef}, false)

		eqLit := t.addSumConstraint(&program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocBody,
			Elements: minElem,
			Guard:    &program.Guard{Rel: program.RelEQ, Term: elem.Terms[0]},
		})
		t.addRule([]store.Atom{eqLit.Atom()}, []store.Lit{minDef}, true)
		t.addRule([]store.Atom{betaLit.Atom()}, []store.Lit{eqLit}, false)
	}
	t.addRule(nil, []store.Lit{betaLit.Neg(), minDef}, false)

	resLit := t.addSumConstraint(&program.TheoryAtom{
		Kind:     program.KindSum,
		Loc:      atom.Loc,
		Elements: []program.Element{{Terms: []theory.Term{minVar}}},
		Guard:    atom.Guard,
	})
	t.addRule([]store.Atom{resLit.Atom()}, []store.Lit{atom.Lit}, false)
	t.addRule([]store.Atom{atom.Lit.Atom()}, []store.Lit{resLit}, false)
	return nil
}

// translateIn bounds the assigned variable by the two ends of a range.
func (t *Translator) translateIn(atom *program.TheoryAtom) error {
	if len(atom.Elements) != 1 || atom.Guard == nil || atom.Guard.Rel != program.RelEQ {
		return errors.Errorf("malformed range constraint %s", atom)
	}
	rng := atom.Elements[0].Terms[0]
	if !rng.Match("..", 2) {
		return errors.Errorf("range constraint %s needs an l..u element", atom)
	}
	t.tracef("%% translating range assignment: %s", atom)

	alphaLit := t.addSumConstraint(&program.TheoryAtom{
		Kind:     program.KindSum,
		Loc:      program.LocHead,
		Elements: []program.Element{{Terms: []theory.Term{rng.Args[0]}}},
		Guard:    &program.Guard{Rel: program.RelLE, Term: atom.Guard.Term},
	})
	betaLit := t.addSumConstraint(&program.TheoryAtom{
		Kind:     program.KindSum,
		Loc:      program.LocHead,
		Elements: []program.Element{{Terms: []theory.Term{rng.Args[1]}}},
		Guard:    &program.Guard{Rel: program.RelGE, Term: atom.Guard.Term},
	})
	t.addRule([]store.Atom{alphaLit.Atom()}, []store.Lit{atom.Lit}, false)
	t.addRule([]store.Atom{betaLit.Atom()}, []store.Lit{atom.Lit}, false)
	return nil
}

// translateDistinct decomposes pairwise inequality over the canonical
// linear form of the elements. Equal forms collapse into one element.
func (t *Translator) translateDistinct(atom *program.TheoryAtom) error {
	t.tracef("%% translating distinct: %s", atom)

	forms, err := canonicalElements(atom.Elements)
	if err != nil {
		return errors.Wrapf(err, "constraint %s", atom)
	}

	// elements that collapse still contribute their variables
	for _, form := range forms {
		for _, p := range form.terms {
			t.defLit(theory.Sym(p.v))
		}
	}
	for i := range forms {
		for j := i + 1; j < len(forms); j++ {
			pair := inequalityAtom(forms[i], forms[j], atom.Lit, program.LocHead)
			t.addSumConstraint(pair)
		}
	}
	return nil
}

// translateDom restricts the assigned variable to a union of ranges. The
// variable is defined by the constraint like by any other head occurrence.
func (t *Translator) translateDom(atom *program.TheoryAtom) error {
	if atom.Guard == nil || atom.Guard.Rel != program.RelEQ {
		return errors.Errorf("malformed domain constraint %s", atom)
	}
	t.tracef("%% translating domain: %s", atom)

	for _, v := range theory.Vars(atom.Guard.Term) {
		t.define(v, []store.Lit{atom.Lit})
	}

	var members []store.Lit
	for _, elem := range atom.Elements {
		lo, hi := elem.Terms[0], elem.Terms[0]
		if elem.Terms[0].Match("..", 2) {
			lo, hi = elem.Terms[0].Args[0], elem.Terms[0].Args[1]
		}
		atLeast := t.addSumConstraint(&program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocBody,
			Elements: []program.Element{{Terms: []theory.Term{atom.Guard.Term}}},
			Guard:    &program.Guard{Rel: program.RelGE, Term: lo},
		})
		atMost := t.addSumConstraint(&program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocBody,
			Elements: []program.Element{{Terms: []theory.Term{atom.Guard.Term}}},
			Guard:    &program.Guard{Rel: program.RelLE, Term: hi},
		})
		member := t.freshLit()
		t.addRule([]store.Atom{member.Atom()}, []store.Lit{atLeast, atMost}, false)
		members = append(members, member)
	}

	// at least one range has to apply
	body := []store.Lit{atom.Lit}
	for _, m := range members {
		body = append(body, m.Neg())
	}
	t.addRule(nil, body, false)
	return nil
}

// lowerObjectives merges all minimize and maximize directives into one
// assignment to the hidden optimization variable.
func (t *Translator) lowerObjectives() error {
	var elements []program.Element
	for _, obj := range t.prg.Objectives {
		for _, elem := range obj.Elements {
			if obj.Minimize {
				elements = append(elements, elem)
				continue
			}
			terms := append([]theory.Term{theory.Fun("-", elem.Terms[0])}, elem.Terms[1:]...)
			elements = append(elements, program.Element{Terms: terms, Condition: elem.Condition})
		}
	}
	if len(elements) == 0 {
		return nil
	}
	t.optimize = true
	return t.translateConstraint(&program.TheoryAtom{
		Kind:     program.KindSum,
		Loc:      program.LocHead,
		Lit:      store.TrueLit,
		Elements: elements,
		Guard:    &program.Guard{Rel: program.RelAssign, Term: theory.Sym(OptVar)},
	})
}

// fixUndefined pins every potentially undefined variable to zero. The pin
// constraint bypasses the definedness requirement of addSumConstraint.
func (t *Translator) fixUndefined() {
	for _, v := range t.defOrder {
		fixVal := t.freshLit()
		atom := &program.TheoryAtom{
			Kind:     program.KindSum,
			Loc:      program.LocHead,
			Lit:      fixVal,
			Elements: []program.Element{{Terms: []theory.Term{v}}},
			Guard:    &program.Guard{Rel: program.RelEQ, Term: theory.Num(0)},
		}
		t.sumIndex[atom.String()] = atom
		t.sums = append(t.sums, atom)
		t.addRule([]store.Atom{fixVal.Atom()}, []store.Lit{t.defined[v.String()].Neg()}, false)
	}
}

func (t *Translator) addAuxVar() theory.Term {
	v := theory.Fun("aux", theory.Num(t.auxvars))
	t.auxvars++
	return v
}

func (t *Translator) freshLit() store.Lit {
	return store.Pos(t.prg.Store.NewAtom())
}

// defLit returns the definedness atom of v, creating it on first use.
func (t *Translator) defLit(v theory.Term) store.Lit {
	key := v.String()
	if lit, ok := t.defined[key]; ok {
		return lit
	}
	lit := store.Pos(t.prg.Store.Atom(theory.Fun("def", v)))
	t.defined[key] = lit
	t.defOrder = append(t.defOrder, v)
	return lit
}

// define adds a rule deriving definedness of v from body.
func (t *Translator) define(v theory.Term, body []store.Lit) {
	lit := t.defLit(v)
	t.addRule([]store.Atom{lit.Atom()}, body, false)
}

func (t *Translator) addRule(head []store.Atom, body []store.Lit, choice bool) {
	if choice {
		t.prg.AddChoice(head, body)
	} else if len(head) == 0 {
		t.prg.AddConstraint(body)
	} else {
		t.prg.AddRule(head, body)
	}
	t.traceRule(head, body, choice)
}

func (t *Translator) tracef(format string, args ...interface{}) {
	if t.cfg.Trace == nil {
		return
	}
	fmt.Fprintf(t.cfg.Trace, format+"\n", args...)
}

func (t *Translator) traceRule(head []store.Atom, body []store.Lit, choice bool) {
	if t.cfg.Trace == nil {
		return
	}
	var b strings.Builder
	if choice {
		b.WriteByte('{')
	}
	for i, h := range head {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(t.atomString(h))
	}
	if choice {
		b.WriteByte('}')
	}
	if len(body) > 0 {
		b.WriteString(" :- ")
		for i, l := range body {
			if i > 0 {
				b.WriteString(", ")
			}
			if !l.Positive() {
				b.WriteString("not ")
			}
			b.WriteString(t.atomString(l.Atom()))
		}
	}
	b.WriteByte('.')
	fmt.Fprintln(t.cfg.Trace, b.String())
}

func (t *Translator) atomString(a store.Atom) string {
	if term, ok := t.prg.Store.Name(a); ok {
		return term.String()
	}
	return fmt.Sprintf("#%d", a)
}

// linearForm is the canonical shape of a distinct element: merged
// coefficients in name order, zero coefficients kept, constants folded.
type linearForm struct {
	terms []pair
	rhs   int
}

func (f linearForm) key() string {
	var b strings.Builder
	for _, p := range f.terms {
		fmt.Fprintf(&b, "%d*%s;", p.co, p.v)
	}
	fmt.Fprintf(&b, "%d", f.rhs)
	return b.String()
}

// canonicalElements merges and deduplicates distinct elements. Elements
// with equal canonical forms always carry the same value and collapse.
func canonicalElements(elements []program.Element) ([]linearForm, error) {
	var forms []linearForm
	seen := map[string]bool{}
	for _, elem := range elements {
		if elem.Condition != 0 {
			return nil, errors.New("conditional element not eliminated")
		}
		pairs, err := parseElem(elem.Terms[0], true)
		if err != nil {
			return nil, err
		}
		form := mergeForm(pairs)
		if k := form.key(); !seen[k] {
			seen[k] = true
			forms = append(forms, form)
		}
	}
	return forms, nil
}

func mergeForm(pairs []pair) linearForm {
	var form linearForm
	index := map[string]int{}
	for _, p := range pairs {
		if p.v == "" {
			form.rhs += p.co
			continue
		}
		if i, ok := index[p.v]; ok {
			form.terms[i].co += p.co
			continue
		}
		index[p.v] = len(form.terms)
		form.terms = append(form.terms, p)
	}
	sort.Slice(form.terms, func(i, j int) bool { return form.terms[i].v < form.terms[j].v })
	return form
}

// inequalityAtom builds the sum constraint a != b for two canonical forms.
func inequalityAtom(a, b linearForm, lit store.Lit, loc program.Loc) *program.TheoryAtom {
	var elements []program.Element
	add := func(co int, v string, negate bool) {
		if co == 0 {
			return
		}
		if negate {
			co = -co
		}
		term := theory.Fun("*", theory.Num(co), theory.Sym(v))
		elements = append(elements, program.Element{Terms: []theory.Term{term}})
	}
	for _, p := range a.terms {
		add(p.co, p.v, false)
	}
	for _, p := range b.terms {
		add(p.co, p.v, true)
	}
	return &program.TheoryAtom{
		Kind:     program.KindSum,
		Loc:      loc,
		Lit:      lit,
		Elements: elements,
		Guard:    &program.Guard{Rel: program.RelNE, Term: theory.Num(b.rhs - a.rhs)},
	}
}
