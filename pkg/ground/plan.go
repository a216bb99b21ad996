package ground

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/parse"
)

// pred identifies a predicate by name and arity.
type pred struct {
	name  string
	arity int
}

func predOf(t parse.Term) (pred, bool) {
	switch t.Kind {
	case parse.Symbol:
		return pred{name: t.Name}, true
	case parse.Function:
		if operatorName(t.Name) {
			return pred{}, false
		}
		return pred{name: t.Name, arity: len(t.Args)}, true
	}
	return pred{}, false
}

func operatorName(name string) bool {
	switch name {
	case "+", "-", "*", "/", "\\", "**", "..":
		return true
	}
	return false
}

type stepKind uint8

const (
	stepMatch stepKind = iota
	stepCompare
	stepAggregate
)

// step is one evaluation step of a rule plan. Match steps carry the
// ordinal of their positive body atom so the semi-naive rounds can pin
// one of them to the delta.
type step struct {
	kind stepKind
	lit  parse.Literal
	pos  int
}

// rule is an analyzed, pool-free rule together with its evaluation plan.
// The plan orders positive matches, comparisons and aggregates so that
// every step reads only bound variables. Negative literals and constraint
// atoms are not planned; they are expanded against the completed atom
// base at emission time.
type rule struct {
	index   int
	src     parse.Rule
	plan    []step
	vars    []string
	matches int
	exact   bool
	stratum int
}

// buildRule computes the evaluation plan and checks safety.
func buildRule(index int, src parse.Rule) (*rule, error) {
	r := &rule{index: index, src: src}
	bound := map[string]bool{}
	done := make([]bool, len(src.Body))
	left := 0
	for i, l := range src.Body {
		if l.Kind == parse.LitAggregate && l.Negated {
			return nil, errors.Errorf("cannot negate an aggregate in %q", src)
		}
		if planned(l) {
			left++
		} else {
			done[i] = true
		}
		if l.Kind == parse.LitAtom && !l.Negated && hasInterval(l.Atom) {
			return nil, errors.Errorf("interval in matched literal of %q is not supported", src)
		}
	}
	for left > 0 {
		progress := false
		for i, l := range src.Body {
			if done[i] {
				continue
			}
			switch l.Kind {
			case parse.LitAtom:
				r.plan = append(r.plan, step{kind: stepMatch, lit: l, pos: r.matches})
				r.matches++
				r.bind(bound, termVarSet(l.Atom))
			case parse.LitComparison:
				if !covered(litVarSet(l), bound, nil) {
					continue
				}
				r.plan = append(r.plan, step{kind: stepCompare, lit: l})
			case parse.LitAggregate:
				need := aggNeed(src, i)
				if !covered(need, bound, nil) {
					continue
				}
				r.plan = append(r.plan, step{kind: stepAggregate, lit: l})
				if l.Bind.Kind == parse.Variable && !l.Bind.Anonymous() {
					r.bind(bound, termVarSet(l.Bind))
				}
			}
			done[i] = true
			left--
			progress = true
			break
		}
		if !progress {
			return nil, errors.Errorf("unsafe variables in rule %q", src)
		}
	}
	if err := r.checkDeferred(bound); err != nil {
		return nil, err
	}
	return r, nil
}

func planned(l parse.Literal) bool {
	switch l.Kind {
	case parse.LitAtom:
		return !l.Negated
	case parse.LitComparison, parse.LitAggregate:
		return true
	}
	return false
}

func (r *rule) bind(bound map[string]bool, vars map[string]bool) {
	names := make([]string, 0, len(vars))
	for v := range vars {
		if v != "_" && !bound[v] {
			names = append(names, v)
		}
	}
	sort.Strings(names)
	for _, v := range names {
		bound[v] = true
		r.vars = append(r.vars, v)
	}
}

// checkDeferred verifies that every part not covered by the plan only
// reads bound variables: negated body atoms, constraint atoms and the
// head. Element conditions may bind additional local variables.
func (r *rule) checkDeferred(bound map[string]bool) error {
	for _, l := range r.src.Body {
		switch l.Kind {
		case parse.LitAtom:
			if !l.Negated {
				continue
			}
			if v, ok := missing(namedVars(termVarSet(l.Atom)), bound, nil); ok {
				return errors.Errorf("unsafe variable %s in rule %q", v, r.src)
			}
		case parse.LitTheory:
			if err := r.checkTheory(l.Theory, bound); err != nil {
				return err
			}
		}
	}
	switch r.src.Head.Kind {
	case parse.HeadAtom:
		if v, ok := missing(termVarSet(r.src.Head.Atom), bound, nil); ok {
			return errors.Errorf("unsafe variable %s in rule %q", v, r.src)
		}
	case parse.HeadChoice:
		for _, e := range r.src.Head.Choice.Elements {
			locals := condLocals(e.Condition)
			if v, ok := missing(termVarSet(e.Atom), bound, locals); ok {
				return errors.Errorf("unsafe variable %s in rule %q", v, r.src)
			}
			if err := r.checkCondition(e.Condition, bound, locals); err != nil {
				return err
			}
		}
	case parse.HeadTheory:
		if err := r.checkTheory(r.src.Head.Theory, bound); err != nil {
			return err
		}
	}
	return nil
}

func (r *rule) checkTheory(a *parse.TheoryAtom, bound map[string]bool) error {
	for _, e := range a.Elements {
		locals := condLocals(e.Condition)
		for _, t := range e.Terms {
			if v, ok := missing(termVarSet(t), bound, locals); ok {
				return errors.Errorf("unsafe variable %s in rule %q", v, r.src)
			}
		}
		if err := r.checkCondition(e.Condition, bound, locals); err != nil {
			return err
		}
	}
	if a.Guard != nil {
		if v, ok := missing(termVarSet(a.Guard.Term), bound, nil); ok {
			return errors.Errorf("unsafe variable %s in rule %q", v, r.src)
		}
	}
	return nil
}

func (r *rule) checkCondition(cond []parse.Literal, bound, locals map[string]bool) error {
	for _, l := range cond {
		var vars map[string]bool
		switch {
		case l.Kind == parse.LitAtom && !l.Negated:
			continue
		case l.Kind == parse.LitAtom:
			vars = namedVars(termVarSet(l.Atom))
		default:
			vars = litVarSet(l)
		}
		if v, ok := missing(vars, bound, locals); ok {
			return errors.Errorf("unsafe variable %s in rule %q", v, r.src)
		}
	}
	return nil
}

// condLocals returns the variables a condition binds through its positive
// atoms.
func condLocals(cond []parse.Literal) map[string]bool {
	out := map[string]bool{}
	for _, l := range cond {
		if l.Kind == parse.LitAtom && !l.Negated {
			for v := range termVarSet(l.Atom) {
				if v != "_" {
					out[v] = true
				}
			}
		}
	}
	return out
}

// aggNeed returns the aggregate variables that must be bound before
// evaluation: element variables shared with the rest of the rule, plus
// the bound term's variables unless it is the binding variable itself.
func aggNeed(src parse.Rule, idx int) map[string]bool {
	l := src.Body[idx]
	elsewhere := headVarSet(src.Head)
	for j, o := range src.Body {
		if j == idx {
			continue
		}
		for v := range litVarSet(o) {
			elsewhere[v] = true
		}
	}
	need := map[string]bool{}
	for _, e := range l.Agg.Elements {
		for _, t := range e.Terms {
			for v := range termVarSet(t) {
				if elsewhere[v] {
					need[v] = true
				}
			}
		}
		for _, c := range e.Condition {
			for v := range litVarSet(c) {
				if elsewhere[v] {
					need[v] = true
				}
			}
		}
	}
	if l.Bind.Kind != parse.Variable {
		for v := range termVarSet(l.Bind) {
			need[v] = true
		}
	}
	return need
}

func termVarSet(t parse.Term) map[string]bool {
	out := map[string]bool{}
	collectTermVars(t, out)
	return out
}

func collectTermVars(t parse.Term, out map[string]bool) {
	if t.Kind == parse.Variable {
		out[t.Name] = true
		return
	}
	for _, a := range t.Args {
		collectTermVars(a, out)
	}
}

func litVarSet(l parse.Literal) map[string]bool {
	out := map[string]bool{}
	switch l.Kind {
	case parse.LitAtom:
		collectTermVars(l.Atom, out)
	case parse.LitComparison:
		collectTermVars(l.Left, out)
		collectTermVars(l.Right, out)
	case parse.LitTheory:
		for _, e := range l.Theory.Elements {
			for _, t := range e.Terms {
				collectTermVars(t, out)
			}
			for _, c := range e.Condition {
				for v := range litVarSet(c) {
					out[v] = true
				}
			}
		}
		if l.Theory.Guard != nil {
			collectTermVars(l.Theory.Guard.Term, out)
		}
	case parse.LitAggregate:
		collectTermVars(l.Bind, out)
		for _, e := range l.Agg.Elements {
			for _, t := range e.Terms {
				collectTermVars(t, out)
			}
			for _, c := range e.Condition {
				for v := range litVarSet(c) {
					out[v] = true
				}
			}
		}
	}
	return out
}

func headVarSet(h parse.Head) map[string]bool {
	out := map[string]bool{}
	switch h.Kind {
	case parse.HeadAtom:
		collectTermVars(h.Atom, out)
	case parse.HeadChoice:
		for _, e := range h.Choice.Elements {
			collectTermVars(e.Atom, out)
			for _, c := range e.Condition {
				for v := range litVarSet(c) {
					out[v] = true
				}
			}
		}
	case parse.HeadTheory:
		for v := range litVarSet(parse.Literal{Kind: parse.LitTheory, Theory: h.Theory}) {
			out[v] = true
		}
	}
	return out
}

func namedVars(vars map[string]bool) map[string]bool {
	delete(vars, "_")
	return vars
}

func covered(need, bound, locals map[string]bool) bool {
	_, miss := missing(need, bound, locals)
	return !miss
}

// missing returns the alphabetically first variable of need that neither
// bound nor locals cover.
func missing(need, bound, locals map[string]bool) (string, bool) {
	var out []string
	for v := range need {
		if !bound[v] && !locals[v] {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return "", false
	}
	sort.Strings(out)
	return out[0], true
}

func hasInterval(t parse.Term) bool {
	if t.Kind == parse.Function && t.Name == ".." {
		return true
	}
	for _, a := range t.Args {
		if hasInterval(a) {
			return true
		}
	}
	return false
}

// expandPools multiplies a rule over every pool it contains. Pools in
// normal heads and body literals produce separate rules, pools inside
// choice or constraint-atom elements extend the element list in place.
func expandPools(src parse.Rule) ([]parse.Rule, error) {
	heads, err := headVariants(src.Head)
	if err != nil {
		return nil, err
	}
	bodies, err := bodyVariants(src.Body)
	if err != nil {
		return nil, err
	}
	out := make([]parse.Rule, 0, len(heads)*len(bodies))
	for _, h := range heads {
		for _, b := range bodies {
			out = append(out, parse.Rule{Head: h, Body: b})
		}
	}
	return out, nil
}

func headVariants(h parse.Head) ([]parse.Head, error) {
	switch h.Kind {
	case parse.HeadAtom:
		var out []parse.Head
		for _, t := range poolVariants(h.Atom) {
			out = append(out, parse.Head{Kind: parse.HeadAtom, Atom: t})
		}
		return out, nil
	case parse.HeadChoice:
		c := &parse.Choice{Lower: h.Choice.Lower, Upper: h.Choice.Upper}
		for _, e := range h.Choice.Elements {
			vs, err := elemVariants(e.Atom, e.Condition)
			if err != nil {
				return nil, err
			}
			for _, v := range vs {
				c.Elements = append(c.Elements, parse.ChoiceElem{Atom: v.atom, Condition: v.cond})
			}
		}
		return []parse.Head{{Kind: parse.HeadChoice, Choice: c}}, nil
	case parse.HeadTheory:
		a, err := theoryVariant(h.Theory)
		if err != nil {
			return nil, err
		}
		return []parse.Head{{Kind: parse.HeadTheory, Theory: a}}, nil
	}
	return []parse.Head{h}, nil
}

func bodyVariants(body []parse.Literal) ([][]parse.Literal, error) {
	out := [][]parse.Literal{nil}
	for _, l := range body {
		vs, err := litVariants(l)
		if err != nil {
			return nil, err
		}
		var next [][]parse.Literal
		for _, prefix := range out {
			for _, v := range vs {
				ext := append(prefix[:len(prefix):len(prefix)], v)
				next = append(next, ext)
			}
		}
		out = next
	}
	return out, nil
}

func litVariants(l parse.Literal) ([]parse.Literal, error) {
	switch l.Kind {
	case parse.LitAtom:
		var out []parse.Literal
		for _, t := range poolVariants(l.Atom) {
			v := l
			v.Atom = t
			out = append(out, v)
		}
		return out, nil
	case parse.LitComparison:
		var out []parse.Literal
		for _, lt := range poolVariants(l.Left) {
			for _, rt := range poolVariants(l.Right) {
				v := l
				v.Left, v.Right = lt, rt
				out = append(out, v)
			}
		}
		return out, nil
	case parse.LitTheory:
		a, err := theoryVariant(l.Theory)
		if err != nil {
			return nil, err
		}
		v := l
		v.Theory = a
		return []parse.Literal{v}, nil
	case parse.LitAggregate:
		agg := &parse.Aggregate{Fn: l.Agg.Fn}
		for _, e := range l.Agg.Elements {
			vs, err := tupleVariants(e.Terms, e.Condition)
			if err != nil {
				return nil, err
			}
			for _, t := range vs {
				agg.Elements = append(agg.Elements, parse.AggElem{Terms: t.terms, Condition: t.cond})
			}
		}
		v := l
		v.Agg = agg
		return []parse.Literal{v}, nil
	}
	return []parse.Literal{l}, nil
}

func theoryVariant(a *parse.TheoryAtom) (*parse.TheoryAtom, error) {
	out := &parse.TheoryAtom{Kind: a.Kind}
	for _, e := range a.Elements {
		vs, err := tupleVariants(e.Terms, e.Condition)
		if err != nil {
			return nil, err
		}
		for _, t := range vs {
			out.Elements = append(out.Elements, parse.TheoryElem{Terms: t.terms, Condition: t.cond})
		}
	}
	if a.Guard != nil {
		ts := poolVariants(a.Guard.Term)
		if len(ts) != 1 {
			return nil, errors.Errorf("pool in constraint atom guard %s", a)
		}
		out.Guard = &parse.TheoryGuard{Rel: a.Guard.Rel, Term: ts[0]}
	}
	return out, nil
}

type atomVariant struct {
	atom parse.Term
	cond []parse.Literal
}

func elemVariants(atom parse.Term, cond []parse.Literal) ([]atomVariant, error) {
	conds, err := bodyVariants(cond)
	if err != nil {
		return nil, err
	}
	var out []atomVariant
	for _, a := range poolVariants(atom) {
		for _, c := range conds {
			out = append(out, atomVariant{atom: a, cond: c})
		}
	}
	return out, nil
}

type tupleVariant struct {
	terms []parse.Term
	cond  []parse.Literal
}

func tupleVariants(terms []parse.Term, cond []parse.Literal) ([]tupleVariant, error) {
	tuples := [][]parse.Term{nil}
	for _, t := range terms {
		var next [][]parse.Term
		for _, prefix := range tuples {
			for _, v := range poolVariants(t) {
				next = append(next, append(prefix[:len(prefix):len(prefix)], v))
			}
		}
		tuples = next
	}
	conds, err := bodyVariants(cond)
	if err != nil {
		return nil, err
	}
	var out []tupleVariant
	for _, ts := range tuples {
		for _, c := range conds {
			out = append(out, tupleVariant{terms: ts, cond: c})
		}
	}
	return out, nil
}

func poolVariants(t parse.Term) []parse.Term {
	if t.Kind == parse.Pool {
		var out []parse.Term
		for _, a := range t.Args {
			out = append(out, poolVariants(a)...)
		}
		return out
	}
	if len(t.Args) == 0 {
		return []parse.Term{t}
	}
	args := [][]parse.Term{nil}
	for _, a := range t.Args {
		var next [][]parse.Term
		for _, prefix := range args {
			for _, v := range poolVariants(a) {
				next = append(next, append(prefix[:len(prefix):len(prefix)], v))
			}
		}
		args = next
	}
	out := make([]parse.Term, 0, len(args))
	for _, as := range args {
		out = append(out, parse.Term{Kind: t.Kind, Name: t.Name, Num: t.Num, Args: as})
	}
	return out
}
