// Package ground instantiates parsed programs over their derivable atom
// base. Predicates the program fixes deterministically are evaluated
// bottom-up per stratum and emitted as facts; everything else is grounded
// by a semi-naive fixpoint over the possibly-derivable atoms, with
// negation and constraint atoms expanded once that base is complete.
package ground

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/parse"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

// Ground instantiates src over st and returns the ground program.
func Ground(src *parse.Program, st *store.Store, logger *logrus.Logger) (*program.Program, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	g := &grounder{
		st:          st,
		prg:         program.New(st),
		logger:      logger,
		inexact:     map[pred]bool{},
		certainDB:   newDB(),
		possDB:      newDB(),
		certain:     map[store.Atom]bool{},
		possSet:     map[store.Atom]bool{},
		instSet:     map[string]bool{},
		theoryAtoms: map[string]*program.TheoryAtom{},
		condAux:     map[string]store.Lit{},
	}
	for _, s := range src.Shows {
		g.prg.Shows = append(g.prg.Shows, program.Show{Name: s.Name, Arity: s.Arity})
	}
	if err := g.analyze(src.Rules); err != nil {
		return nil, err
	}
	if err := g.exactLayer(); err != nil {
		return nil, err
	}
	if err := g.possibleFixpoint(); err != nil {
		return nil, err
	}
	if err := g.emit(); err != nil {
		return nil, err
	}
	g.logger.WithFields(logrus.Fields{
		"rules":     len(g.prg.Rules),
		"atoms":     st.Len(),
		"instances": len(g.instances),
		"facts":     g.facts,
	}).Debug("grounded program")
	return g.prg, nil
}

type grounder struct {
	st     *store.Store
	prg    *program.Program
	logger *logrus.Logger

	rules   []*rule
	inexact map[pred]bool
	maxStr  int

	certainDB *db
	possDB    *db
	certain   map[store.Atom]bool
	possSet   map[store.Atom]bool

	instances []*instance
	instSet   map[string]bool

	theoryAtoms map[string]*program.TheoryAtom
	condAux     map[string]store.Lit

	facts int
}

// instance is one recorded firing of a rule, kept until emission.
type instance struct {
	rule *rule
	sub  binding
}

func instKey(r *rule, sub binding) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.index))
	for _, v := range r.vars {
		b.WriteByte('|')
		b.WriteString(sub[v].String())
	}
	return b.String()
}

func (g *grounder) analyze(src []parse.Rule) error {
	for _, r := range src {
		expanded, err := expandPools(r)
		if err != nil {
			return err
		}
		for _, e := range expanded {
			rr, err := buildRule(len(g.rules), e)
			if err != nil {
				return err
			}
			g.rules = append(g.rules, rr)
		}
	}
	g.markExact()
	return g.stratify()
}

// markExact decides which predicates the program fixes deterministically.
// Choice heads are never exact, and exactness is lost through any
// dependency on a non-exact predicate or on a constraint atom.
func (g *grounder) markExact() {
	for _, r := range g.rules {
		if r.src.Head.Kind == parse.HeadChoice {
			for _, e := range r.src.Head.Choice.Elements {
				if p, ok := predOf(e.Atom); ok {
					g.inexact[p] = true
				}
			}
		}
	}
	for changed := true; changed; {
		changed = false
		for _, r := range g.rules {
			if r.src.Head.Kind != parse.HeadAtom {
				continue
			}
			h, ok := predOf(r.src.Head.Atom)
			if !ok || g.inexact[h] {
				continue
			}
			if g.tainted(r) {
				g.inexact[h] = true
				changed = true
			}
		}
	}
	for _, r := range g.rules {
		if r.src.Head.Kind == parse.HeadAtom {
			h, _ := predOf(r.src.Head.Atom)
			r.exact = !g.inexact[h]
		}
	}
}

func (g *grounder) tainted(r *rule) bool {
	for _, l := range r.src.Body {
		switch l.Kind {
		case parse.LitTheory:
			return true
		case parse.LitAtom:
			if p, ok := predOf(l.Atom); ok && g.inexact[p] {
				return true
			}
		case parse.LitAggregate:
			for _, e := range l.Agg.Elements {
				for _, c := range e.Condition {
					if c.Kind != parse.LitAtom {
						continue
					}
					if p, ok := predOf(c.Atom); ok && g.inexact[p] {
						return true
					}
				}
			}
		}
	}
	return false
}

// stratify layers the exact rules so that negation and aggregates only
// reach into fully evaluated strata.
func (g *grounder) stratify() error {
	stratum := map[pred]int{}
	preds := map[pred]bool{}
	for _, r := range g.rules {
		if r.exact {
			h, _ := predOf(r.src.Head.Atom)
			preds[h] = true
		}
	}
	for iter := 0; ; iter++ {
		if iter > len(preds)+1 {
			return errors.New("program is not stratified")
		}
		changed := false
		for _, r := range g.rules {
			if !r.exact {
				continue
			}
			h, _ := predOf(r.src.Head.Atom)
			s := 0
			for _, l := range r.src.Body {
				switch l.Kind {
				case parse.LitAtom:
					p, ok := predOf(l.Atom)
					if !ok {
						continue
					}
					if l.Negated {
						if stratum[p]+1 > s {
							s = stratum[p] + 1
						}
					} else if stratum[p] > s {
						s = stratum[p]
					}
				case parse.LitAggregate:
					for _, e := range l.Agg.Elements {
						for _, c := range e.Condition {
							if c.Kind != parse.LitAtom {
								continue
							}
							if p, ok := predOf(c.Atom); ok && stratum[p]+1 > s {
								s = stratum[p] + 1
							}
						}
					}
				}
			}
			if s > stratum[h] {
				stratum[h] = s
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	for _, r := range g.rules {
		if r.exact {
			h, _ := predOf(r.src.Head.Atom)
			r.stratum = stratum[h]
			if r.stratum > g.maxStr {
				g.maxStr = r.stratum
			}
		}
	}
	return nil
}

// exactLayer evaluates the exact rules stratum by stratum, emitting every
// derived atom as a fact.
func (g *grounder) exactLayer() error {
	for s := 0; s <= g.maxStr; s++ {
		var rules []*rule
		for _, r := range g.rules {
			if r.exact && r.stratum == s {
				rules = append(rules, r)
			}
		}
		if len(rules) == 0 {
			continue
		}
		g.certainDB.seal()
		for _, r := range rules {
			r := r
			err := g.runRule(r, -1, g.certainDB, func(sub binding) error {
				return g.deriveExact(r, sub)
			})
			if err != nil {
				return err
			}
		}
		for g.certainDB.window() {
			for _, r := range rules {
				r := r
				for j := 0; j < r.matches; j++ {
					err := g.runRule(r, j, g.certainDB, func(sub binding) error {
						return g.deriveExact(r, sub)
					})
					if err != nil {
						return err
					}
				}
			}
			g.certainDB.advance()
		}
	}
	return nil
}

func (g *grounder) deriveExact(r *rule, sub binding) error {
	for _, l := range r.src.Body {
		if l.Kind == parse.LitAtom && l.Negated {
			if dies, _ := g.negate(g.certainDB, l.Atom, sub); dies {
				return nil
			}
		}
	}
	ts, err := atomInstances(r.src.Head.Atom, sub)
	if err != nil {
		return errors.Wrapf(err, "in rule %q", r.src)
	}
	for _, t := range ts {
		a := g.st.Atom(t)
		if g.certain[a] {
			continue
		}
		g.certain[a] = true
		g.possSet[a] = true
		p := predOfTerm(t)
		g.certainDB.add(p, t)
		g.possDB.add(p, t)
		g.prg.AddRule([]store.Atom{a}, nil)
		g.facts++
	}
	return nil
}

// possibleFixpoint grounds the remaining rules over everything that could
// be derived, recording instances for emission. Negated literals are
// ignored here; the base this computes over-approximates every answer
// set.
func (g *grounder) possibleFixpoint() error {
	var rules []*rule
	for _, r := range g.rules {
		if !r.exact {
			rules = append(rules, r)
		}
	}
	g.possDB.seal()
	for _, r := range rules {
		if err := g.runRule(r, -1, g.possDB, g.record(r)); err != nil {
			return err
		}
	}
	for {
		if err := g.choicePossibles(); err != nil {
			return err
		}
		if !g.possDB.window() {
			return nil
		}
		for _, r := range rules {
			for j := 0; j < r.matches; j++ {
				if err := g.runRule(r, j, g.possDB, g.record(r)); err != nil {
					return err
				}
			}
		}
		g.possDB.advance()
	}
}

func (g *grounder) record(r *rule) func(binding) error {
	return func(sub binding) error {
		key := instKey(r, sub)
		if g.instSet[key] {
			return nil
		}
		g.instSet[key] = true
		inst := &instance{rule: r, sub: sub.clone()}
		g.instances = append(g.instances, inst)
		if r.src.Head.Kind == parse.HeadAtom {
			ts, err := atomInstances(r.src.Head.Atom, inst.sub)
			if err != nil {
				return errors.Wrapf(err, "in rule %q", r.src)
			}
			for _, t := range ts {
				g.addPossible(t)
			}
		}
		return nil
	}
}

func (g *grounder) addPossible(t theory.Term) {
	a := g.st.Atom(t)
	if g.possSet[a] {
		return
	}
	g.possSet[a] = true
	g.possDB.add(predOfTerm(t), t)
}

// choicePossibles adds the atoms choice instances can derive, expanding
// their element conditions over the current possible base.
func (g *grounder) choicePossibles() error {
	for _, inst := range g.instances {
		if inst.rule.src.Head.Kind != parse.HeadChoice {
			continue
		}
		for _, e := range inst.rule.src.Head.Choice.Elements {
			e := e
			err := g.matchCondition(g.possDB, e.Condition, inst.sub, false, func(sub binding, _ []store.Lit) error {
				ts, err := atomInstances(e.Atom, sub)
				if err != nil {
					return errors.Wrapf(err, "in rule %q", inst.rule.src)
				}
				for _, t := range ts {
					g.addPossible(t)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *grounder) runRule(r *rule, deltaPos int, d *db, yield func(binding) error) error {
	return g.runStep(r, 0, deltaPos, d, binding{}, yield)
}

func (g *grounder) runStep(r *rule, i, deltaPos int, d *db, sub binding, yield func(binding) error) error {
	if i == len(r.plan) {
		return yield(sub)
	}
	s := r.plan[i]
	switch s.kind {
	case stepMatch:
		p, ok := predOf(s.lit.Atom)
		if !ok {
			return errors.Errorf("invalid body atom %s in rule %q", s.lit.Atom, r.src)
		}
		list := d.all(p)
		if s.pos == deltaPos {
			list = d.delta(p)
		}
		for _, t := range list {
			names, ok := match(s.lit.Atom, t, sub)
			if ok {
				if err := g.runStep(r, i+1, deltaPos, d, sub, yield); err != nil {
					unbind(sub, names)
					return err
				}
			}
			unbind(sub, names)
		}
		return nil
	case stepCompare:
		ok, err := evalCompare(s.lit, sub)
		if err != nil {
			return errors.Wrapf(err, "in rule %q", r.src)
		}
		if !ok {
			return nil
		}
		return g.runStep(r, i+1, deltaPos, d, sub, yield)
	default:
		v, ok, err := g.evalAggregate(s.lit, sub)
		if err != nil {
			return errors.Wrapf(err, "in rule %q", r.src)
		}
		if !ok {
			return nil
		}
		b := s.lit.Bind
		if b.Kind == parse.Variable && !b.Anonymous() {
			if cur, bound := sub[b.Name]; bound {
				if !cur.Equal(v) {
					return nil
				}
				return g.runStep(r, i+1, deltaPos, d, sub, yield)
			}
			sub[b.Name] = v
			err = g.runStep(r, i+1, deltaPos, d, sub, yield)
			delete(sub, b.Name)
			return err
		}
		if b.Kind == parse.Variable {
			return g.runStep(r, i+1, deltaPos, d, sub, yield)
		}
		w, ok := resolve(b, sub)
		if !ok || !w.Equal(v) {
			return nil
		}
		return g.runStep(r, i+1, deltaPos, d, sub, yield)
	}
}

// matchCondition enumerates the ground instantiations of an element
// condition over d. Positive atoms join, comparisons filter. With strict
// set, negated atoms are decided against the base and uncertain matches
// contribute residual body literals; without it they are ignored, which
// over-approximates as the possible fixpoint requires.
func (g *grounder) matchCondition(d *db, cond []parse.Literal, sub binding, strict bool, fn func(binding, []store.Lit) error) error {
	ordered := make([]parse.Literal, 0, len(cond))
	for _, l := range cond {
		if l.Kind == parse.LitAtom && !l.Negated {
			ordered = append(ordered, l)
		}
	}
	for _, l := range cond {
		if l.Kind == parse.LitComparison {
			ordered = append(ordered, l)
		}
	}
	for _, l := range cond {
		if l.Kind == parse.LitAtom && l.Negated {
			ordered = append(ordered, l)
		}
	}
	return g.condStep(d, ordered, sub, strict, nil, fn)
}

func (g *grounder) condStep(d *db, cond []parse.Literal, sub binding, strict bool, residual []store.Lit, fn func(binding, []store.Lit) error) error {
	if len(cond) == 0 {
		return fn(sub, residual)
	}
	l, rest := cond[0], cond[1:]
	switch {
	case l.Kind == parse.LitComparison:
		ok, err := evalCompare(l, sub)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return g.condStep(d, rest, sub, strict, residual, fn)
	case !l.Negated:
		p, ok := predOf(l.Atom)
		if !ok {
			return errors.Errorf("invalid condition atom %s", l.Atom)
		}
		for _, t := range d.all(p) {
			names, ok := match(l.Atom, t, sub)
			if ok {
				res := residual
				if a := g.st.Atom(t); !g.certain[a] {
					res = append(residual[:len(residual):len(residual)], store.Pos(a))
				}
				if err := g.condStep(d, rest, sub, strict, res, fn); err != nil {
					unbind(sub, names)
					return err
				}
			}
			unbind(sub, names)
		}
		return nil
	default:
		if !strict {
			return g.condStep(d, rest, sub, strict, residual, fn)
		}
		dies, lits := g.negate(d, l.Atom, sub)
		if dies {
			return nil
		}
		if len(lits) > 0 {
			residual = append(residual[:len(residual):len(residual)], lits...)
		}
		return g.condStep(d, rest, sub, strict, residual, fn)
	}
}

// negate decides a negated literal against the base: a certain match
// refutes it outright, merely possible matches become negative body
// literals, and no match at all lets it hold vacuously.
func (g *grounder) negate(d *db, pat parse.Term, sub binding) (bool, []store.Lit) {
	p, ok := predOf(pat)
	if !ok {
		return false, nil
	}
	var lits []store.Lit
	for _, t := range d.all(p) {
		names, ok := match(pat, t, sub)
		unbind(sub, names)
		if !ok {
			continue
		}
		a := g.st.Atom(t)
		if g.certain[a] {
			return true, nil
		}
		lits = append(lits, store.Neg(a))
	}
	return false, lits
}

// evalAggregate computes a body aggregate over the certain base. The
// element tuples form a set, so duplicates collapse before counting or
// summing. Empty #min and #max have no value and fail the instance.
func (g *grounder) evalAggregate(l parse.Literal, sub binding) (theory.Term, bool, error) {
	agg := l.Agg
	for _, e := range agg.Elements {
		for _, c := range e.Condition {
			if c.Kind != parse.LitAtom {
				continue
			}
			if p, ok := predOf(c.Atom); ok && g.inexact[p] {
				return theory.Term{}, false, errors.Errorf("aggregate over unstratified predicate %s/%d", p.name, p.arity)
			}
		}
	}
	seen := map[string]bool{}
	var vals []int
	for _, e := range agg.Elements {
		e := e
		err := g.matchCondition(g.certainDB, e.Condition, sub, true, func(s binding, _ []store.Lit) error {
			if len(e.Terms) == 0 {
				return errors.Errorf("empty aggregate element")
			}
			var key strings.Builder
			terms := make([]theory.Term, len(e.Terms))
			for i, t := range e.Terms {
				tt, err := subst(t, s)
				if err != nil {
					return err
				}
				v, err := theory.Eval(tt)
				if err != nil {
					return err
				}
				terms[i] = v
				key.WriteString(v.String())
				key.WriteByte('|')
			}
			if seen[key.String()] {
				return nil
			}
			seen[key.String()] = true
			if agg.Fn == parse.AggCount {
				return nil
			}
			if terms[0].Kind != theory.Number {
				return errors.Errorf("aggregate over non-integer term %s", terms[0])
			}
			vals = append(vals, terms[0].Num)
			return nil
		})
		if err != nil {
			return theory.Term{}, false, err
		}
	}
	switch agg.Fn {
	case parse.AggCount:
		return theory.Num(len(seen)), true, nil
	case parse.AggSum:
		s := 0
		for _, v := range vals {
			s += v
		}
		return theory.Num(s), true, nil
	default:
		if len(vals) == 0 {
			return theory.Term{}, false, nil
		}
		out := vals[0]
		for _, v := range vals[1:] {
			if agg.Fn == parse.AggMin && v < out || agg.Fn == parse.AggMax && v > out {
				out = v
			}
		}
		return theory.Num(out), true, nil
	}
}

// db indexes derived ground atoms by predicate, with a movable window
// marking the delta of the current semi-naive round.
type db struct {
	atoms map[pred][]theory.Term
	mark  map[pred]int
	cut   map[pred]int
}

func newDB() *db {
	return &db{atoms: map[pred][]theory.Term{}, mark: map[pred]int{}, cut: map[pred]int{}}
}

func (d *db) add(p pred, t theory.Term) {
	d.atoms[p] = append(d.atoms[p], t)
}

func (d *db) all(p pred) []theory.Term { return d.atoms[p] }

func (d *db) delta(p pred) []theory.Term {
	l := d.atoms[p]
	m, c := d.mark[p], d.cut[p]
	if c > len(l) {
		c = len(l)
	}
	if m >= c {
		return nil
	}
	return l[m:c]
}

// seal marks everything derived so far as old.
func (d *db) seal() {
	for p, l := range d.atoms {
		d.mark[p] = len(l)
		d.cut[p] = len(l)
	}
}

// window closes the next delta and reports whether it is non-empty.
func (d *db) window() bool {
	any := false
	for p, l := range d.atoms {
		d.cut[p] = len(l)
		if d.cut[p] > d.mark[p] {
			any = true
		}
	}
	return any
}

// advance moves the window past the processed delta.
func (d *db) advance() {
	for p, c := range d.cut {
		d.mark[p] = c
	}
}
