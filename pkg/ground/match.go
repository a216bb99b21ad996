package ground

import (
	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/parse"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/theory"
)

// binding maps rule variables to ground terms.
type binding map[string]theory.Term

func (b binding) clone() binding {
	out := make(binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// match unifies a pattern with a ground term, extending the binding. It
// returns the newly bound names so the caller can undo them. Arithmetic
// subterms of the pattern match by value and therefore need their
// variables bound already; intervals match any number within range.
func match(pat parse.Term, t theory.Term, sub binding) ([]string, bool) {
	switch pat.Kind {
	case parse.Number:
		return nil, t.Kind == theory.Number && t.Num == pat.Num
	case parse.Symbol:
		return nil, t.Kind == theory.Symbol && t.Name == pat.Name
	case parse.Variable:
		if pat.Anonymous() {
			return nil, true
		}
		if v, ok := sub[pat.Name]; ok {
			return nil, v.Equal(t)
		}
		sub[pat.Name] = t
		return []string{pat.Name}, true
	case parse.Function:
		if pat.Name == ".." && len(pat.Args) == 2 {
			lo, okl := resolve(pat.Args[0], sub)
			hi, okh := resolve(pat.Args[1], sub)
			if !okl || !okh || lo.Kind != theory.Number || hi.Kind != theory.Number {
				return nil, false
			}
			return nil, t.Kind == theory.Number && lo.Num <= t.Num && t.Num <= hi.Num
		}
		if operatorName(pat.Name) {
			v, ok := resolve(pat, sub)
			return nil, ok && v.Equal(t)
		}
		if t.Kind != theory.Function || t.Name != pat.Name || len(t.Args) != len(pat.Args) {
			return nil, false
		}
		return matchArgs(pat.Args, t.Args, sub)
	case parse.Tuple:
		if t.Kind != theory.Tuple || len(t.Args) != len(pat.Args) {
			return nil, false
		}
		return matchArgs(pat.Args, t.Args, sub)
	}
	return nil, false
}

func matchArgs(pats []parse.Term, ts []theory.Term, sub binding) ([]string, bool) {
	var bound []string
	for i, p := range pats {
		names, ok := match(p, ts[i], sub)
		bound = append(bound, names...)
		if !ok {
			unbind(sub, bound)
			return nil, false
		}
	}
	return bound, true
}

func unbind(sub binding, names []string) {
	for _, n := range names {
		delete(sub, n)
	}
}

// subst replaces the pattern's variables by their bound terms.
func subst(pat parse.Term, sub binding) (theory.Term, error) {
	switch pat.Kind {
	case parse.Number:
		return theory.Num(pat.Num), nil
	case parse.Symbol:
		return theory.Sym(pat.Name), nil
	case parse.Variable:
		if v, ok := sub[pat.Name]; ok {
			return v, nil
		}
		return theory.Term{}, errors.Errorf("unbound variable %s", pat.Name)
	case parse.Function, parse.Tuple:
		args := make([]theory.Term, len(pat.Args))
		for i, a := range pat.Args {
			v, err := subst(a, sub)
			if err != nil {
				return theory.Term{}, err
			}
			args[i] = v
		}
		kind := theory.Function
		if pat.Kind == parse.Tuple {
			kind = theory.Tuple
		}
		return theory.Term{Kind: kind, Name: pat.Name, Args: args}, nil
	}
	return theory.Term{}, errors.Errorf("cannot instantiate %s", pat)
}

// resolve substitutes and fully evaluates a pattern, failing softly on
// unbound variables or invalid arithmetic.
func resolve(pat parse.Term, sub binding) (theory.Term, bool) {
	t, err := subst(pat, sub)
	if err != nil {
		return theory.Term{}, false
	}
	v, err := theory.Eval(t)
	if err != nil {
		return theory.Term{}, false
	}
	return v, true
}

// evalNumeric folds arithmetic over fully numeric operands and leaves
// mixed subterms intact for the linearizer.
func evalNumeric(t theory.Term) (theory.Term, error) {
	if len(t.Args) == 0 {
		return t, nil
	}
	args := make([]theory.Term, len(t.Args))
	numeric := true
	for i, a := range t.Args {
		v, err := evalNumeric(a)
		if err != nil {
			return theory.Term{}, err
		}
		args[i] = v
		if v.Kind != theory.Number {
			numeric = false
		}
	}
	out := theory.Term{Kind: t.Kind, Name: t.Name, Args: args}
	if t.Kind == theory.Function && numeric && arithName(t.Name) {
		return theory.Eval(out)
	}
	return out, nil
}

func arithName(name string) bool {
	switch name {
	case "+", "-", "*", "/", "\\", "**":
		return true
	}
	return false
}

// expandIntervals replaces every interval over numeric bounds by its
// values, multiplying out the enclosing term.
func expandIntervals(t theory.Term) ([]theory.Term, error) {
	if t.Kind == theory.Function && t.Name == ".." && len(t.Args) == 2 {
		lo, err := theory.Eval(t.Args[0])
		if err != nil {
			return nil, err
		}
		hi, err := theory.Eval(t.Args[1])
		if err != nil {
			return nil, err
		}
		if lo.Kind != theory.Number || hi.Kind != theory.Number {
			return nil, errors.Errorf("invalid interval %s", t)
		}
		var out []theory.Term
		for n := lo.Num; n <= hi.Num; n++ {
			out = append(out, theory.Num(n))
		}
		return out, nil
	}
	if len(t.Args) == 0 {
		return []theory.Term{t}, nil
	}
	args := [][]theory.Term{nil}
	for _, a := range t.Args {
		vs, err := expandIntervals(a)
		if err != nil {
			return nil, err
		}
		var next [][]theory.Term
		for _, prefix := range args {
			for _, v := range vs {
				next = append(next, append(prefix[:len(prefix):len(prefix)], v))
			}
		}
		args = next
	}
	out := make([]theory.Term, 0, len(args))
	for _, as := range args {
		out = append(out, theory.Term{Kind: t.Kind, Name: t.Name, Num: t.Num, Args: as})
	}
	return out, nil
}

// atomInstances instantiates a head or element atom, expanding intervals
// and evaluating arithmetic in argument positions.
func atomInstances(pat parse.Term, sub binding) ([]theory.Term, error) {
	t, err := subst(pat, sub)
	if err != nil {
		return nil, err
	}
	variants, err := expandIntervals(t)
	if err != nil {
		return nil, err
	}
	out := make([]theory.Term, 0, len(variants))
	for _, v := range variants {
		e, err := theory.Eval(v)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// evalCompare decides a ground comparison literal.
func evalCompare(l parse.Literal, sub binding) (bool, error) {
	lt, err := subst(l.Left, sub)
	if err != nil {
		return false, err
	}
	lv, err := theory.Eval(lt)
	if err != nil {
		return false, err
	}
	rt, err := subst(l.Right, sub)
	if err != nil {
		return false, err
	}
	rv, err := theory.Eval(rt)
	if err != nil {
		return false, err
	}
	c := lv.Compare(rv)
	var ok bool
	switch l.Rel {
	case program.RelLT:
		ok = c < 0
	case program.RelLE:
		ok = c <= 0
	case program.RelGT:
		ok = c > 0
	case program.RelGE:
		ok = c >= 0
	case program.RelEQ:
		ok = c == 0
	case program.RelNE:
		ok = c != 0
	default:
		return false, errors.Errorf("invalid comparison %s", l)
	}
	if l.Negated {
		ok = !ok
	}
	return ok, nil
}

func predOfTerm(t theory.Term) pred {
	return pred{name: t.Name, arity: len(t.Args)}
}

// combinations enumerates the k-subsets of atoms in index order.
func combinations(n, k int, fn func(idx []int)) {
	idx := make([]int, 0, k)
	var rec func(start int)
	rec = func(start int) {
		if len(idx) == k {
			fn(idx)
			return
		}
		for i := start; i <= n-(k-len(idx)); i++ {
			idx = append(idx, i)
			rec(i + 1)
			idx = idx[:len(idx)-1]
		}
	}
	rec(0)
}

func binom(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	out := 1
	for i := 0; i < k; i++ {
		out = out * (n - i) / (i + 1)
		if out > 1<<20 {
			return 1 << 20
		}
	}
	return out
}
