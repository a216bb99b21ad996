// Package theory provides the representation of constraint theory terms.
//
// Terms form a closed variant: a term is a number, a symbol, a function
// with arguments, or a tuple. Arithmetic subterms are kept symbolic until
// they are evaluated during constraint parsing, so the same representation
// serves both the parser and the translator.
package theory

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates the term variant.
type Kind uint8

const (
	// Number is an integer constant.
	Number Kind = iota
	// Symbol is a constant without arguments.
	Symbol
	// Function is a symbol applied to one or more arguments. Arithmetic
	// operators are represented as functions named "+", "-", "*", "/",
	// "\\", "**" and "..".
	Function
	// Tuple is a sequence of terms.
	Tuple
)

// Term is a single node of the theory term tree.
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

// Fun returns a function term. A function without arguments collapses to a
// symbol so that interning treats f and f() as the same term.
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

// IsNumber reports whether the term is an integer constant.
func (t Term) IsNumber() bool {
	return t.Kind == Number
}

// Match reports whether the term is a symbol or function with the given name
// and arity.
func (t Term) Match(name string, arity int) bool {
	return (t.Kind == Symbol || t.Kind == Function) && t.Name == name && len(t.Args) == arity
}

// Equal reports structural equality.
func (t Term) Equal(o Term) bool {
	if t.Kind != o.Kind || t.Name != o.Name || t.Num != o.Num || len(t.Args) != len(o.Args) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

// String renders the term the way it is printed in models, e.g. f(a,3) or
// (a,b).
func (t Term) String() string {
	var b strings.Builder
	t.render(&b)
	return b.String()
}

func (t Term) render(b *strings.Builder) {
	switch t.Kind {
	case Number:
		b.WriteString(strconv.Itoa(t.Num))
	case Symbol:
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

// Compare orders terms numbers first, then by name, arity and arguments.
// It gives the deterministic ordering used for model output.
func (t Term) Compare(o Term) int {
	if t.Kind == Number || o.Kind == Number {
		switch {
		case t.Kind != Number:
			return 1
		case o.Kind != Number:
			return -1
		case t.Num < o.Num:
			return -1
		case t.Num > o.Num:
			return 1
		default:
			return 0
		}
	}
	if c := strings.Compare(t.String(), o.String()); c != 0 {
		return c
	}
	return 0
}

// SortTerms sorts terms in place using Compare.
func SortTerms(ts []Term) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Compare(ts[j]) < 0 })
}

// Eval evaluates all arithmetic subterms. Symbols and functions evaluate to
// themselves with evaluated arguments, so x(f(1+2)) becomes x(f(3)). Errors
// are reported for non-integer operands, division by zero and negative
// exponents.
func Eval(t Term) (Term, error) {
	switch t.Kind {
	case Number:
		return t, nil
	case Tuple:
		args := make([]Term, len(t.Args))
		for i, a := range t.Args {
			v, err := Eval(a)
			if err != nil {
				return Term{}, err
			}
			args[i] = v
		}
		return Tup(args...), nil
	case Symbol:
		return t, nil
	case Function:
		if len(t.Args) == 2 && isArith(t.Name) {
			a, err := Eval(t.Args[0])
			if err != nil {
				return Term{}, err
			}
			b, err := Eval(t.Args[1])
			if err != nil {
				return Term{}, err
			}
			if !a.IsNumber() || !b.IsNumber() {
				return Term{}, errors.Errorf("invalid binary operation: %s", t)
			}
			n, err := apply(t.Name, a.Num, b.Num)
			if err != nil {
				return Term{}, err
			}
			return Num(n), nil
		}
		if t.Name == "-" && len(t.Args) == 1 {
			a, err := Eval(t.Args[0])
			if err != nil {
				return Term{}, err
			}
			if !a.IsNumber() {
				return Term{}, errors.Errorf("invalid unary operation: %s", t)
			}
			return Num(-a.Num), nil
		}
		if t.Name == "+" && len(t.Args) == 1 {
			a, err := Eval(t.Args[0])
			if err != nil {
				return Term{}, err
			}
			if !a.IsNumber() {
				return Term{}, errors.Errorf("invalid unary operation: %s", t)
			}
			return a, nil
		}
		args := make([]Term, len(t.Args))
		for i, a := range t.Args {
			v, err := Eval(a)
			if err != nil {
				return Term{}, err
			}
			args[i] = v
		}
		return Term{Kind: Function, Name: t.Name, Args: args}, nil
	}
	return Term{}, errors.Errorf("invalid term")
}

func isArith(name string) bool {
	switch name {
	case "+", "-", "*", "/", "\\", "**":
		return true
	}
	return false
}

// apply implements the arithmetic of ground terms. Division and modulo
// follow flooring semantics.
func apply(op string, a, b int) (int, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return FloorDiv(a, b), nil
	case "\\":
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a - FloorDiv(a, b)*b, nil
	case "**":
		if b < 0 {
			return 0, errors.Errorf("negative exponent: %d**%d", a, b)
		}
		r := 1
		for i := 0; i < b; i++ {
			r *= a
		}
		return r, nil
	}
	return 0, errors.Errorf("unknown operator %q", op)
}

// FloorDiv divides rounding towards negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CeilDiv divides rounding towards positive infinity.
func CeilDiv(a, b int) int {
	return -FloorDiv(-a, b)
}

// Vars collects the integer variables occurring in a term. Arithmetic
// operators are traversed; any other symbol, function or tuple is itself a
// variable. The result preserves first-occurrence order.
func Vars(t Term) []Term {
	var out []Term
	collectVars(t, &out)
	return out
}

func collectVars(t Term, out *[]Term) {
	switch {
	case t.Kind == Number:
	case t.Match("-", 2) || t.Match("+", 2) || t.Match("*", 2) || t.Match("..", 2):
		collectVars(t.Args[0], out)
		collectVars(t.Args[1], out)
	case t.Match("-", 1) || t.Match("+", 1):
		collectVars(t.Args[0], out)
	default:
		for _, seen := range *out {
			if seen.Equal(t) {
				return
			}
		}
		*out = append(*out, t)
	}
}
