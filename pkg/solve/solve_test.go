package solve

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wanko/clingo/pkg/search"
)

func newSolver(t *testing.T, mode Mode, min, max int, opts ...Option) *Solver {
	t.Helper()
	all := append([]Option{WithBounds(min, max), WithMode(mode)}, opts...)
	s, err := New(all...)
	require.NoError(t, err)
	return s
}

func solveProgram(t *testing.T, mode Mode, src string, min, max int, opts ...Option) *Result {
	t.Helper()
	s := newSolver(t, mode, min, max, opts...)
	require.NoError(t, s.Add(src))
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	sortModels(res.Models)
	return res
}

func models(t *testing.T, mode Mode, src string, min, max int) []Model {
	t.Helper()
	return solveProgram(t, mode, src, min, max).Models
}

// sortModels orders models by atoms, then by assignments, so enumerations
// compare independently of the search trajectory.
func sortModels(ms []Model) {
	sort.Slice(ms, func(i, j int) bool { return modelLess(ms[i], ms[j]) })
}

func modelLess(a, b Model) bool {
	for i := 0; i < len(a.Atoms) && i < len(b.Atoms); i++ {
		if a.Atoms[i] != b.Atoms[i] {
			return a.Atoms[i] < b.Atoms[i]
		}
	}
	if len(a.Atoms) != len(b.Atoms) {
		return len(a.Atoms) < len(b.Atoms)
	}
	for i := 0; i < len(a.Assignments) && i < len(b.Assignments); i++ {
		x, y := a.Assignments[i], b.Assignments[i]
		if x.Name != y.Name {
			return x.Name < y.Name
		}
		if x.Value != y.Value {
			return x.Value < y.Value
		}
	}
	return len(a.Assignments) < len(b.Assignments)
}

func TestEmptyProgram(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, search.Satisfiable, res.Status)
	require.Equal(t, []Model{{}}, res.Models)
}

func TestDefaultBounds(t *testing.T) {
	res := solveProgram(t, ModeCSP, "&sum { x } = 20.", -20, 20)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 20, true}}},
	}, res.Models)

	res = solveProgram(t, ModeCSP, "&sum { x } = 21.", -20, 20)
	require.Equal(t, search.Unsatisfiable, res.Status)
	require.Empty(t, res.Models)
}

func TestCSPSimple(t *testing.T) {
	got := models(t, ModeCSP, `
		&sum {   1 *y + (-5)*x } <= 0.
		&sum { (-1)*y +   5 *x } <= 0.
		&sum { 15*x } <= 15.
		&sum { 10*x } <= 7.
	`, -20, 20)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", -4, true}, {"y", -20, true}}},
		{Assignments: []Assignment{{"x", -3, true}, {"y", -15, true}}},
		{Assignments: []Assignment{{"x", -2, true}, {"y", -10, true}}},
		{Assignments: []Assignment{{"x", -1, true}, {"y", -5, true}}},
		{Assignments: []Assignment{{"x", 0, true}, {"y", 0, true}}},
	}, got)

	// variables with a leading underscore stay hidden
	got = models(t, ModeCSP, `
		&sum {   1 *even + (-2)*_i } <= 0.
		&sum { (-1)*even +   2 *_i } <= 0.
		&sum {   1 *odd + (-2)*_i } <=  1.
		&sum { (-1)*odd +   2 *_i } <= -1.
	`, -2, 2)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"even", -2, true}, {"odd", -1, true}}},
		{Assignments: []Assignment{{"even", 0, true}, {"odd", 1, true}}},
	}, got)

	got = models(t, ModeCSP, `
		a :- &sum { -1*x } <= 0.
		b :- &sum { 1*x } <= 5.
		:- not a.
		:- not b.
	`, -20, 20)
	want := make([]Model, 0, 6)
	for x := 0; x <= 5; x++ {
		want = append(want, Model{Atoms: []string{"a", "b"}, Assignments: []Assignment{{"x", x, true}}})
	}
	require.Equal(t, want, got)

	res := solveProgram(t, ModeCSP, `
		&sum { 1 * x + (-1) * y } <= -1.
		&sum { 1 * y + (-1) * x } <= -1.
	`, -20, 20)
	require.Equal(t, search.Unsatisfiable, res.Status)
	require.Empty(t, res.Models)

	require.Equal(t, []Model{{}}, models(t, ModeCSP, "&sum { 1 } <= 2.", -20, 20))
	require.Empty(t, models(t, ModeCSP, "&sum { 2 } <= 1.", -20, 20))

	got = models(t, ModeCSP, `
		{a}.
		&sum {   1 *x } <= -5 :- a.
		&sum { (-1)*x } <= -5 :- not a.
	`, -6, 6)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 5, true}}},
		{Assignments: []Assignment{{"x", 6, true}}},
		{Atoms: []string{"a"}, Assignments: []Assignment{{"x", -6, true}}},
		{Atoms: []string{"a"}, Assignments: []Assignment{{"x", -5, true}}},
	}, got)
}

func TestCSPParse(t *testing.T) {
	single := func(src, name string) {
		t.Helper()
		require.Equal(t, []Model{
			{Assignments: []Assignment{{name, 0, true}}},
		}, models(t, ModeCSP, src, 0, 0))
	}
	single("&sum { x(f(1+2)) } <= 0.", "x(f(3))")
	single("&sum { x(f(1-2)) } <= 0.", "x(f(-1))")
	single("&sum { x(f(-2)) } <= 0.", "x(f(-2))")
	single("&sum { x(f(2*2)) } <= 0.", "x(f(4))")
	single("&sum { x(f(4/2)) } <= 0.", "x(f(2))")
	single("&sum { x(f(9\\2)) } <= 0.", "x(f(1))")
	single("&sum { (a,b) } <= 0.", "(a,b)")

	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 5, true}}},
	}, models(t, ModeCSP, "&sum { x } = 5.", -20, 20))

	xs := func(vals ...int) []Model {
		out := make([]Model, 0, len(vals))
		for _, v := range vals {
			out = append(out, Model{Assignments: []Assignment{{"x", v, true}}})
		}
		return out
	}
	require.Equal(t, xs(-3, -2, -1, 1, 2, 3), models(t, ModeCSP, "&sum { x } != 0.", -3, 3))
	require.Equal(t, xs(-3, -2, -1, 0, 1), models(t, ModeCSP, "&sum { x } < 2.", -3, 3))
	require.Equal(t, xs(2, 3), models(t, ModeCSP, "&sum { x } > 1.", -3, 3))
	require.Equal(t, xs(1, 2, 3), models(t, ModeCSP, "&sum { x } >= 1.", -3, 3))

	got := models(t, ModeCSP, "a :- &sum { x } >= 1.", -3, 3)
	want := xs(-3, -2, -1, 0)
	for x := 1; x <= 3; x++ {
		want = append(want, Model{Atoms: []string{"a"}, Assignments: []Assignment{{"x", x, true}}})
	}
	require.Equal(t, want, got)

	got = models(t, ModeCSP, "a :- &sum { x } = 1.", -3, 3)
	want = xs(-3, -2, -1, 0, 2, 3)
	want = append(want, Model{Atoms: []string{"a"}, Assignments: []Assignment{{"x", 1, true}}})
	require.Equal(t, want, got)

	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", -2, true}, {"y", 3, true}}},
		{Assignments: []Assignment{{"x", 0, true}, {"y", 2, true}}},
		{Assignments: []Assignment{{"x", 2, true}, {"y", 1, true}}},
	}, models(t, ModeCSP, "&sum { 5*x + 10*y } = 20.", -3, 3))
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", -2, true}, {"y", 1, true}}},
		{Assignments: []Assignment{{"x", 0, true}, {"y", 2, true}}},
		{Assignments: []Assignment{{"x", 2, true}, {"y", 3, true}}},
	}, models(t, ModeCSP, "&sum { -5*x + 10*y } = 20.", -3, 3))
}

func TestCSPSingleton(t *testing.T) {
	xs := func(withA bool, vals ...int) []Model {
		out := make([]Model, 0, len(vals))
		for _, v := range vals {
			m := Model{Assignments: []Assignment{{"x", v, true}}}
			if withA {
				m.Atoms = []string{"a"}
			}
			out = append(out, m)
		}
		return out
	}
	require.Equal(t, xs(false, 0, 1), models(t, ModeCSP, "&sum { x } <= 1.", 0, 2))
	require.Equal(t, xs(false, 1, 2), models(t, ModeCSP, "&sum { x } >= 1.", 0, 2))
	require.Equal(t,
		append(xs(false, 2), xs(true, 0, 1)...),
		models(t, ModeCSP, "a :- &sum { x } <= 1.", 0, 2))
	require.Equal(t, xs(false, 2), models(t, ModeCSP, ":- &sum { x } <= 1.", 0, 2))
	require.Equal(t, xs(false, 0, 1), models(t, ModeCSP, ":- not &sum { x } <= 1.", 0, 2))

	got := models(t, ModeCSP, "a :- &sum { x } <= 1. b :- not &sum { x } > 1.", 0, 2)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 2, true}}},
		{Atoms: []string{"a", "b"}, Assignments: []Assignment{{"x", 0, true}}},
		{Atoms: []string{"a", "b"}, Assignments: []Assignment{{"x", 1, true}}},
	}, got)

	require.Equal(t, xs(false, 2),
		models(t, ModeCSP, ":- &sum { x } <= 1. :- not &sum { x } > 1.", 0, 2))
}

func TestCSPDistinct(t *testing.T) {
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, true}, {"y", 1, true}}},
		{Assignments: []Assignment{{"x", 1, true}, {"y", 0, true}}},
	}, models(t, ModeCSP, "&distinct { x; y }.", 0, 1))

	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 2, true}, {"y", 2, true}}},
		{Assignments: []Assignment{{"x", 2, true}, {"y", 3, true}}},
		{Assignments: []Assignment{{"x", 3, true}, {"y", 3, true}}},
	}, models(t, ModeCSP, "&distinct { 2*x; 3*y }.", 2, 3))

	// 0*x and 0*y keep distinct forms carrying the constant zero twice
	require.Empty(t, models(t, ModeCSP, "&distinct { 0*x; 0*y }.", 0, 1))

	// syntactically equal elements collapse before translation
	require.Equal(t, []Model{{}}, models(t, ModeCSP, "&distinct { 0; 0 }.", 0, 1))
	require.Equal(t, []Model{{}}, models(t, ModeCSP, "&distinct { 0; 1 }.", 0, 1))

	// forms equal after evaluation collapse but still declare the variable
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, true}}},
		{Assignments: []Assignment{{"x", 1, true}}},
	}, models(t, ModeCSP, "&distinct { 2*x; (1+1)*x }.", 0, 1))

	got := models(t, ModeCSP, "&distinct { x; y } :- c. &sum { x } = y :- not c. {c}.", 0, 1)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, true}, {"y", 0, true}}},
		{Assignments: []Assignment{{"x", 1, true}, {"y", 1, true}}},
		{Atoms: []string{"c"}, Assignments: []Assignment{{"x", 0, true}, {"y", 1, true}}},
		{Atoms: []string{"c"}, Assignments: []Assignment{{"x", 1, true}, {"y", 0, true}}},
	}, got)
}

func TestCSPMultishot(t *testing.T) {
	s := newSolver(t, ModeCSP, 0, 3)
	solve := func(src string) []Model {
		t.Helper()
		require.NoError(t, s.Add(src))
		res, err := s.Solve(context.Background())
		require.NoError(t, err)
		sortModels(res.Models)
		return res.Models
	}
	xs := func(vals ...int) []Model {
		out := make([]Model, 0, len(vals))
		for _, v := range vals {
			out = append(out, Model{Assignments: []Assignment{{"x", v, true}}})
		}
		return out
	}
	require.Equal(t, xs(0, 1, 2), solve("&sum { x } <= 2."))
	require.Equal(t, xs(0, 1), solve("&sum { x } <= 1."))
	require.Equal(t, xs(0), solve("&sum { x } <= 0."))
	require.Equal(t, xs(0), solve("&sum { x } <= 1."))
	require.Equal(t, xs(0), solve("&sum { x } <= 2."))
}

func TestConditionals(t *testing.T) {
	got := models(t, ModeHTC, `
		{a}.
		&sum{1:a} = x.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 1, true}, {"x", 1, true}},
		},
		{
			Atoms:       []string{"def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 0, true}, {"x", 0, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{a}.
		&sum{1} = x.
		b :- &sum{1:a} < x.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 1, true}, {"x", 1, true}},
		},
		{
			Atoms:       []string{"b", "def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 0, true}, {"x", 1, true}},
		},
	}, got)

	// the value of x cycles through its own definedness
	res := solveProgram(t, ModeHTC, `
		&sum{x}=1 :- &sum{ 1 : a }>= 0.
		a :- &sum{x}=1.
	`, -10, 10)
	require.Equal(t, search.Unsatisfiable, res.Status)
	require.Empty(t, res.Models)
}

func TestAssignments(t *testing.T) {
	got := models(t, ModeHTC, `
		&sum{1} =: x.
		&sum{z} =: y.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"def(x)"},
			Assignments: []Assignment{{"x", 1, true}, {"y", 0, false}, {"z", 0, false}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{a}.
		&sum{z : a; 1} =: x.
		&sum{x} =: y.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a"},
			Assignments: []Assignment{{"aux(0)", 0, false}, {"x", 0, false}, {"y", 0, false}, {"z", 0, false}},
		},
		{
			Atoms:       []string{"def(aux(0))", "def(x)", "def(y)"},
			Assignments: []Assignment{{"aux(0)", 0, true}, {"x", 1, true}, {"y", 1, true}, {"z", 0, false}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{a}.
		&sum{1} =: x :- a.
		b :- &sum{x} > 0.
	`, -10, 10)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, false}}},
		{
			Atoms:       []string{"a", "b", "def(x)"},
			Assignments: []Assignment{{"x", 1, true}},
		},
	}, got)

	got = models(t, ModeHTC, "&in{0..2} =: x.", -10, 10)
	require.Equal(t, []Model{
		{Atoms: []string{"def(x)"}, Assignments: []Assignment{{"x", 0, true}}},
		{Atoms: []string{"def(x)"}, Assignments: []Assignment{{"x", 1, true}}},
		{Atoms: []string{"def(x)"}, Assignments: []Assignment{{"x", 2, true}}},
	}, got)

	got = models(t, ModeHTC, "&in{y..z} =: x.", -10, 10)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, false}, {"y", 0, false}, {"z", 0, false}}},
	}, got)

	require.Empty(t, models(t, ModeHTC, `
		&sum{z} = 1.
		&sum{y} = 2.
		&in{y..z} =: x.
	`, -10, 10))

	got = models(t, ModeHTC, `
		&sum{z} = 2.
		&sum{y} = 1.
		&in{y..z} =: x.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"def(x)", "def(y)", "def(z)"},
			Assignments: []Assignment{{"x", 1, true}, {"y", 1, true}, {"z", 2, true}},
		},
		{
			Atoms:       []string{"def(x)", "def(y)", "def(z)"},
			Assignments: []Assignment{{"x", 2, true}, {"y", 1, true}, {"z", 2, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{a}.
		&sum{z} = 2 :- a.
		&sum{y} = 1.
		&in{y..z} =: x.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(x)", "def(y)", "def(z)"},
			Assignments: []Assignment{{"x", 1, true}, {"y", 1, true}, {"z", 2, true}},
		},
		{
			Atoms:       []string{"a", "def(x)", "def(y)", "def(z)"},
			Assignments: []Assignment{{"x", 2, true}, {"y", 1, true}, {"z", 2, true}},
		},
		{
			Atoms:       []string{"def(y)"},
			Assignments: []Assignment{{"x", 0, false}, {"y", 1, true}, {"z", 0, false}},
		},
	}, got)
}

func TestMinAggregate(t *testing.T) {
	got := models(t, ModeHTC, "&min{3;2;1}=:x.", -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 1, true}, {"x", 1, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		&sum{x} = 1.
		a :- &min{3;x} < 2.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 1, true}, {"x", 1, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{a}.
		&min{3;2;1:a}=:x.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 1, true}, {"aux(1)", 1, true}, {"x", 1, true}},
		},
		{
			Atoms:       []string{"def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 10, true}, {"aux(1)", 2, true}, {"x", 2, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{b}.
		&sum{x} = 1.
		a :- &min{3; x:b} < 2.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "b", "def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 1, true}, {"aux(1)", 1, true}, {"x", 1, true}},
		},
		{
			Atoms:       []string{"def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 10, true}, {"aux(1)", 3, true}, {"x", 1, true}},
		},
	}, got)
}

func TestMaxAggregate(t *testing.T) {
	got := models(t, ModeHTC, "&max{3;2;1}=:x.", -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", -3, true}, {"x", 3, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		&sum{x} = 3.
		a :- &max{1;x} > 2.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", -3, true}, {"x", 3, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{a}.
		&max{3;2;4:a}=:x.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 4, true}, {"aux(1)", -4, true}, {"x", 4, true}},
		},
		{
			Atoms:       []string{"def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", -10, true}, {"aux(1)", -3, true}, {"x", 3, true}},
		},
	}, got)

	got = models(t, ModeHTC, `
		{b}.
		&sum{x} = 2.
		a :- &max{1; x:b} <= 1.
	`, -10, 10)
	require.Equal(t, []Model{
		{
			Atoms:       []string{"a", "def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", -10, true}, {"aux(1)", -1, true}, {"x", 2, true}},
		},
		{
			Atoms:       []string{"b", "def(aux(0))", "def(aux(1))", "def(x)"},
			Assignments: []Assignment{{"aux(0)", 2, true}, {"aux(1)", -2, true}, {"x", 2, true}},
		},
	}, got)
}

const taxesProgram = `
	person(paul;mary).
	region(luxemburg;germany).
	rate(germany,  25000, 15).
	rate(germany,  50000, 25).
	rate(germany, 100000, 35).
	rate(luxemburg,  38700, 14).
	rate(luxemburg,  58000, 23).
	rate(luxemburg,  96700, 30).
	income(paul,   60000).
	income(mary,  120000).
	deduction(mary, 10000, 10001).

	1 { lives(P,R) : region(R) } 1 :- person(P).

	&sum{ 0 } =: deduction(P) :- person(P), not deduction(P,_,_).
	&in{ L..H } =: deduction(P) :- deduction(P,L,H).
	&sum{ T } =: rate(P) :- lives(P,R), income(P,I),
	                        T = #max{ T' : rate(R,L,T'), I>=L}.

	&sum{ I*rate(P)-100*deduction(P) } =: 100*tax(P) :- income(P,I).
	&sum{ tax(P) : lives(P,R) } =: total(R) :- region(R).
	&min{ tax(P) : person(P) } =: min.
	&max{ tax(P) : person(P) } =: max.
	min_taxes(P) :- &min{ tax(P') : person(P') } = tax(P), person(P).
	max_taxes(P) :- &max{ tax(P') : person(P') } = tax(P), person(P).

	#show lives/2.
	#show min_taxes/1.
	#show max_taxes/1.
`

func TestTaxes(t *testing.T) {
	got := models(t, ModeHTC, taxesProgram, -100000, 100000)
	require.Len(t, got, 8)

	names := []string{
		"deduction(mary)", "deduction(paul)", "max", "min",
		"rate(mary)", "rate(paul)", "tax(mary)", "tax(paul)",
		"total(germany)", "total(luxemburg)",
	}
	rows := []struct {
		mary, paul string
		vals       [10]int
	}{
		{"germany", "germany", [10]int{10000, 0, 32000, 15000, 35, 25, 32000, 15000, 47000, 0}},
		{"germany", "germany", [10]int{10001, 0, 31999, 15000, 35, 25, 31999, 15000, 46999, 0}},
		{"germany", "luxemburg", [10]int{10000, 0, 32000, 13800, 35, 23, 32000, 13800, 32000, 13800}},
		{"germany", "luxemburg", [10]int{10001, 0, 31999, 13800, 35, 23, 31999, 13800, 31999, 13800}},
		{"luxemburg", "germany", [10]int{10000, 0, 26000, 15000, 30, 25, 26000, 15000, 15000, 26000}},
		{"luxemburg", "germany", [10]int{10001, 0, 25999, 15000, 30, 25, 25999, 15000, 15000, 25999}},
		{"luxemburg", "luxemburg", [10]int{10000, 0, 26000, 13800, 30, 23, 26000, 13800, 0, 39800}},
		{"luxemburg", "luxemburg", [10]int{10001, 0, 25999, 13800, 30, 23, 25999, 13800, 0, 39799}},
	}

	var want []Model
	for _, r := range rows {
		m := Model{
			Atoms: []string{
				"lives(mary," + r.mary + ")",
				"lives(paul," + r.paul + ")",
				"max_taxes(mary)",
				"min_taxes(paul)",
			},
		}
		for i, n := range names {
			m.Assignments = append(m.Assignments, Assignment{Name: n, Value: r.vals[i], Defined: true})
		}
		want = append(want, m)
	}

	// the translation introduces ten auxiliary variables per model whose
	// numbering is an artifact of the atom order; compare without them
	for i := range got {
		require.Len(t, got[i].Assignments, 20)
		kept := got[i].Assignments[:0]
		for _, a := range got[i].Assignments {
			if !strings.HasPrefix(a.Name, "aux(") {
				kept = append(kept, a)
			}
		}
		got[i].Assignments = kept
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("models mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimization(t *testing.T) {
	res := solveProgram(t, ModeHTC, "&in{0..3} =: x. &minimize{ x }.", -10, 10)
	require.Equal(t, search.Satisfiable, res.Status)
	require.NotNil(t, res.Optimum)
	require.Equal(t, 0, *res.Optimum)

	last := res.Models[len(res.Models)-1]
	require.Equal(t, []string{"def(x)"}, last.Atoms)
	require.Equal(t, []Assignment{{"x", 0, true}}, last.Assignments)
	for i, m := range res.Models {
		require.NotNil(t, m.Cost)
		if i > 0 {
			require.Less(t, *m.Cost, *res.Models[i-1].Cost)
		}
	}

	res = solveProgram(t, ModeHTC, "&in{0..3} =: x. &maximize{ x }.", -10, 10)
	require.NotNil(t, res.Optimum)
	require.Equal(t, -3, *res.Optimum)
	last = res.Models[len(res.Models)-1]
	require.Equal(t, []Assignment{{"x", 3, true}}, last.Assignments)
}

func TestMaxModels(t *testing.T) {
	res := solveProgram(t, ModeCSP, "&sum { x } >= 0.", 0, 5, WithMaxModels(2))
	require.Equal(t, search.Satisfiable, res.Status)
	require.Len(t, res.Models, 2)
}

func TestStream(t *testing.T) {
	s := newSolver(t, ModeCSP, 0, 2)
	require.NoError(t, s.Add("&sum { x } <= 1."))

	ms, errs := s.Stream(context.Background())
	var got []Model
	for m := range ms {
		got = append(got, m)
	}
	require.NoError(t, <-errs)
	sortModels(got)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, true}}},
		{Assignments: []Assignment{{"x", 1, true}}},
	}, got)
}

func TestPortfolio(t *testing.T) {
	res := solveProgram(t, ModeCSP, "&distinct { x; y }.", 0, 1, WithPortfolio(3))
	require.Equal(t, search.Satisfiable, res.Status)
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 0, true}, {"y", 1, true}}},
		{Assignments: []Assignment{{"x", 1, true}, {"y", 0, true}}},
	}, res.Models)
}

func TestStrictGuardBounds(t *testing.T) {
	got := models(t, ModeCSP, "&sum { x } <= 100.", 0, 2)
	require.Len(t, got, 3)

	s := newSolver(t, ModeCSP, 0, 2, WithStrict())
	require.NoError(t, s.Add("&sum { x } <= 100."))
	_, err := s.Solve(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside")
}

func TestConflictingFacts(t *testing.T) {
	res := solveProgram(t, ModeHTC, "a. :- a.", -10, 10)
	require.Equal(t, search.Unsatisfiable, res.Status)
	require.Empty(t, res.Models)
	require.Zero(t, res.Stats.Decisions)
}

func TestChecks(t *testing.T) {
	res := solveProgram(t, ModeCSP, "&sum { x } = 5.", -20, 20, WithSolutionCheck(), WithStateCheck())
	require.Equal(t, []Model{
		{Assignments: []Assignment{{"x", 5, true}}},
	}, res.Models)

	res = solveProgram(t, ModeHTC, "{ a }. &sum { 1 : a } =: x.", 0, 2, WithSolutionCheck())
	require.Len(t, res.Models, 2)
}

func TestTranslate(t *testing.T) {
	s := newSolver(t, ModeHTC, -10, 10)
	require.NoError(t, s.Add("&sum{1} =: x."))
	var buf strings.Builder
	require.NoError(t, s.Translate(&buf))
	require.Contains(t, buf.String(), "translating assignment")

	s = newSolver(t, ModeCSP, -10, 10)
	require.NoError(t, s.Add("&sum{x} <= 1."))
	buf.Reset()
	require.NoError(t, s.Translate(&buf))
	require.Empty(t, buf.String())
}

func TestStatistics(t *testing.T) {
	s := newSolver(t, ModeCSP, 0, 3)
	require.NoError(t, s.Add("&sum { x } <= 2."))
	_, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Add("&sum { x } <= 1."))
	_, err = s.Solve(context.Background())
	require.NoError(t, err)

	stats := s.Statistics()
	require.Equal(t, 2, stats.Steps)
	require.Equal(t, 5, stats.Models)
	require.NotZero(t, stats.Constraints)
}

func TestAddParseError(t *testing.T) {
	s := newSolver(t, ModeHTC, -10, 10)
	require.Error(t, s.Add("p("))
}

func TestCSPObjectiveError(t *testing.T) {
	s := newSolver(t, ModeCSP, -10, 10)
	require.NoError(t, s.Add("&sum { x } = 1. &minimize{ x }."))
	_, err := s.Solve(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "founded semantics")
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(WithBounds(5, -5))
	require.Error(t, err)
	_, err = New(WithPortfolio(0))
	require.Error(t, err)
}

func TestModelString(t *testing.T) {
	m := Model{
		Atoms:       []string{"a", "def(x)"},
		Assignments: []Assignment{{"x", 1, true}},
	}
	require.Equal(t, "a def(x) x=1", m.String())
	require.Equal(t, "", Model{}.String())
}
