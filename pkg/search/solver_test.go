package search

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanko/clingo/pkg/assemble"
	"github.com/wanko/clingo/pkg/order"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/support"
	"github.com/wanko/clingo/pkg/theory"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func ground(t *testing.T, prg *program.Program) *assemble.Ground {
	t.Helper()
	g, err := assemble.Assemble(prg, support.Analyze(prg, nil), nil, nil)
	require.NoError(t, err)
	return g
}

// enumerate drains all models, reporting each as the truth values of the
// given atoms.
func enumerate(t *testing.T, s *Solver, atoms []store.Atom) [][]bool {
	t.Helper()
	var models [][]bool
	for st := s.Solve(context.Background(), nil); st == Satisfiable; st = s.Solve(context.Background(), nil) {
		row := make([]bool, len(atoms))
		for i, a := range atoms {
			row[i] = s.IsTrue(store.Pos(a))
		}
		models = append(models, row)
		if !s.Block() {
			break
		}
	}
	return models
}

func TestSolveFactChain(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	c := st.Atom(theory.Sym("c"))
	prg.AddRule([]store.Atom{a}, nil)
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(a)})
	prg.AddRule([]store.Atom{c}, []store.Lit{store.Pos(b)})
	prg.AddConstraint([]store.Lit{store.Neg(c)})

	s := New(ground(t, prg), Config{}, testLogger())
	models := enumerate(t, s, []store.Atom{a, b, c})

	require.Equal(t, [][]bool{{true, true, true}}, models)
	assert.Zero(t, s.Stats().Decisions)
	assert.Equal(t, Unsatisfiable, s.Solve(context.Background(), nil))
}

func TestSolveChoice(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	prg.AddChoice([]store.Atom{a}, nil)

	s := New(ground(t, prg), Config{}, testLogger())
	models := enumerate(t, s, []store.Atom{a})

	// the saved phase tries false first
	require.Equal(t, [][]bool{{false}, {true}}, models)
}

func TestSolveTopLevelConflict(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	prg.AddRule([]store.Atom{a}, nil)
	prg.AddConstraint([]store.Lit{store.Pos(a)})

	s := New(ground(t, prg), Config{}, testLogger())

	assert.Equal(t, Unsatisfiable, s.Solve(context.Background(), nil))
	assert.Equal(t, Unsatisfiable, s.Solve(context.Background(), nil))
}

func TestSolvePropagatesConstraints(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	prg.AddChoice([]store.Atom{a, b}, nil)
	prg.AddConstraint([]store.Lit{store.Pos(a), store.Neg(b)})
	prg.AddConstraint([]store.Lit{store.Neg(a), store.Neg(b)})

	s := New(ground(t, prg), Config{}, testLogger())
	models := enumerate(t, s, []store.Atom{a, b})

	require.Len(t, models, 2)
	for _, m := range models {
		assert.True(t, m[1], "b holds in every model")
	}
}

func TestSolveLearnsFromConflicts(t *testing.T) {
	run := func(t *testing.T, cfg Config) {
		st := store.New()
		prg := program.New(st)
		a := st.Atom(theory.Sym("a"))
		b := st.Atom(theory.Sym("b"))
		c := st.Atom(theory.Sym("c"))
		prg.AddChoice([]store.Atom{a, b, c}, nil)
		prg.AddConstraint([]store.Lit{store.Neg(a), store.Neg(b), store.Neg(c)})
		prg.AddConstraint([]store.Lit{store.Neg(a), store.Neg(b), store.Pos(c)})

		s := New(ground(t, prg), cfg, testLogger())
		models := enumerate(t, s, []store.Atom{a, b, c})

		require.Len(t, models, 6)
		for _, m := range models {
			assert.True(t, m[0] || m[1], "a or b holds in every model")
		}
		assert.NotZero(t, s.Stats().Conflicts)
		assert.NotZero(t, s.Stats().Learnt)
		if cfg.LubyBase == 1 {
			assert.NotZero(t, s.Stats().Restarts)
		}
	}

	t.Run("DefaultRestarts", func(t *testing.T) { run(t, Config{}) })
	t.Run("EagerRestarts", func(t *testing.T) { run(t, Config{LubyBase: 1}) })
}

func TestSolveRejectsUnfoundedLoop(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	c := st.Atom(theory.Sym("c"))
	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(b)})
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(a)})
	prg.AddChoice([]store.Atom{c}, nil)
	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(c)})

	s := New(ground(t, prg), Config{}, testLogger())
	models := enumerate(t, s, []store.Atom{a, b, c})

	// a and b only hold when c founds the loop
	require.Equal(t, [][]bool{
		{false, false, false},
		{true, true, true},
	}, models)
	assert.NotZero(t, s.Stats().Conflicts)
}

func TestSolveBoundsProblem(t *testing.T) {
	prob := order.NewProblem()
	x := prob.Var("x")
	y := prob.Var("y")
	prob.Add(&order.Constraint{
		Lit:   store.TrueLit,
		Terms: []order.LinearTerm{{Coef: 1, Var: x}, {Coef: 1, Var: y}},
		RHS:   2,
	})
	prob.Add(&order.Constraint{
		Lit:   store.TrueLit,
		Terms: []order.LinearTerm{{Coef: -1, Var: x}},
		RHS:   -2,
	})
	g := &assemble.Ground{Store: store.New(), Problem: prob}

	s := New(g, Config{MinInt: 0, MaxInt: 3}, testLogger())

	require.Equal(t, Satisfiable, s.Solve(context.Background(), nil))
	assert.Equal(t, 2, s.State().Value(x))
	assert.Equal(t, 0, s.State().Value(y))

	require.False(t, s.Block())
	assert.Equal(t, Unsatisfiable, s.Solve(context.Background(), nil))
}

func TestSolveEnumeratesIntegerModels(t *testing.T) {
	prob := order.NewProblem()
	x := prob.Var("x")
	prob.Add(&order.Constraint{
		Lit:   store.TrueLit,
		Terms: []order.LinearTerm{{Coef: 1, Var: x}},
		RHS:   2,
	})
	g := &assemble.Ground{Store: store.New(), Problem: prob}

	s := New(g, Config{MinInt: 0, MaxInt: 2}, testLogger())
	var values []int
	for st := s.Solve(context.Background(), nil); st == Satisfiable; st = s.Solve(context.Background(), nil) {
		values = append(values, s.State().Value(x))
		if !s.Block() {
			break
		}
	}

	// splitting picks the upper half first
	assert.Equal(t, []int{2, 1, 0}, values)
	assert.NotZero(t, s.State().OrderLiterals())
}

func TestSolveAssumptions(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	prg.AddChoice([]store.Atom{a, b}, nil)

	s := New(ground(t, prg), Config{}, testLogger())

	require.Equal(t, Satisfiable, s.Solve(context.Background(), []store.Lit{store.Pos(a)}))
	assert.True(t, s.IsTrue(store.Pos(a)))
	count := 1
	for s.Block() {
		if s.Solve(context.Background(), nil) != Satisfiable {
			break
		}
		assert.True(t, s.IsTrue(store.Pos(a)), "assumption holds in every model")
		count++
	}
	assert.Equal(t, 2, count)

	// the assumption is undone by the next call
	require.Equal(t, Satisfiable, s.Solve(context.Background(), []store.Lit{store.Neg(a)}))
	assert.True(t, s.IsFalse(store.Pos(a)))
}

func TestSolveConflictingAssumption(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	prg.AddChoice([]store.Atom{a}, nil)
	prg.AddConstraint([]store.Lit{store.Pos(a)})

	s := New(ground(t, prg), Config{}, testLogger())

	assert.Equal(t, Unsatisfiable, s.Solve(context.Background(), []store.Lit{store.Pos(a)}))
	assert.Equal(t, Satisfiable, s.Solve(context.Background(), []store.Lit{store.Neg(a)}))
}

func TestSolveInterrupted(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	prg.AddChoice([]store.Atom{a}, nil)

	s := New(ground(t, prg), Config{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Interrupted, s.Solve(ctx, nil))
	assert.Equal(t, Satisfiable, s.Solve(context.Background(), nil))
}

func TestLubySequence(t *testing.T) {
	want := []uint64{1, 1, 2, 1, 1, 2, 4, 1, 1, 2, 1, 1, 2, 4, 8}
	for i, w := range want {
		assert.Equal(t, w, luby(uint64(i)), "luby(%d)", i)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "SATISFIABLE", Satisfiable.String())
	assert.Equal(t, "UNSATISFIABLE", Unsatisfiable.String())
	assert.Equal(t, "INTERRUPTED", Interrupted.String())
	assert.Equal(t, "UNKNOWN", Unknown.String())
}
