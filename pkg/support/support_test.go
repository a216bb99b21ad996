package support

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/theory"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAnalyzeAcyclicProgram(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	c := st.Atom(theory.Sym("c"))
	unused := st.Atom(theory.Sym("unused"))

	prg.AddRule([]store.Atom{c}, nil)
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(c)})
	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(b)})

	an := Analyze(prg, testLogger())

	assert.True(t, an.Defined(a))
	assert.True(t, an.Defined(b))
	assert.True(t, an.Defined(c))
	assert.False(t, an.Defined(unused))

	assert.False(t, an.Recursive(a))
	assert.Empty(t, an.Components())
	assert.Empty(t, an.Vicious())
}

func TestAnalyzeSelfLoop(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(a)})

	an := Analyze(prg, testLogger())

	assert.True(t, an.Recursive(a))
	require.Len(t, an.Components(), 1)
	assert.Equal(t, []store.Atom{a}, an.Components()[0])
	require.Len(t, an.Vicious(), 1)
	assert.Equal(t, []store.Atom{a}, an.Vicious()[0])
}

func TestAnalyzeCycleWithOutsideSupport(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	c := st.Atom(theory.Sym("c"))

	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(b)})
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(a)})
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(c)})
	prg.AddRule([]store.Atom{c}, nil)

	an := Analyze(prg, testLogger())

	assert.True(t, an.Recursive(a))
	assert.True(t, an.Recursive(b))
	assert.False(t, an.Recursive(c))
	assert.True(t, an.SameComponent(a, b))
	assert.False(t, an.SameComponent(a, c))

	require.Len(t, an.Components(), 1)
	assert.ElementsMatch(t, []store.Atom{a, b}, an.Components()[0])
	assert.Empty(t, an.Vicious(), "the rule over c founds the cycle")
}

func TestAnalyzeChoiceBodies(t *testing.T) {
	t.Run("cycle through a choice body is vicious", func(t *testing.T) {
		st := store.New()
		prg := program.New(st)
		a := st.Atom(theory.Sym("a"))
		b := st.Atom(theory.Sym("b"))

		prg.AddChoice([]store.Atom{a}, []store.Lit{store.Pos(b)})
		prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(a)})

		an := Analyze(prg, testLogger())

		assert.True(t, an.Recursive(a))
		assert.True(t, an.Recursive(b))
		require.Len(t, an.Vicious(), 1)
		assert.ElementsMatch(t, []store.Atom{a, b}, an.Vicious()[0])
	})

	t.Run("free choice founds the cycle", func(t *testing.T) {
		st := store.New()
		prg := program.New(st)
		a := st.Atom(theory.Sym("a"))
		b := st.Atom(theory.Sym("b"))

		prg.AddChoice([]store.Atom{a}, []store.Lit{store.Pos(b)})
		prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(a)})
		prg.AddChoice([]store.Atom{a}, nil)

		an := Analyze(prg, testLogger())

		assert.True(t, an.Recursive(a))
		assert.Empty(t, an.Vicious())
	})
}

func TestAnalyzeIgnoresNegation(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))

	prg.AddRule([]store.Atom{a}, []store.Lit{store.Neg(b)})
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Neg(a)})

	an := Analyze(prg, testLogger())

	assert.False(t, an.Recursive(a))
	assert.False(t, an.Recursive(b))
	assert.Empty(t, an.Components())
}

func TestAnalyzeIgnoresTrueAtom(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	prg.AddRule([]store.Atom{a}, []store.Lit{store.TrueLit})

	an := Analyze(prg, testLogger())

	assert.True(t, an.Defined(a))
	assert.False(t, an.Recursive(a))
	assert.Empty(t, an.Components())
}

func TestAnalyzeRuleIndex(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))

	prg.AddRule([]store.Atom{a}, nil)
	prg.AddConstraint([]store.Lit{store.Pos(a), store.Neg(b)})
	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(b)})
	prg.AddRule([]store.Atom{b}, nil)

	an := Analyze(prg, testLogger())

	assert.Equal(t, []int{0, 2}, an.Rules(a))
	assert.Equal(t, []int{3}, an.Rules(b))
	assert.Empty(t, an.Rules(store.TrueAtom))
}

func TestAnalyzeDeepChain(t *testing.T) {
	st := store.New()
	prg := program.New(st)

	const n = 2000
	atoms := make([]store.Atom, n)
	for i := range atoms {
		atoms[i] = st.Atom(theory.Sym(fmt.Sprintf("a%d", i)))
	}
	for i := 0; i < n-1; i++ {
		prg.AddRule([]store.Atom{atoms[i]}, []store.Lit{store.Pos(atoms[i+1])})
	}
	prg.AddRule([]store.Atom{atoms[n-1]}, []store.Lit{store.Pos(atoms[0])})

	an := Analyze(prg, testLogger())

	require.Len(t, an.Components(), 1)
	assert.Len(t, an.Components()[0], n)
	assert.True(t, an.SameComponent(atoms[0], atoms[n-1]))
	require.Len(t, an.Vicious(), 1)
}

func TestAnalyzeSeparateComponents(t *testing.T) {
	st := store.New()
	prg := program.New(st)
	a := st.Atom(theory.Sym("a"))
	b := st.Atom(theory.Sym("b"))
	x := st.Atom(theory.Sym("x"))
	y := st.Atom(theory.Sym("y"))

	prg.AddRule([]store.Atom{a}, []store.Lit{store.Pos(b)})
	prg.AddRule([]store.Atom{b}, []store.Lit{store.Pos(a)})
	prg.AddRule([]store.Atom{x}, []store.Lit{store.Pos(y)})
	prg.AddRule([]store.Atom{y}, []store.Lit{store.Pos(x)})

	an := Analyze(prg, testLogger())

	assert.Len(t, an.Components(), 2)
	assert.True(t, an.SameComponent(a, b))
	assert.True(t, an.SameComponent(x, y))
	assert.False(t, an.SameComponent(a, x))
	assert.Len(t, an.Vicious(), 2)
}
