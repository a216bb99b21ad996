package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/solve"
)

var _ = Describe("Solving logic programs with linear constraints", func() {
	Context("with founded value semantics", func() {
		It("derives definedness atoms alongside values", func() {
			s := newSolver(solve.WithBounds(-10, 10))
			res := solveAll(s, "{a}. &sum{1:a} = x.")

			Expect(res.Status).To(Equal(search.Satisfiable))
			Expect(res.Models).To(ConsistOf(
				solve.Model{
					Atoms: []string{"a", "def(aux(0))", "def(x)"},
					Assignments: []solve.Assignment{
						{Name: "aux(0)", Value: 1, Defined: true},
						{Name: "x", Value: 1, Defined: true},
					},
				},
				solve.Model{
					Atoms: []string{"def(aux(0))", "def(x)"},
					Assignments: []solve.Assignment{
						{Name: "aux(0)", Value: 0, Defined: true},
						{Name: "x", Value: 0, Defined: true},
					},
				},
			))
		})

		It("leaves unassigned variables undefined instead of guessing", func() {
			s := newSolver(solve.WithBounds(-10, 10))
			res := solveAll(s, "&sum{1} =: x. &sum{z} =: y.")

			Expect(res.Models).To(ConsistOf(solve.Model{
				Atoms: []string{"def(x)"},
				Assignments: []solve.Assignment{
					{Name: "x", Value: 1, Defined: true},
					{Name: "y", Value: 0, Defined: false},
					{Name: "z", Value: 0, Defined: false},
				},
			}))
		})

		It("rejects values founded only through their own definedness", func() {
			s := newSolver(solve.WithBounds(-10, 10))
			res := solveAll(s, "&sum{x}=1 :- &sum{ 1 : a }>= 0. a :- &sum{x}=1.")

			Expect(res.Status).To(Equal(search.Unsatisfiable))
			Expect(res.Models).To(BeEmpty())
		})
	})

	Context("with classical semantics", func() {
		It("treats every variable as defined", func() {
			s := newSolver(solve.WithBounds(0, 1), solve.WithMode(solve.ModeCSP))
			res := solveAll(s, "&distinct { x; y }.")

			Expect(res.Models).To(ConsistOf(
				solve.Model{Assignments: []solve.Assignment{
					{Name: "x", Value: 0, Defined: true},
					{Name: "y", Value: 1, Defined: true},
				}},
				solve.Model{Assignments: []solve.Assignment{
					{Name: "x", Value: 1, Defined: true},
					{Name: "y", Value: 0, Defined: true},
				}},
			))
		})

		It("plans accelerations toward a target speed", func() {
			s := newSolver(solve.WithBounds(0, 8), solve.WithMode(solve.ModeCSP))
			res := solveAll(s, `
				{ acc(1) }. { acc(2) }.
				&sum { s(0) } = 0.
				&sum { s(1) + (-1)*s(0) } = 4 :- acc(1).
				&sum { s(1) + (-1)*s(0) } = 0 :- not acc(1).
				&sum { s(2) + (-1)*s(1) } = 4 :- acc(2).
				&sum { s(2) + (-1)*s(1) } = 0 :- not acc(2).
				:- &sum { s(2) } <= 3.
			`)

			Expect(res.Status).To(Equal(search.Satisfiable))
			Expect(res.Models).To(ConsistOf(
				solve.Model{Atoms: []string{"acc(1)", "acc(2)"}, Assignments: []solve.Assignment{
					{Name: "s(0)", Value: 0, Defined: true},
					{Name: "s(1)", Value: 4, Defined: true},
					{Name: "s(2)", Value: 8, Defined: true},
				}},
				solve.Model{Atoms: []string{"acc(1)"}, Assignments: []solve.Assignment{
					{Name: "s(0)", Value: 0, Defined: true},
					{Name: "s(1)", Value: 4, Defined: true},
					{Name: "s(2)", Value: 4, Defined: true},
				}},
				solve.Model{Atoms: []string{"acc(2)"}, Assignments: []solve.Assignment{
					{Name: "s(0)", Value: 0, Defined: true},
					{Name: "s(1)", Value: 0, Defined: true},
					{Name: "s(2)", Value: 4, Defined: true},
				}},
			))
		})

		It("refuses optimization directives", func() {
			s := newSolver(solve.WithBounds(-10, 10), solve.WithMode(solve.ModeCSP))
			Expect(s.Add("&sum { x } = 1. &minimize{ x }.")).To(Succeed())

			_, err := s.Solve(context.Background())
			Expect(err).To(MatchError(ContainSubstring("founded semantics")))
		})
	})

	Context("when cancelled before any model is found", func() {
		It("reports an interrupt", func() {
			s := newSolver(solve.WithBounds(-20, 20))
			Expect(s.Add("&distinct { a; b; c }.")).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			res, err := s.Solve(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Status).To(Equal(search.Interrupted))
			Expect(res.Models).To(BeEmpty())
		})
	})

	Context("when streaming", func() {
		It("yields models as they are found", func() {
			s := newSolver(solve.WithBounds(0, 2), solve.WithMode(solve.ModeCSP))
			Expect(s.Add("&sum { x } <= 1.")).To(Succeed())

			modelsCh, errsCh := s.Stream(context.Background())
			var got []solve.Model
			for m := range modelsCh {
				got = append(got, m)
			}
			Expect(<-errsCh).ToNot(HaveOccurred())
			Expect(got).To(ConsistOf(
				solve.Model{Assignments: []solve.Assignment{{Name: "x", Value: 0, Defined: true}}},
				solve.Model{Assignments: []solve.Assignment{{Name: "x", Value: 1, Defined: true}}},
			))
		})
	})
})

var _ = Describe("Optimization", func() {
	It("proves the optimum with branch and bound", func() {
		s := newSolver(solve.WithBounds(-10, 10))
		res := solveAll(s, "&in{0..3} =: x. &minimize{ x }.")

		Expect(res.Status).To(Equal(search.Satisfiable))
		Expect(res.Optimum).ToNot(BeNil())
		Expect(*res.Optimum).To(Equal(0))

		last := res.Models[len(res.Models)-1]
		Expect(last.Assignments).To(Equal([]solve.Assignment{{Name: "x", Value: 0, Defined: true}}))
		Expect(last.Cost).ToNot(BeNil())
		Expect(*last.Cost).To(Equal(0))
	})

	It("maximizes by minimizing the negated objective", func() {
		s := newSolver(solve.WithBounds(-10, 10))
		res := solveAll(s, "&in{0..3} =: x. &maximize{ x }.")

		Expect(res.Optimum).ToNot(BeNil())
		Expect(*res.Optimum).To(Equal(-3))
		last := res.Models[len(res.Models)-1]
		Expect(last.Assignments).To(Equal([]solve.Assignment{{Name: "x", Value: 3, Defined: true}}))
	})
})

var _ = Describe("Multi-shot solving", func() {
	It("accumulates constraints across steps", func() {
		s := newSolver(solve.WithBounds(0, 3), solve.WithMode(solve.ModeCSP))

		Expect(solveAll(s, "&sum { x } <= 2.").Models).To(HaveLen(3))
		Expect(solveAll(s, "&sum { x } <= 1.").Models).To(HaveLen(2))
		Expect(solveAll(s, "&sum { x } <= 0.").Models).To(HaveLen(1))
		Expect(solveAll(s, "&sum { x } <= 1.").Models).To(HaveLen(1))

		stats := s.Statistics()
		Expect(stats.Steps).To(Equal(4))
		Expect(stats.Models).To(Equal(7))
	})
})
