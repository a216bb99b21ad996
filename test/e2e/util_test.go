package e2e

import (
	"context"

	. "github.com/onsi/gomega"

	"github.com/wanko/clingo/pkg/solve"
)

func newSolver(extra ...solve.Option) *solve.Solver {
	opts := []solve.Option{
		solve.WithPortfolio(*cores),
		solve.WithSeed(*seed),
	}
	s, err := solve.New(append(opts, extra...)...)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	return s
}

func solveAll(s *solve.Solver, src string) *solve.Result {
	ExpectWithOffset(1, s.Add(src)).To(Succeed())
	res, err := s.Solve(context.Background())
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	return res
}
