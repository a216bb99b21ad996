package e2e

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/solve"
)

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

var _ = Describe("The taxes case study", func() {
	It("assigns taxes, totals, and extrema for every residence choice", func() {
		s := newSolver(solve.WithBounds(-100000, 100000))
		res := solveAll(s, taxesProgram)

		Expect(res.Status).To(Equal(search.Satisfiable))
		Expect(res.Models).To(HaveLen(8))

		for _, m := range res.Models {
			Expect(m.Atoms).To(ContainElements("max_taxes(mary)", "min_taxes(paul)"))

			vals := map[string]int{}
			for _, a := range m.Assignments {
				Expect(a.Defined).To(BeTrue())
				vals[a.Name] = a.Value
			}
			Expect(vals["min"]).To(Equal(vals["tax(paul)"]))
			Expect(vals["max"]).To(Equal(vals["tax(mary)"]))
			Expect(vals["total(germany)"] + vals["total(luxemburg)"]).To(
				Equal(vals["tax(paul)"] + vals["tax(mary)"]))
		}
	})
})
