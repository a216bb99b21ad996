// Package parse reads logic programs in the constraint answer set syntax
// accepted by the solver: normal and choice rules, integrity constraints,
// constraint atoms such as &sum and &distinct, body aggregates in the
// binding form T = #max{...}, comparison literals, pools, intervals,
// ground term arithmetic and #show directives.
package parse

import (
	"github.com/pkg/errors"

	"github.com/wanko/clingo/pkg/program"
)

// Parse reads a logic program and returns its AST. Errors carry the
// line:column position of the offending token.
func Parse(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prg := &Program{}
	for !p.at(tokenEOF) {
		if err := p.statement(prg); err != nil {
			return nil, err
		}
	}
	return prg, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) cur() token {
	return p.toks[p.i]
}

func (p *parser) peek() token {
	if p.i+1 < len(p.toks) {
		return p.toks[p.i+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) at(k tokenKind) bool {
	return p.cur().kind == k
}

func (p *parser) accept(k tokenKind) bool {
	if p.at(k) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if !p.at(k) {
		return token{}, p.errorf("unexpected %s, expecting %s", p.cur(), what)
	}
	t := p.cur()
	p.i++
	return t, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return p.errorAt(p.cur(), format, args...)
}

func (p *parser) errorAt(t token, format string, args ...interface{}) error {
	args = append(args, t.line, t.col)
	return errors.Errorf(format+" at %d:%d", args...)
}

func (p *parser) statement(prg *Program) error {
	if p.at(tokenDirective) {
		if p.cur().text == "show" {
			return p.show(prg)
		}
		return p.errorf("unexpected %s", p.cur())
	}
	r, err := p.rule()
	if err != nil {
		return err
	}
	prg.Rules = append(prg.Rules, r)
	return nil
}

func (p *parser) show(prg *Program) error {
	p.i++
	name, err := p.expect(tokenIdent, "predicate name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokenSlash, `"/"`); err != nil {
		return err
	}
	arity, err := p.expect(tokenNumber, "arity")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokenDot, `"."`); err != nil {
		return err
	}
	prg.Shows = append(prg.Shows, Show{Name: name.text, Arity: arity.num})
	return nil
}

func (p *parser) rule() (Rule, error) {
	var r Rule
	if !p.at(tokenIf) {
		h, err := p.head()
		if err != nil {
			return Rule{}, err
		}
		r.Head = h
	}
	if p.accept(tokenIf) {
		for {
			l, err := p.literal()
			if err != nil {
				return Rule{}, err
			}
			r.Body = append(r.Body, l)
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if _, err := p.expect(tokenDot, `"."`); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func (p *parser) head() (Head, error) {
	switch {
	case p.at(tokenTheory):
		a, err := p.theoryAtom()
		if err != nil {
			return Head{}, err
		}
		return Head{Kind: HeadTheory, Theory: a}, nil
	case p.at(tokenLBrace), p.at(tokenNumber) && p.peek().kind == tokenLBrace:
		c, err := p.choice()
		if err != nil {
			return Head{}, err
		}
		return Head{Kind: HeadChoice, Choice: c}, nil
	}
	start := p.cur()
	t, err := p.term()
	if err != nil {
		return Head{}, err
	}
	if !validAtom(t) {
		return Head{}, p.errorAt(start, "invalid rule head %s", t)
	}
	return Head{Kind: HeadAtom, Atom: t}, nil
}

func (p *parser) choice() (*Choice, error) {
	c := &Choice{}
	if p.at(tokenNumber) {
		n := p.cur().num
		c.Lower = &n
		p.i++
	}
	if _, err := p.expect(tokenLBrace, `"{"`); err != nil {
		return nil, err
	}
	if !p.at(tokenRBrace) {
		for {
			e, err := p.choiceElem()
			if err != nil {
				return nil, err
			}
			c.Elements = append(c.Elements, e)
			if !p.accept(tokenSemicolon) {
				break
			}
		}
	}
	if _, err := p.expect(tokenRBrace, `"}"`); err != nil {
		return nil, err
	}
	if p.at(tokenNumber) {
		n := p.cur().num
		c.Upper = &n
		p.i++
	}
	return c, nil
}

func (p *parser) choiceElem() (ChoiceElem, error) {
	start := p.cur()
	t, err := p.term()
	if err != nil {
		return ChoiceElem{}, err
	}
	if !validAtom(t) {
		return ChoiceElem{}, p.errorAt(start, "invalid choice element %s", t)
	}
	e := ChoiceElem{Atom: t}
	if p.accept(tokenColon) {
		e.Condition, err = p.condition()
		if err != nil {
			return ChoiceElem{}, err
		}
	}
	return e, nil
}

// condition reads the comma-separated literals after ":". Only plain atoms
// and comparisons may appear there.
func (p *parser) condition() ([]Literal, error) {
	var lits []Literal
	for {
		start := p.cur()
		l, err := p.literal()
		if err != nil {
			return nil, err
		}
		if l.Kind != LitAtom && l.Kind != LitComparison {
			return nil, p.errorAt(start, "invalid condition literal %s", l)
		}
		lits = append(lits, l)
		if !p.accept(tokenComma) {
			break
		}
	}
	return lits, nil
}

func (p *parser) literal() (Literal, error) {
	if p.accept(tokenNot) {
		l, err := p.literal()
		if err != nil {
			return Literal{}, err
		}
		return Not(l), nil
	}
	if p.at(tokenTheory) {
		a, err := p.theoryAtom()
		if err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitTheory, Theory: a}, nil
	}
	start := p.cur()
	left, err := p.term()
	if err != nil {
		return Literal{}, err
	}
	if p.at(tokenAssign) {
		return Literal{}, p.errorf("unexpected %s", p.cur())
	}
	if rel, ok := relOf(p.cur().kind); ok {
		p.i++
		if rel == program.RelEQ && p.at(tokenDirective) {
			agg, err := p.aggregate()
			if err != nil {
				return Literal{}, err
			}
			return Literal{Kind: LitAggregate, Bind: left, Agg: agg}, nil
		}
		right, err := p.term()
		if err != nil {
			return Literal{}, err
		}
		return Compare(left, rel, right), nil
	}
	if !validAtom(left) {
		return Literal{}, p.errorAt(start, "invalid atom %s", left)
	}
	return Pos(left), nil
}

func (p *parser) theoryAtom() (*TheoryAtom, error) {
	tok, err := p.expect(tokenTheory, "constraint atom")
	if err != nil {
		return nil, err
	}
	kind, ok := atomKind(tok.text)
	if !ok {
		return nil, p.errorAt(tok, "unknown constraint atom &%s", tok.text)
	}
	a := &TheoryAtom{Kind: kind}
	if _, err := p.expect(tokenLBrace, `"{"`); err != nil {
		return nil, err
	}
	if !p.at(tokenRBrace) {
		for {
			terms, cond, err := p.element()
			if err != nil {
				return nil, err
			}
			a.Elements = append(a.Elements, TheoryElem{Terms: terms, Condition: cond})
			if !p.accept(tokenSemicolon) {
				break
			}
		}
	}
	if _, err := p.expect(tokenRBrace, `"}"`); err != nil {
		return nil, err
	}
	if rel, ok := relOf(p.cur().kind); ok {
		p.i++
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		a.Guard = &TheoryGuard{Rel: rel, Term: t}
	}
	return a, nil
}

func (p *parser) aggregate() (*Aggregate, error) {
	tok, err := p.expect(tokenDirective, "aggregate")
	if err != nil {
		return nil, err
	}
	fn, ok := aggFn(tok.text)
	if !ok {
		return nil, p.errorAt(tok, "unknown aggregate #%s", tok.text)
	}
	a := &Aggregate{Fn: fn}
	if _, err := p.expect(tokenLBrace, `"{"`); err != nil {
		return nil, err
	}
	if !p.at(tokenRBrace) {
		for {
			terms, cond, err := p.element()
			if err != nil {
				return nil, err
			}
			a.Elements = append(a.Elements, AggElem{Terms: terms, Condition: cond})
			if !p.accept(tokenSemicolon) {
				break
			}
		}
	}
	if _, err := p.expect(tokenRBrace, `"}"`); err != nil {
		return nil, err
	}
	return a, nil
}

// element reads one conditional term tuple of a constraint atom or
// aggregate.
func (p *parser) element() ([]Term, []Literal, error) {
	var terms []Term
	for {
		t, err := p.term()
		if err != nil {
			return nil, nil, err
		}
		terms = append(terms, t)
		if !p.accept(tokenComma) {
			break
		}
	}
	if !p.accept(tokenColon) {
		return terms, nil, nil
	}
	cond, err := p.condition()
	if err != nil {
		return nil, nil, err
	}
	return terms, cond, nil
}

// Terms are parsed with the usual precedence: ".." binds loosest, then "+"
// and "-", then "*", "/" and "\", then unary minus, then "**".

func (p *parser) term() (Term, error) {
	l, err := p.sum()
	if err != nil {
		return Term{}, err
	}
	if p.accept(tokenDotDot) {
		r, err := p.sum()
		if err != nil {
			return Term{}, err
		}
		return Fun("..", l, r), nil
	}
	return l, nil
}

func (p *parser) sum() (Term, error) {
	l, err := p.product()
	if err != nil {
		return Term{}, err
	}
	for {
		switch {
		case p.accept(tokenPlus):
			r, err := p.product()
			if err != nil {
				return Term{}, err
			}
			l = Fun("+", l, r)
		case p.accept(tokenMinus):
			r, err := p.product()
			if err != nil {
				return Term{}, err
			}
			l = Fun("-", l, r)
		default:
			return l, nil
		}
	}
}

func (p *parser) product() (Term, error) {
	l, err := p.unary()
	if err != nil {
		return Term{}, err
	}
	for {
		var op string
		switch {
		case p.accept(tokenStar):
			op = "*"
		case p.accept(tokenSlash):
			op = "/"
		case p.accept(tokenBackslash):
			op = "\\"
		default:
			return l, nil
		}
		r, err := p.unary()
		if err != nil {
			return Term{}, err
		}
		l = Fun(op, l, r)
	}
}

func (p *parser) unary() (Term, error) {
	if p.accept(tokenMinus) {
		t, err := p.unary()
		if err != nil {
			return Term{}, err
		}
		if t.Kind == Number {
			return Num(-t.Num), nil
		}
		return Fun("-", t), nil
	}
	return p.power()
}

func (p *parser) power() (Term, error) {
	l, err := p.primary()
	if err != nil {
		return Term{}, err
	}
	if p.accept(tokenPow) {
		r, err := p.unary()
		if err != nil {
			return Term{}, err
		}
		return Fun("**", l, r), nil
	}
	return l, nil
}

func (p *parser) primary() (Term, error) {
	tok := p.cur()
	switch tok.kind {
	case tokenNumber:
		p.i++
		return Num(tok.num), nil
	case tokenVariable:
		p.i++
		return Var(tok.text), nil
	case tokenIdent:
		p.i++
		if !p.accept(tokenLParen) {
			return Sym(tok.text), nil
		}
		seqs, err := p.termSeqs()
		if err != nil {
			return Term{}, err
		}
		if _, err := p.expect(tokenRParen, `")"`); err != nil {
			return Term{}, err
		}
		if len(seqs) == 1 {
			return Fun(tok.text, seqs[0]...), nil
		}
		alts := make([]Term, len(seqs))
		for i, s := range seqs {
			alts[i] = Fun(tok.text, s...)
		}
		return Alt(alts...), nil
	case tokenLParen:
		p.i++
		seqs, err := p.termSeqs()
		if err != nil {
			return Term{}, err
		}
		if _, err := p.expect(tokenRParen, `")"`); err != nil {
			return Term{}, err
		}
		if len(seqs) == 1 {
			if len(seqs[0]) == 1 {
				return seqs[0][0], nil
			}
			return Tup(seqs[0]...), nil
		}
		alts := make([]Term, len(seqs))
		for i, s := range seqs {
			if len(s) == 1 {
				alts[i] = s[0]
			} else {
				alts[i] = Tup(s...)
			}
		}
		return Alt(alts...), nil
	}
	return Term{}, p.errorf("unexpected %s, expecting term", tok)
}

// termSeqs reads semicolon-separated sequences of comma-separated terms,
// the argument syntax that gives rise to pools.
func (p *parser) termSeqs() ([][]Term, error) {
	var seqs [][]Term
	for {
		var seq []Term
		for {
			t, err := p.term()
			if err != nil {
				return nil, err
			}
			seq = append(seq, t)
			if !p.accept(tokenComma) {
				break
			}
		}
		seqs = append(seqs, seq)
		if !p.accept(tokenSemicolon) {
			break
		}
	}
	return seqs, nil
}

// validAtom reports whether a term can stand as a predicate atom.
func validAtom(t Term) bool {
	switch t.Kind {
	case Symbol:
		return true
	case Function:
		return !isOperator(t.Name)
	case Pool:
		for _, a := range t.Args {
			if !validAtom(a) {
				return false
			}
		}
		return true
	}
	return false
}

func relOf(k tokenKind) (program.Rel, bool) {
	switch k {
	case tokenLT:
		return program.RelLT, true
	case tokenLE:
		return program.RelLE, true
	case tokenGT:
		return program.RelGT, true
	case tokenGE:
		return program.RelGE, true
	case tokenEQ:
		return program.RelEQ, true
	case tokenNE:
		return program.RelNE, true
	case tokenAssign:
		return program.RelAssign, true
	}
	return 0, false
}

func atomKind(name string) (program.AtomKind, bool) {
	switch name {
	case "sum":
		return program.KindSum, true
	case "diff":
		return program.KindDiff, true
	case "min":
		return program.KindMin, true
	case "max":
		return program.KindMax, true
	case "in":
		return program.KindIn, true
	case "distinct":
		return program.KindDistinct, true
	case "dom":
		return program.KindDom, true
	case "minimize":
		return program.KindMinimize, true
	case "maximize":
		return program.KindMaximize, true
	}
	return 0, false
}

func aggFn(name string) (AggFn, bool) {
	switch name {
	case "count":
		return AggCount, true
	case "sum":
		return AggSum, true
	case "min":
		return AggMin, true
	case "max":
		return AggMax, true
	}
	return 0, false
}
