// Package store assigns program atoms and solver literals.
//
// Atoms are numbered from 1 and atom 1 is reserved for the literal that is
// always true. Named atoms are interned by their term so that repeated
// lookups of the same term yield the same atom. Atoms created without a name
// never show up in models; free atoms additionally take part in no rule and
// are left open for the solver.
package store

import (
	"github.com/wanko/clingo/pkg/theory"
)

// Atom identifies a program atom. Atoms are dense and start at 1.
type Atom int32

// Lit is a signed literal: +a asserts atom a, -a its complement.
type Lit int32

// TrueAtom is assigned true on the top level of every search.
const TrueAtom Atom = 1

// TrueLit is the literal of TrueAtom.
const TrueLit Lit = 1

// Pos returns the positive literal of a.
func Pos(a Atom) Lit { return Lit(a) }

// Neg returns the negative literal of a.
func Neg(a Atom) Lit { return -Lit(a) }

// Atom returns the atom of the literal.
func (l Lit) Atom() Atom {
	if l < 0 {
		return Atom(-l)
	}
	return Atom(l)
}

// Neg returns the complement of the literal.
func (l Lit) Neg() Lit { return -l }

// Positive reports whether the literal asserts its atom.
func (l Lit) Positive() bool { return l > 0 }

type entry struct {
	term  theory.Term
	named bool
	free  bool
}

// Store allocates atoms and interns named atoms by term.
type Store struct {
	entries []entry // entries[0] corresponds to atom 1
	index   map[string]Atom
}

// New returns a store holding only the reserved true atom.
func New() *Store {
	s := &Store{index: map[string]Atom{}}
	s.entries = append(s.entries, entry{})
	return s
}

// Atom interns the named atom for the given term, allocating it on first
// use.
func (s *Store) Atom(t theory.Term) Atom {
	key := t.String()
	if a, ok := s.index[key]; ok {
		return a
	}
	a := s.alloc(entry{term: t, named: true})
	s.index[key] = a
	return a
}

// Lookup returns the atom interned for the term, if any.
func (s *Store) Lookup(t theory.Term) (Atom, bool) {
	a, ok := s.index[t.String()]
	return a, ok
}

// NewAtom allocates an unnamed atom. Unnamed atoms are subject to the usual
// support requirement but are hidden from model output.
func (s *Store) NewAtom() Atom {
	return s.alloc(entry{})
}

// NewFreeLit allocates a solver literal that belongs to no rule. Free atoms
// are not constrained by completion; their value is determined by the
// constraints that mention them.
func (s *Store) NewFreeLit() Lit {
	return Pos(s.alloc(entry{free: true}))
}

func (s *Store) alloc(e entry) Atom {
	s.entries = append(s.entries, e)
	return Atom(len(s.entries))
}

// Name returns the term of a named atom.
func (s *Store) Name(a Atom) (theory.Term, bool) {
	e := s.entry(a)
	if e == nil || !e.named {
		return theory.Term{}, false
	}
	return e.term, true
}

// IsFree reports whether the atom is a free solver literal.
func (s *Store) IsFree(a Atom) bool {
	e := s.entry(a)
	return e != nil && e.free
}

func (s *Store) entry(a Atom) *entry {
	if a < 1 || int(a) > len(s.entries) {
		return nil
	}
	return &s.entries[a-1]
}

// Len returns the number of allocated atoms including the true atom.
func (s *Store) Len() int {
	return len(s.entries)
}
