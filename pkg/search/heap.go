package search

import "github.com/wanko/clingo/pkg/store"

// The decision heap orders atoms by activity. hpos holds the heap slot
// plus one, so zero marks an atom as absent.

func (s *Solver) heapLess(i, j int) bool {
	a, b := s.heap[i], s.heap[j]
	if s.act[a] != s.act[b] {
		return s.act[a] > s.act[b]
	}
	return a < b
}

func (s *Solver) heapSwap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.hpos[s.heap[i]] = int32(i + 1)
	s.hpos[s.heap[j]] = int32(j + 1)
}

func (s *Solver) heapUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !s.heapLess(i, p) {
			return
		}
		s.heapSwap(i, p)
		i = p
	}
}

func (s *Solver) heapDown(i int) {
	for {
		c := 2*i + 1
		if c >= len(s.heap) {
			return
		}
		if c+1 < len(s.heap) && s.heapLess(c+1, c) {
			c++
		}
		if !s.heapLess(c, i) {
			return
		}
		s.heapSwap(i, c)
		i = c
	}
}

func (s *Solver) heapPush(a store.Atom) {
	if s.hpos[a] != 0 {
		return
	}
	s.heap = append(s.heap, a)
	s.hpos[a] = int32(len(s.heap))
	s.heapUp(len(s.heap) - 1)
}

func (s *Solver) heapPop() (store.Atom, bool) {
	if len(s.heap) == 0 {
		return 0, false
	}
	a := s.heap[0]
	last := len(s.heap) - 1
	s.heapSwap(0, last)
	s.heap = s.heap[:last]
	s.hpos[a] = 0
	if last > 0 {
		s.heapDown(0)
	}
	return a, true
}

// heapBump restores the heap order after an activity increase.
func (s *Solver) heapBump(a store.Atom) {
	if p := s.hpos[a]; p != 0 {
		s.heapUp(int(p - 1))
	}
}
