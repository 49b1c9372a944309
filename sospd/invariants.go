package sospd

import (
	"github.com/rs/zerolog/log"

	"github.com/mrflab/sospd/enforce"
	"github.com/mrflab/sospd/utils"
)

// Runtime validation of the three per-move invariants and the terminal
// Height invariant. A failure here is a programming bug in the bound kit,
// the flow adapter, or the flow solver, never bad user input.

// CheckLabelInvariant: for every clique, the dual entries at the currently
// assigned labels sum to the clique energy.
func (s *Solver) CheckLabelInvariant() bool {
	ok := true
	for ci, c := range s.model.Cliques() {
		k := c.Size()
		for i, v := range c.Nodes() {
			s.labelBuf[i] = s.labels[v]
		}
		e := c.Energy(s.labelBuf[:k])
		sum := Energy(0)
		for i := 0; i < k; i++ {
			sum += s.dual[s.dualIdx(ci, i, s.labelBuf[i])]
		}
		if sum != e {
			log.Error().Msg("label invariant: clique " + utils.V(ci) +
				" energy " + utils.V(e) + " dual sum " + utils.V(sum))
			ok = false
		}
	}
	return ok
}

// CheckDualBoundInvariant: no dual entry exceeds its clique's FMax.
func (s *Solver) CheckDualBoundInvariant() bool {
	ok := true
	for ci, c := range s.model.Cliques() {
		bound := c.FMax()
		k := c.Size()
		for i := 0; i < k; i++ {
			for l := 0; l < s.model.NumLabels(); l++ {
				if d := s.dual[s.dualIdx(ci, i, Label(l))]; d > bound {
					log.Error().Msg("dual bound invariant: clique " + utils.V(ci) +
						" local " + utils.V(i) + " label " + utils.V(l) +
						" dual " + utils.V(d) + " bound " + utils.V(bound))
					ok = false
				}
			}
		}
	}
	return ok
}

// CheckActiveInvariant: dual entries at assigned labels are nonnegative.
func (s *Solver) CheckActiveInvariant() bool {
	ok := true
	for ci, c := range s.model.Cliques() {
		for i, v := range c.Nodes() {
			if d := s.dual[s.dualIdx(ci, i, s.labels[v])]; d < 0 {
				log.Error().Msg("active invariant: clique " + utils.V(ci) +
					" local " + utils.V(i) + " label " + utils.V(s.labels[v]) +
					" dual " + utils.V(d))
				ok = false
			}
		}
	}
	return ok
}

// CheckHeightInvariant: at termination, every node sits at a label of
// minimal height.
func (s *Solver) CheckHeightInvariant() bool {
	ok := true
	for v := range s.labels {
		h := s.computeHeight(NodeId(v), s.labels[v])
		for l := 0; l < s.model.NumLabels(); l++ {
			if Label(l) == s.labels[v] {
				continue
			}
			if hl := s.computeHeight(NodeId(v), Label(l)); h > hl {
				log.Error().Msg("height invariant: node " + utils.V(v) +
					" label " + utils.V(s.labels[v]) + " height " + utils.V(h) +
					" label " + utils.V(l) + " height " + utils.V(hl))
				ok = false
			}
		}
	}
	return ok
}

func (s *Solver) enforceMoveInvariants(stage string) {
	enforce.ENFORCE(s.CheckLabelInvariant(), "label invariant broken after ", stage)
	enforce.ENFORCE(s.CheckDualBoundInvariant(), "dual bound invariant broken after ", stage)
	enforce.ENFORCE(s.CheckActiveInvariant(), "active invariant broken after ", stage)
}

func (s *Solver) enforceHeightInvariant() {
	enforce.ENFORCE(s.CheckHeightInvariant(), "height invariant broken at termination")
}
