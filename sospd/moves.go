package sospd

import (
	"github.com/rs/zerolog/log"

	"github.com/mrflab/sospd/enforce"
	"github.com/mrflab/sospd/setfn"
	"github.com/mrflab/sospd/utils"
)

// PreEditDual rewrites every clique's flow table for the pending fusion move
// and shifts the proposal row of lambda so the table is a nonnegative
// submodular bound that is tight at the current labeling:
//
//  1. fill the table with the fusion energies f(S) (bit set = take proposal),
//  2. raise it to a submodular upper bound,
//  3. zero the marginals of positions whose proposal equals their current
//     label,
//  4. subtract the linear dual term; tightness forces table[0] == 0,
//  5. normalize to >= 0 and charge the offsets psi to the proposal row.
func (s *Solver) preEditDual() {
	flowCliques := s.flow.Cliques()
	for ci, c := range s.model.Cliques() {
		k := c.Size()
		nodes := c.Nodes()
		table := flowCliques[ci].EnergyTable()

		frozen := setfn.Mask(0)
		for i, v := range nodes {
			s.curLabels[i] = s.labels[v]
			s.fusLabels[i] = s.fusion[v]
			s.lambdaA[i] = s.dual[s.dualIdx(ci, i, s.curLabels[i])]
			s.lambdaB[i] = s.dual[s.dualIdx(ci, i, s.fusLabels[i])]
			if s.curLabels[i] == s.fusLabels[i] {
				frozen |= 1 << i
			}
		}

		n := setfn.Mask(1) << k
		for m := setfn.Mask(0); m < n; m++ {
			for i := 0; i < k; i++ {
				if m&(1<<i) != 0 {
					s.labelBuf[i] = s.fusLabels[i]
				} else {
					s.labelBuf[i] = s.curLabels[i]
				}
			}
			table[m] = c.Energy(s.labelBuf[:k])
			enforce.ENFORCE(table[m] >= 0, "negative fusion energy in clique ", ci)
		}

		setfn.UpperBound(k, table)
		setfn.ZeroMarginalSet(k, table, frozen)
		setfn.SubtractLinear(k, table, s.lambdaB[:k], s.lambdaA[:k])
		enforce.ENFORCE(table[0] == 0, "dual not tight at current labeling in clique ", ci)
		setfn.Normalize(k, table, s.psi[:k], frozen)

		for i := 0; i < k; i++ {
			s.dual[s.dualIdx(ci, i, s.fusLabels[i])] -= s.psi[i]
		}
	}
}

// UpdatePrimalDual runs the flow move: node costs are height differences
// between staying and switching, clique costs are the tables PreEditDual
// left in place. Nodes the solver assigns 1 switch to their proposal, and
// every clique's complementary-slackness duals are folded into lambda.
func (s *Solver) updatePrimalDual() (changed bool) {
	s.flow.ClearUnaries()
	s.flow.AddConstantTerm(-s.flow.GetConstantTerm())
	for v := range s.labels {
		heightDiff := s.computeHeightDiff(NodeId(v), s.labels[v], s.fusion[v])
		if heightDiff > 0 {
			s.flow.AddUnaryTerm(uint32(v), heightDiff, 0)
		} else {
			s.flow.AddUnaryTerm(uint32(v), 0, -heightDiff)
		}
	}

	s.flow.Solve()

	for v := range s.labels {
		if s.flow.GetLabel(uint32(v)) == 1 {
			if s.labels[v] != s.fusion[v] {
				changed = true
			}
			s.labels[v] = s.fusion[v]
		}
	}
	for ci, c := range s.model.Cliques() {
		alphaCi := s.flow.Cliques()[ci].AlphaCi()
		for i, v := range c.Nodes() {
			s.dual[s.dualIdx(ci, i, s.fusion[v])] += alphaCi[i]
		}
	}
	return changed
}

// PostEditDual rebuilds the active dual entries from the fresh labeling,
// same avg/remainder split as initialDual. Inactive entries keep whatever
// UpdatePrimalDual left there.
func (s *Solver) postEditDual() {
	for ci, c := range s.model.Cliques() {
		k := c.Size()
		for i, v := range c.Nodes() {
			s.labelBuf[i] = s.labels[v]
		}
		e := c.Energy(s.labelBuf[:k])
		avg := e / Energy(k)
		rem := e % Energy(k)
		for i := 0; i < k; i++ {
			val := avg
			if Energy(i) < rem {
				val++
			}
			s.dual[s.dualIdx(ci, i, s.labelBuf[i])] = val
		}
	}
}

// Disabled: rescaling lambda by mu*rho is not integer-exact, so this stays a
// no-op until the dual store grows rational arithmetic.
func (s *Solver) dualFit() {
}

func (s *Solver) setFusionAll(alpha Label) {
	for v := range s.fusion {
		s.fusion[v] = alpha
	}
}

// Per-node proposal by height minimization: each node proposes its lowest
// label under the current dual. Reports whether any proposal differs from
// the current labeling.
func (s *Solver) initialFusionLabeling() (different bool) {
	numLabels := s.model.NumLabels()
	for v := range s.labels {
		s.fusion[v] = s.labels[v]
		h := s.computeHeight(NodeId(v), s.labels[v])
		for l := 0; l < numLabels; l++ {
			if newH := s.computeHeight(NodeId(v), Label(l)); newH < h {
				different = true
				s.fusion[v] = Label(l)
				h = newH
			}
		}
	}
	return different
}

func (s *Solver) fuseOnce() (changed bool) {
	s.preEditDual()
	if s.Options.CheckInvariants {
		s.enforceMoveInvariants("PreEditDual")
	}
	changed = s.updatePrimalDual()
	s.postEditDual()
	if s.Options.CheckInvariants {
		s.enforceMoveInvariants("PostEditDual")
	}
	return changed
}

func (s *Solver) prepare() {
	s.flow.CheckTables = s.Options.CheckInvariants
	s.watch.Start()
	s.initialLabeling()
	s.initialDual()
	if s.Options.CheckInvariants {
		s.enforceMoveInvariants("InitialDual")
	}
}

// Solve runs expansion sweeps, alpha in increasing label order, until a full
// sweep changes nothing. The increasing order is part of the contract: it
// pins down which of several equivalent optima comes out.
func (s *Solver) Solve() {
	s.prepare()
	initial := s.Energy()
	maxRounds := Energy(s.model.NumLabels()) * (1 + initial)

	s.Rounds = 0
	for changed := true; changed; s.Rounds++ {
		changed = false
		for alpha := 0; alpha < s.model.NumLabels(); alpha++ {
			s.setFusionAll(Label(alpha))
			if s.fuseOnce() {
				changed = true
			}
		}
		if s.Options.DebugLevel > 0 {
			log.Debug().Msg("round " + utils.V(s.Rounds) + " energy " + utils.V(s.Energy()))
		}
		// Every productive sweep strictly lowers an integer energy, so this
		// can only fire on a bug.
		enforce.ENFORCE(Energy(s.Rounds) <= maxRounds, "expansion failed to terminate")
	}
	s.finish(true)
}

// SolveDualGuided fuses against height-minimizing per-node proposals instead
// of sweeping labels; stops when no node can lower its height.
func (s *Solver) SolveDualGuided() {
	s.prepare()
	maxRounds := Energy(s.model.NumLabels()) * (1 + s.Energy())
	s.Rounds = 0
	for s.initialFusionLabeling() {
		s.fuseOnce()
		s.Rounds++
		if s.Options.DebugLevel > 0 {
			log.Debug().Msg("round " + utils.V(s.Rounds) + " energy " + utils.V(s.Energy()))
		}
		enforce.ENFORCE(Energy(s.Rounds) <= maxRounds, "dual-guided fusion failed to terminate")
	}
	s.finish(true)
}

// SolveFusion runs a fixed number of fusion moves against caller-supplied
// proposals. The callback fills proposal with one label per node; expansion
// is the special case of a constant proposal. A bounded round budget does
// not run to a fixed point, so the Height invariant is not enforced here.
func (s *Solver) SolveFusion(rounds int, propose func(iter int, current []Label, proposal []Label)) {
	enforce.ENFORCE(propose != nil, "nil proposal callback")
	s.prepare()
	s.Rounds = 0
	for iter := 0; iter < rounds; iter++ {
		propose(iter, s.labels, s.fusion)
		for v, l := range s.fusion {
			enforce.ENFORCE(int(l) < s.model.NumLabels(), "proposal label out of range at node ", v)
		}
		s.fuseOnce()
		s.Rounds++
	}
	s.finish(false)
}

func (s *Solver) finish(atFixpoint bool) {
	if s.Options.CheckInvariants && atFixpoint {
		s.enforceHeightInvariant()
	}
	s.dualFit()
	log.Debug().Msg("solved: energy " + utils.V(s.Energy()) + " rounds " + utils.V(s.Rounds) + " in " + utils.V(s.watch.Elapsed()))
}
