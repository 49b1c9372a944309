// Package sospd implements a primal-dual move-making minimizer for multilabel
// energies with submodular higher-order terms. Each move fuses the current
// labeling against a proposal (a constant alpha, or a per-node vector) by
// reducing every clique to a submodular boolean table and handing the result
// to the sosflow solver; the per-clique dual table lambda is reparameterized
// around every move so that the sequence of flow problems certifies local
// optimality of the final labeling.
package sospd

import (
	"github.com/mrflab/sospd/energy"
	"github.com/mrflab/sospd/enforce"
	"github.com/mrflab/sospd/sosflow"
	"github.com/mrflab/sospd/utils"
)

type Energy = energy.Energy
type Label = energy.Label
type NodeId = energy.NodeId

type Options struct {
	CheckInvariants bool  // Verify the Label/Dual-Bound/Active invariants around every sub-phase, and the Height invariant at termination (slow).
	DebugLevel      uint8 // If non-zero, log per-round energies.
}

// Solver owns the primal labeling, the dual store and a single long-lived
// flow instance. The model is read-only input and must outlive the solver.
type Solver struct {
	Options Options
	Rounds  int // completed outer sweeps (Solve) or fusion moves (SolveDualGuided, SolveFusion) of the last run

	model  *energy.Model
	labels []Label
	fusion []Label // proposal being fused against, one label per node

	// Dual arena: lambda[c][i][l] lives at dualOff[c] + i*L + l. Flat layout
	// keeps Phase-A scans cache friendly and makes determinism checks a
	// plain slice compare.
	dual    []Energy
	dualOff []int

	incident [][]utils.Pair[int32, uint8] // node -> (clique index, local position)

	flow  *sosflow.Solver
	watch utils.Watch

	labelBuf  [energy.KMax]Label
	curLabels [energy.KMax]Label
	fusLabels [energy.KMax]Label
	lambdaA   [energy.KMax]Energy
	lambdaB   [energy.KMax]Energy
	psi       [energy.KMax]Energy
}

func New(m *energy.Model, opts Options) *Solver {
	s := &Solver{
		Options: opts,
		model:   m,
		labels:  make([]Label, m.NumNodes()),
		fusion:  make([]Label, m.NumNodes()),
	}
	s.setupDualStore()
	s.setupNodeCliqueList()
	s.setupGraph()
	return s
}

func (s *Solver) Model() *energy.Model { return s.model }

func (s *Solver) Label(v NodeId) Label { return s.labels[v] }

// Labels returns the current labeling. Read-only view.
func (s *Solver) Labels() []Label { return s.labels }

// Energy of the current labeling under the model.
func (s *Solver) Energy() Energy { return s.model.Energy(s.labels) }

// Dual reads lambda[c][i][l]. Mostly for checks and tests.
func (s *Solver) Dual(c int, i int, l Label) Energy {
	return s.dual[s.dualIdx(c, i, l)]
}

// DualState returns the flat dual arena. Read-only view.
func (s *Solver) DualState() []Energy { return s.dual }

func (s *Solver) dualIdx(c int, i int, l Label) int {
	return s.dualOff[c] + i*s.model.NumLabels() + int(l)
}

func (s *Solver) setupDualStore() {
	cliques := s.model.Cliques()
	s.dualOff = make([]int, len(cliques))
	total := 0
	for ci, c := range cliques {
		s.dualOff[ci] = total
		total += c.Size() * s.model.NumLabels()
	}
	s.dual = make([]Energy, total)
}

// Reverse map from node to (clique, position), in clique registration order.
// Height sums iterate this, so the order is part of the determinism contract.
func (s *Solver) setupNodeCliqueList() {
	s.incident = make([][]utils.Pair[int32, uint8], s.model.NumNodes())
	for ci, c := range s.model.Cliques() {
		for pos, v := range c.Nodes() {
			s.incident[v] = append(s.incident[v], utils.Pair[int32, uint8]{First: int32(ci), Second: uint8(pos)})
		}
	}
}

// Builds the flow instance once; tables and unaries are rewritten per move.
func (s *Solver) setupGraph() {
	s.flow = &sosflow.Solver{}
	s.flow.AddNode(s.model.NumNodes())
	for _, c := range s.model.Cliques() {
		nodes := c.Nodes()
		flowNodes := make([]sosflow.NodeId, len(nodes))
		for i, v := range nodes {
			flowNodes[i] = sosflow.NodeId(v)
		}
		s.flow.AddClique(flowNodes, make([]Energy, 1<<len(nodes)), false)
	}
	s.flow.GraphInit()
}

// Every node starts on its cheapest unary label.
func (s *Solver) initialLabeling() {
	numLabels := s.model.NumLabels()
	for v := range s.labels {
		best := s.model.Unary(NodeId(v), 0)
		s.labels[v] = 0
		for l := 1; l < numLabels; l++ {
			if cost := s.model.Unary(NodeId(v), Label(l)); cost < best {
				best = cost
				s.labels[v] = Label(l)
			}
		}
	}
}

// Spreads each clique's energy across the active dual entries: avg per
// position, remainder to the first e mod k positions. The uneven split is
// what makes the active entries sum to the clique energy exactly.
func (s *Solver) initialDual() {
	for i := range s.dual {
		s.dual[i] = 0
	}
	for ci, c := range s.model.Cliques() {
		k := c.Size()
		nodes := c.Nodes()
		for i, v := range nodes {
			s.labelBuf[i] = s.labels[v]
		}
		e := c.Energy(s.labelBuf[:k])
		enforce.ENFORCE(e >= 0, "negative clique energy in clique ", ci)
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

// Height of label l at node v under the current dual: the unary plus every
// incident clique's lambda entry.
func (s *Solver) computeHeight(v NodeId, l Label) Energy {
	h := s.model.Unary(v, l)
	for _, p := range s.incident[v] {
		h += s.dual[s.dualIdx(int(p.First), int(p.Second), l)]
	}
	return h
}

func (s *Solver) computeHeightDiff(v NodeId, l1, l2 Label) Energy {
	d := s.model.Unary(v, l1) - s.model.Unary(v, l2)
	for _, p := range s.incident[v] {
		base := s.dualOff[p.First] + int(p.Second)*s.model.NumLabels()
		d += s.dual[base+int(l1)] - s.dual[base+int(l2)]
	}
	return d
}
