// Package sosflow minimizes boolean energies of the form
//
//	E(x) = const + sum_i u_i(x_i) + sum_C g_C(x_C),  x in {0,1}^n
//
// where every clique table g_C is submodular, nonnegative and zero on the
// empty assignment. It is the move oracle behind the multilabel solver: each
// expansion step reduces to one instance of this problem.
//
// The search runs augmenting paths over a residual network with a source arc
// and a sink arc per node, plus exchange arcs inside every clique whose
// capacity is the submodular slack min{g(S) - alpha(S) : u in S, v not in S}.
// Each clique's alpha starts at a greedy base vertex of g (with the modular
// part folded into the sink arcs), so alpha(C) = g(C) throughout; pushing
// along an exchange arc then moves alpha inside {alpha : alpha(S) <= g(S)}
// without disturbing either endpoint. Shortest (breadth-first) paths keep
// simultaneous pushes through one clique feasible. Integrality of the tables
// makes the whole computation integer-exact. When no path remains, the
// source-reachable set is a minimizer and every clique's alpha is tight on
// it, which is the complementary-slackness fact the dual updates upstream
// rely on.
package sosflow

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/mrflab/sospd/energy"
	"github.com/mrflab/sospd/enforce"
	"github.com/mrflab/sospd/setfn"
	"github.com/mrflab/sospd/utils"
)

type Energy = energy.Energy
type NodeId = uint32

// Clique is a k-ary term of the boolean problem. EnergyTable is a writable
// view sized 1<<k; callers re-parameterize it between solves. AlphaCi is the
// per-position dual after Solve; callers must treat it as read-only.
type Clique struct {
	nodes   []NodeId
	table   []Energy
	alphaCi []Energy
}

func (c *Clique) Nodes() []NodeId { return c.nodes }
func (c *Clique) Size() int { return len(c.nodes) }
func (c *Clique) EnergyTable() []Energy { return c.table }
func (c *Clique) AlphaCi() []Energy { return c.alphaCi }

func (c *Clique) alphaSum(m setfn.Mask) Energy {
	sum := Energy(0)
	for i := 0; m != 0; i, m = i+1, m>>1 {
		if m&1 != 0 {
			sum += c.alphaCi[i]
		}
	}
	return sum
}

// Residual capacity of the exchange arc uPos -> vPos: the least slack of any
// set holding uPos but not vPos. Pushing delta raises alpha[uPos] and lowers
// alpha[vPos], staying feasible exactly while delta is within this slack.
func (c *Clique) exchangeCapacity(uPos, vPos int) Energy {
	n := setfn.Mask(1) << len(c.nodes)
	bu := setfn.Mask(1) << uPos
	bv := setfn.Mask(1) << vPos
	min := Energy(math.MaxInt64)
	for s := setfn.Mask(0); s < n; s++ {
		if s&bu == 0 || s&bv != 0 {
			continue
		}
		if slack := c.table[s] - c.alphaSum(s); slack < min {
			min = slack
		}
	}
	return min
}

type via struct {
	prev   int32 // previous node on the path, -1 when entered from the source
	clique int32 // clique carrying the arc, -1 for a source arc
	uPos   uint8
	vPos   uint8
}

// Solver holds one reusable flow instance. Topology is fixed by GraphInit;
// unaries and clique tables may be rewritten between calls to Solve.
type Solver struct {
	// If set, Solve re-verifies every clique table before running. Slow.
	CheckTables bool

	numNodes int
	constant Energy
	cost0    []Energy // unary cost of taking value 0
	cost1    []Energy // unary cost of taking value 1
	capSrc   []Energy
	capSnk   []Energy
	phiSrc   []Energy
	phiSnk   []Energy
	cliques  []*Clique
	incident [][]utils.Pair[int32, uint8] // node -> (clique index, position)

	labels  []bool
	visited utils.Bitmap
	parent  []via
	queue   []uint32
	ready   bool
}

// AddNode appends n nodes and returns the id of the first.
func (s *Solver) AddNode(n int) NodeId {
	enforce.ENFORCE(!s.ready, "graph already initialized")
	first := NodeId(s.numNodes)
	s.numNodes += n
	return first
}

// AddClique registers a k-ary term whose table the solver takes ownership of.
// With normalize set, the all-zeros entry is folded into the constant term.
func (s *Solver) AddClique(nodes []NodeId, table []Energy, normalize bool) {
	enforce.ENFORCE(!s.ready, "graph already initialized")
	k := len(nodes)
	enforce.ENFORCE(k >= 1 && k <= energy.KMax, "clique arity out of range: ", k)
	enforce.ENFORCE(len(table) == 1<<k, "energy table size mismatch: ", len(table))
	for _, v := range nodes {
		enforce.ENFORCE(int(v) < s.numNodes, "clique node out of range: ", v)
	}
	if normalize && table[0] != 0 {
		s.constant += table[0]
		off := table[0]
		for i := range table {
			table[i] -= off
		}
	}
	s.cliques = append(s.cliques, &Clique{
		nodes:   nodes,
		table:   table,
		alphaCi: make([]Energy, k),
	})
}

// GraphInit freezes the topology and allocates working state.
func (s *Solver) GraphInit() {
	enforce.ENFORCE(!s.ready, "graph already initialized")
	n := s.numNodes
	s.cost0 = make([]Energy, n)
	s.cost1 = make([]Energy, n)
	s.capSrc = make([]Energy, n)
	s.capSnk = make([]Energy, n)
	s.phiSrc = make([]Energy, n)
	s.phiSnk = make([]Energy, n)
	s.labels = make([]bool, n)
	s.parent = make([]via, n)
	s.queue = make([]uint32, 0, n)
	s.visited.Grow(uint32(n))
	s.incident = make([][]utils.Pair[int32, uint8], n)
	for ci, c := range s.cliques {
		for pos, v := range c.nodes {
			s.incident[v] = append(s.incident[v], utils.Pair[int32, uint8]{First: int32(ci), Second: uint8(pos)})
		}
	}
	s.ready = true
}

func (s *Solver) NumNodes() int { return s.numNodes }
func (s *Solver) Cliques() []*Clique { return s.cliques }

func (s *Solver) ClearUnaries() {
	for i := range s.cost0 {
		s.cost0[i] = 0
		s.cost1[i] = 0
	}
}

func (s *Solver) AddConstantTerm(c Energy) { s.constant += c }
func (s *Solver) GetConstantTerm() Energy { return s.constant }

// AddUnaryTerm accumulates the cost of node i taking value 0 / value 1.
func (s *Solver) AddUnaryTerm(i NodeId, e0, e1 Energy) {
	s.cost0[i] += e0
	s.cost1[i] += e1
}

// GetLabel reports the value assigned to node i by the last Solve: 1 when the
// node sits on the source side of the final residual graph.
func (s *Solver) GetLabel(i NodeId) int {
	if s.labels[i] {
		return 1
	}
	return 0
}

// EnergyOf evaluates the configured boolean energy on an assignment.
func (s *Solver) EnergyOf(x []bool) Energy {
	total := s.constant
	for i, xi := range x {
		if xi {
			total += s.cost1[i]
		} else {
			total += s.cost0[i]
		}
	}
	for _, c := range s.cliques {
		m := setfn.Mask(0)
		for pos, v := range c.nodes {
			if x[v] {
				m |= 1 << pos
			}
		}
		total += c.table[m]
	}
	return total
}

// Solve computes a minimizing assignment and the per-clique duals. The
// returned value is the minimum energy.
func (s *Solver) Solve() Energy {
	enforce.ENFORCE(s.ready, "GraphInit must run before Solve")
	if s.CheckTables {
		for ci, c := range s.cliques {
			if c.table[0] != 0 {
				log.Panic().Msg("clique " + utils.V(ci) + " table not normalized: table[0]=" + utils.V(c.table[0]))
			}
			if !setfn.IsSubmodular(len(c.nodes), c.table) {
				log.Panic().Msg("clique " + utils.V(ci) + " table is not submodular")
			}
		}
	}

	for i := 0; i < s.numNodes; i++ {
		s.capSrc[i] = s.cost0[i]
		s.capSnk[i] = s.cost1[i]
		s.phiSrc[i] = 0
		s.phiSnk[i] = 0
	}
	// Start every clique dual at a greedy base vertex (marginals along the
	// position order) and fold that modular part into the sink-side costs.
	// This pins alpha(C) = g(C) for the full set, so the final cut can charge
	// fully source-side cliques; exchange pushes preserve both ends.
	for _, c := range s.cliques {
		prev := Energy(0)
		m := setfn.Mask(0)
		for pos, v := range c.nodes {
			m |= 1 << pos
			c.alphaCi[pos] = c.table[m] - prev
			prev = c.table[m]
			s.capSnk[v] += c.alphaCi[pos]
		}
	}
	for i := 0; i < s.numNodes; i++ {
		// Shift shared arc mass away so at least one of the two starts tight.
		base := utils.Min(s.capSrc[i], s.capSnk[i])
		s.capSrc[i] -= base
		s.capSnk[i] -= base
	}

	for {
		end, found := s.search()
		if !found {
			break
		}
		s.augment(end)
	}

	// The last search failed, so visited is the source-reachable set.
	minEnergy := s.constant
	for i := 0; i < s.numNodes; i++ {
		s.labels[i] = s.visited.Get(uint32(i))
		if s.labels[i] {
			minEnergy += s.cost1[i]
		} else {
			minEnergy += s.cost0[i]
		}
	}
	for _, c := range s.cliques {
		m := setfn.Mask(0)
		for pos, v := range c.nodes {
			if s.labels[v] {
				m |= 1 << pos
			}
		}
		minEnergy += c.table[m]
	}
	return minEnergy
}

// Breadth-first search for an augmenting path in the residual graph. Returns
// the node whose sink arc completes the path, or found=false after marking
// everything source-reachable.
func (s *Solver) search() (end uint32, found bool) {
	s.visited.Zeroes()
	s.queue = s.queue[:0]
	for i := 0; i < s.numNodes; i++ {
		if s.capSrc[i]-s.phiSrc[i] > 0 {
			s.visited.QuickSet(uint32(i))
			s.parent[i] = via{prev: -1, clique: -1}
			s.queue = append(s.queue, uint32(i))
		}
	}
	for head := 0; head < len(s.queue); head++ {
		u := s.queue[head]
		if s.capSnk[u]-s.phiSnk[u] > 0 {
			return u, true
		}
		for _, inc := range s.incident[u] {
			c := s.cliques[inc.First]
			uPos := int(inc.Second)
			for vPos, v := range c.nodes {
				if vPos == uPos || s.visited.Get(uint32(v)) {
					continue
				}
				if c.exchangeCapacity(uPos, vPos) > 0 {
					s.visited.QuickSet(uint32(v))
					s.parent[v] = via{prev: int32(u), clique: inc.First, uPos: uint8(uPos), vPos: uint8(vPos)}
					s.queue = append(s.queue, uint32(v))
				}
			}
		}
	}
	return 0, false
}

func (s *Solver) augment(end uint32) {
	// Bottleneck pass.
	delta := s.capSnk[end] - s.phiSnk[end]
	for v := end; ; {
		p := s.parent[v]
		if p.clique < 0 {
			delta = utils.Min(delta, s.capSrc[v]-s.phiSrc[v])
			break
		}
		c := s.cliques[p.clique]
		delta = utils.Min(delta, c.exchangeCapacity(int(p.uPos), int(p.vPos)))
		v = uint32(p.prev)
	}
	enforce.ENFORCE(delta > 0, "zero bottleneck on augmenting path")

	// Apply pass.
	s.phiSnk[end] += delta
	for v := end; ; {
		p := s.parent[v]
		if p.clique < 0 {
			s.phiSrc[v] += delta
			break
		}
		c := s.cliques[p.clique]
		c.alphaCi[p.uPos] += delta
		c.alphaCi[p.vPos] -= delta
		v = uint32(p.prev)
	}
}
