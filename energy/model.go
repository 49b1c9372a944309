package energy

import (
	"github.com/mrflab/sospd/enforce"
	"github.com/mrflab/sospd/utils"
)

// Integer energy. All energies entering the solver are nonnegative; sums over
// a model must fit, so callers converting from real-valued terms should scale
// with Scale and keep magnitudes sane.
type Energy int64

type Label uint32
type NodeId uint32

// Largest clique arity. Assignment masks fit a uint32 and per-clique tables
// are 1<<k entries, so this is a hard cap.
const KMax = 16

const DefaultScale = 10000

// Truncates a real-valued energy to the integer grid.
func Scale(v float64) Energy {
	return ScaleBy(v, DefaultScale)
}

func ScaleBy(v float64, mult int64) Energy {
	return Energy(v * float64(mult))
}

// A higher-order term: an ordered set of nodes and a potential over their
// joint labeling. Energy must be pure, deterministic, defined for every
// assignment, and nonnegative; FMax bounds it from above.
type Clique interface {
	Nodes() []NodeId
	Size() int
	Energy(labels []Label) Energy
	FMax() Energy
}

// Model holds the unaries and cliques of a multilabel problem. Frozen input
// to the solver: build it fully, then hand it over.
type Model struct {
	numNodes  int
	numLabels int
	unary     [][]Energy
	cliques   []Clique
}

func NewModel(numNodes, numLabels int) *Model {
	enforce.ENFORCE(numNodes > 0, "model needs at least one node")
	enforce.ENFORCE(numLabels > 1, "model needs at least two labels")
	unary := make([][]Energy, numNodes)
	for i := range unary {
		unary[i] = make([]Energy, numLabels)
	}
	return &Model{numNodes: numNodes, numLabels: numLabels, unary: unary}
}

func (m *Model) NumNodes() int { return m.numNodes }
func (m *Model) NumLabels() int { return m.numLabels }
func (m *Model) Cliques() []Clique { return m.cliques }
func (m *Model) NumCliques() int { return len(m.cliques) }

func (m *Model) Unary(v NodeId, l Label) Energy {
	return m.unary[v][l]
}

// Accumulates per-label costs onto node v. Costs must be nonnegative.
func (m *Model) AddUnary(v NodeId, costs []Energy) {
	enforce.ENFORCE(int(v) < m.numNodes, "unary node out of range: ", v)
	enforce.ENFORCE(len(costs) == m.numLabels, "unary cost vector has wrong arity: ", len(costs))
	for l, c := range costs {
		enforce.ENFORCE(c >= 0, "negative unary energy at node ", v, " label ", l)
		m.unary[v][l] += c
	}
}

func (m *Model) AddClique(c Clique) {
	k := c.Size()
	nodes := c.Nodes()
	enforce.ENFORCE(k == len(nodes), "clique Size disagrees with Nodes")
	enforce.ENFORCE(k >= 2, "clique must cover at least two nodes, got ", k)
	enforce.ENFORCE(k <= KMax, "clique arity ", k, " exceeds KMax=", KMax)
	enforce.ENFORCE(c.FMax() >= 0, "negative clique energy bound")
	seen := make(map[NodeId]bool, k)
	for _, v := range nodes {
		enforce.ENFORCE(int(v) < m.numNodes, "clique node out of range: ", v)
		enforce.ENFORCE(!seen[v], "clique repeats node ", v)
		seen[v] = true
	}
	m.cliques = append(m.cliques, c)
}

// Total energy of a labeling: unaries plus all clique potentials.
func (m *Model) Energy(labels []Label) Energy {
	enforce.ENFORCE(len(labels) == m.numNodes, "labeling has wrong arity")
	total := Energy(0)
	for v, l := range labels {
		enforce.ENFORCE(int(l) < m.numLabels, "label out of range at node ", v)
		total += m.unary[v][l]
	}
	var buf [KMax]Label
	for _, c := range m.cliques {
		nodes := c.Nodes()
		for i, v := range nodes {
			buf[i] = labels[v]
		}
		total += c.Energy(buf[:len(nodes)])
	}
	return total
}

// ---------------------------- Clique variants ----------------------------

// Potts: a fixed penalty unless all member labels agree.
type Potts struct {
	Members []NodeId
	Weight  Energy
}

func NewPotts(nodes []NodeId, weight Energy) *Potts {
	enforce.ENFORCE(weight >= 0, "negative Potts weight")
	return &Potts{Members: nodes, Weight: weight}
}

func (p *Potts) Nodes() []NodeId { return p.Members }
func (p *Potts) Size() int { return len(p.Members) }
func (p *Potts) FMax() Energy { return p.Weight }

func (p *Potts) Energy(labels []Label) Energy {
	for i := 1; i < len(labels); i++ {
		if labels[i] != labels[0] {
			return p.Weight
		}
	}
	return 0
}

// Pairwise: an explicit L-by-L cost table on an edge.
type Pairwise struct {
	U, V  NodeId
	Costs [][]Energy
	nodes [2]NodeId
	fMax  Energy
}

func NewPairwise(u, v NodeId, costs [][]Energy) *Pairwise {
	enforce.ENFORCE(len(costs) > 0, "empty pairwise cost table")
	fMax := Energy(0)
	for _, row := range costs {
		enforce.ENFORCE(len(row) == len(costs), "pairwise cost table is not square")
		for _, c := range row {
			enforce.ENFORCE(c >= 0, "negative pairwise energy")
			fMax = utils.Max(fMax, c)
		}
	}
	return &Pairwise{U: u, V: v, Costs: costs, nodes: [2]NodeId{u, v}, fMax: fMax}
}

func (p *Pairwise) Nodes() []NodeId { return p.nodes[:] }
func (p *Pairwise) Size() int { return 2 }
func (p *Pairwise) FMax() Energy { return p.fMax }

func (p *Pairwise) Energy(labels []Label) Energy {
	return p.Costs[labels[0]][labels[1]]
}

// Func: an arbitrary user-supplied potential with a declared bound.
type Func struct {
	Members []NodeId
	Bound   Energy
	Fn      func(labels []Label) Energy
}

func NewFunc(nodes []NodeId, bound Energy, fn func(labels []Label) Energy) *Func {
	enforce.ENFORCE(bound >= 0, "negative clique energy bound")
	enforce.ENFORCE(fn != nil, "nil clique potential")
	return &Func{Members: nodes, Bound: bound, Fn: fn}
}

func (f *Func) Nodes() []NodeId { return f.Members }
func (f *Func) Size() int { return len(f.Members) }
func (f *Func) FMax() Energy { return f.Bound }

func (f *Func) Energy(labels []Label) Energy {
	return f.Fn(labels)
}
