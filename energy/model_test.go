package energy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPottsEnergy(t *testing.T) {
	p := NewPotts([]NodeId{0, 1, 2}, 5)
	require.Equal(t, Energy(0), p.Energy([]Label{2, 2, 2}))
	require.Equal(t, Energy(5), p.Energy([]Label{2, 2, 1}))
	require.Equal(t, Energy(5), p.FMax())
}

func TestPairwiseEnergy(t *testing.T) {
	costs := [][]Energy{{0, 3}, {2, 0}}
	p := NewPairwise(4, 7, costs)
	require.Equal(t, []NodeId{4, 7}, p.Nodes())
	require.Equal(t, Energy(3), p.Energy([]Label{0, 1}))
	require.Equal(t, Energy(2), p.Energy([]Label{1, 0}))
	require.Equal(t, Energy(3), p.FMax())
}

func TestModelEnergy(t *testing.T) {
	m := NewModel(3, 2)
	m.AddUnary(0, []Energy{1, 4})
	m.AddUnary(1, []Energy{0, 2})
	m.AddUnary(2, []Energy{3, 0})
	m.AddClique(NewPotts([]NodeId{0, 1}, 10))
	m.AddClique(NewPotts([]NodeId{1, 2}, 10))

	require.Equal(t, Energy(1+0+3), m.Energy([]Label{0, 0, 0}))
	require.Equal(t, Energy(1+0+0+10), m.Energy([]Label{0, 0, 1}))
	require.Equal(t, Energy(4+2+3+0+10), m.Energy([]Label{1, 1, 0}))
}

func TestModelEnergyAccumulatesUnaries(t *testing.T) {
	m := NewModel(1, 2)
	m.AddUnary(0, []Energy{1, 2})
	m.AddUnary(0, []Energy{3, 4})
	require.Equal(t, Energy(4), m.Unary(0, 0))
	require.Equal(t, Energy(6), m.Unary(0, 1))
}

func TestModelValidation(t *testing.T) {
	m := NewModel(4, 3)
	require.Panics(t, func() { m.AddUnary(9, []Energy{0, 0, 0}) })
	require.Panics(t, func() { m.AddUnary(0, []Energy{0, 0}) })
	require.Panics(t, func() { m.AddUnary(0, []Energy{0, -1, 0}) })
	require.Panics(t, func() { m.AddClique(NewPotts([]NodeId{0}, 1)) })
	require.Panics(t, func() { m.AddClique(NewPotts([]NodeId{0, 0}, 1)) })
	require.Panics(t, func() { m.AddClique(NewPotts([]NodeId{0, 9}, 1)) })
	require.Panics(t, func() { NewPotts([]NodeId{0, 1}, -1) })
	require.Panics(t, func() {
		nodes := make([]NodeId, KMax+1)
		for i := range nodes {
			nodes[i] = NodeId(i)
		}
		big := NewModel(KMax+2, 2)
		big.AddClique(NewPotts(nodes, 1))
	})
	require.Panics(t, func() { m.Energy([]Label{0, 0, 0, 3}) })
}

func TestScale(t *testing.T) {
	require.Equal(t, Energy(25000), Scale(2.5))
	require.Equal(t, Energy(1250000), ScaleBy(2.5, 500000))
	require.Equal(t, Energy(9999), Scale(0.99999)) // truncation, not rounding
}
