package setfn

import (
	"math/bits"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randTable(r *rand.Rand, k int, max int64) []Energy {
	table := make([]Energy, 1<<k)
	for i := range table {
		table[i] = Energy(r.Int63n(max + 1))
	}
	return table
}

// A submodular table built from pieces that are submodular by construction:
// a nonnegative modular part, "not empty" / "not full" indicators, and a
// concave-of-cardinality term.
func randSubmodularTable(r *rand.Rand, k int) []Energy {
	n := 1 << k
	table := make([]Energy, n)
	w := make([]Energy, k)
	for i := range w {
		w[i] = Energy(r.Int63n(5))
	}
	wNotEmpty := Energy(r.Int63n(8))
	wNotFull := Energy(r.Int63n(8))
	wCard := Energy(r.Int63n(4))
	trunc := 1 + r.Intn(k)
	for s := 0; s < n; s++ {
		val := Energy(0)
		for i := 0; i < k; i++ {
			if s&(1<<i) != 0 {
				val += w[i]
			}
		}
		if s != 0 {
			val += wNotEmpty
		}
		if s != n-1 {
			val += wNotFull
		}
		pop := bits.OnesCount(uint(s))
		if pop > trunc {
			pop = trunc
		}
		val += wCard * Energy(pop)
		table[s] = val
	}
	return table
}

func clone(t []Energy) []Energy {
	out := make([]Energy, len(t))
	copy(out, t)
	return out
}

func TestRandSubmodularTableIsSubmodular(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		k := 2 + r.Intn(3)
		require.True(t, IsSubmodular(k, randSubmodularTable(r, k)))
	}
}

func TestUpperBoundDominatesAndIsSubmodular(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	const k = 4
	for trial := 0; trial < 200; trial++ {
		f := randTable(r, k, 20)
		g := clone(f)
		UpperBound(k, g)
		require.True(t, IsSubmodular(k, g), "trial %d", trial)
		for s := range f {
			require.GreaterOrEqual(t, g[s], f[s], "trial %d mask %d", trial, s)
		}
	}
}

// Applying the bound twice changes nothing.
func TestUpperBoundIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	const k = 4
	for trial := 0; trial < 200; trial++ {
		g := randTable(r, k, 20)
		UpperBound(k, g)
		again := clone(g)
		UpperBound(k, again)
		require.Equal(t, g, again, "trial %d", trial)
	}
}

func TestUpperBoundIdentityOnSubmodular(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 100; trial++ {
		k := 2 + r.Intn(3)
		f := randSubmodularTable(r, k)
		g := clone(f)
		UpperBound(k, g)
		require.Equal(t, f, g, "trial %d", trial)
	}
}

func TestUpperBoundDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	const k = 4
	for trial := 0; trial < 50; trial++ {
		f := randTable(r, k, 50)
		g1 := clone(f)
		g2 := clone(f)
		UpperBound(k, g1)
		UpperBound(k, g2)
		require.Equal(t, g1, g2)
	}
}

func TestZeroMarginalSet(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for trial := 0; trial < 100; trial++ {
		k := 2 + r.Intn(3)
		n := Mask(1) << k
		g := randSubmodularTable(r, k)
		frozen := Mask(r.Intn(1 << k))
		want := clone(g)
		ZeroMarginalSet(k, g, frozen)
		for s := Mask(0); s < n; s++ {
			require.Equal(t, want[s&^frozen], g[s])
		}
		// Frozen positions have zero marginals everywhere.
		for i := 0; i < k; i++ {
			bi := Mask(1) << i
			if frozen&bi == 0 {
				continue
			}
			for s := Mask(0); s < n; s++ {
				if s&bi == 0 {
					require.Equal(t, g[s], g[s|bi])
				}
			}
		}
		require.True(t, IsSubmodular(k, g))
	}
}

func TestSubtractLinear(t *testing.T) {
	g := []Energy{10, 20, 30, 40} // k = 2
	lambdaB := []Energy{1, 2}
	lambdaA := []Energy{3, 4}
	SubtractLinear(2, g, lambdaB, lambdaA)
	require.Equal(t, []Energy{10 - 3 - 4, 20 - 1 - 4, 30 - 3 - 2, 40 - 1 - 2}, g)
}

// SubtractLinear with duals tight at the empty set, then Normalize: the
// table ends nonnegative with the empty entry still zero.
func TestSubtractNormalize(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	for trial := 0; trial < 100; trial++ {
		k := 2 + r.Intn(3)
		n := Mask(1) << k
		g := randSubmodularTable(r, k)

		lambdaA := make([]Energy, k)
		rest := g[0]
		for i := 0; i < k; i++ {
			if i == k-1 {
				lambdaA[i] = rest
			} else {
				lambdaA[i] = Energy(r.Int63n(int64(rest)*2 + 1)) - rest // may overshoot either way
				rest -= lambdaA[i]
			}
		}
		lambdaB := make([]Energy, k)
		for i := range lambdaB {
			lambdaB[i] = Energy(r.Int63n(21) - 10)
		}

		SubtractLinear(k, g, lambdaB, lambdaA)
		require.Equal(t, Energy(0), g[0], "tightness at the current labeling")

		psi := make([]Energy, k)
		Normalize(k, g, psi, 0)
		require.Equal(t, Energy(0), g[0])
		require.True(t, IsSubmodular(k, g))
		for i := 0; i < k; i++ {
			require.GreaterOrEqual(t, psi[i], Energy(0))
		}
		for s := Mask(0); s < n; s++ {
			require.GreaterOrEqual(t, g[s], Energy(0), "trial %d mask %d", trial, s)
		}
	}
}

// Frozen positions take no offset, and the unfrozen offsets still repair
// every negative set when the frozen marginals are zero.
func TestNormalizeRespectsFrozen(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	for trial := 0; trial < 100; trial++ {
		k := 2 + r.Intn(3)
		n := Mask(1) << k
		g := randSubmodularTable(r, k)
		frozen := Mask(r.Intn(1<<k)) &^ 1 // keep position 0 unfrozen so repairs have somewhere to land
		ZeroMarginalSet(k, g, frozen)
		off := g[0]
		for s := range g {
			g[s] -= off // shift so some sets can go negative while g[0] == 0
		}
		shift := Energy(r.Int63n(15))
		for s := Mask(1); s < n; s++ {
			if s&frozen == s {
				continue
			}
			g[s] -= shift * Energy(bits.OnesCount32(uint32(s&^frozen)))
		}

		psi := make([]Energy, k)
		Normalize(k, g, psi, frozen)
		for i := 0; i < k; i++ {
			if frozen&(1<<i) != 0 {
				require.Equal(t, Energy(0), psi[i])
			}
		}
		for s := Mask(0); s < n; s++ {
			require.GreaterOrEqual(t, g[s], Energy(0), "trial %d mask %d", trial, s)
		}
	}
}
