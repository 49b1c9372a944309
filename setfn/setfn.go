// Package setfn manipulates integer set functions given as dense tables of
// size 1<<k, indexed by assignment bitmask (bit i set means position i takes
// its "B" value). These are the exact-arithmetic kernels behind the per-move
// clique reductions: everything here is deterministic and integer-only.
package setfn

import (
	"github.com/mrflab/sospd/energy"
	"github.com/mrflab/sospd/enforce"
	"github.com/mrflab/sospd/utils"
)

type Energy = energy.Energy

// Assignment mask over at most energy.KMax positions.
type Mask = uint32

// Submodularity repair sweeps before falling back to the modular bound.
const upperBoundMaxPasses = 256

func IsSubmodular(k int, g []Energy) bool {
	n := Mask(1) << k
	for s := Mask(0); s < n; s++ {
		for i := 0; i < k; i++ {
			bi := Mask(1) << i
			if s&bi != 0 {
				continue
			}
			for j := i + 1; j < k; j++ {
				bj := Mask(1) << j
				if s&bj != 0 {
					continue
				}
				if g[s|bi|bj]+g[s] > g[s|bi]+g[s|bj] {
					return false
				}
			}
		}
	}
	return true
}

// UpperBound raises entries of g, in place, until g is submodular. The result
// dominates the input pointwise, leaves an already-submodular g untouched,
// and is idempotent.
//
// The repair sweep visits masks in increasing order and pairs (i, j) with
// i < j; a violated inequality g(S+ij)+g(S) <= g(S+i)+g(S+j) is restored by
// splitting the violation across the two middle sets. Raising a middle set
// can re-violate neighbouring constraints, so the sweep repeats until a full
// pass is clean. If it has not settled within upperBoundMaxPasses the table
// is replaced by the modular bound g(0) + sum of max marginals, which is
// submodular and still dominates.
func UpperBound(k int, g []Energy) {
	n := Mask(1) << k
	for pass := 0; pass < upperBoundMaxPasses; pass++ {
		changed := false
		for s := Mask(0); s < n; s++ {
			for i := 0; i < k; i++ {
				bi := Mask(1) << i
				if s&bi != 0 {
					continue
				}
				for j := i + 1; j < k; j++ {
					bj := Mask(1) << j
					if s&bj != 0 {
						continue
					}
					d := g[s|bi|bj] + g[s] - g[s|bi] - g[s|bj]
					if d > 0 {
						g[s|bi] += (d + 1) / 2
						g[s|bj] += d / 2
						changed = true
					}
				}
			}
		}
		if !changed {
			return
		}
	}

	// Modular fallback: along any chain from the empty set, g(S) telescopes
	// into marginals that are each at most their position's max marginal, so
	// g(0) plus those maxima is a dominating modular table.
	base := g[0]
	var delta [energy.KMax]Energy
	for i := 0; i < k; i++ {
		bi := Mask(1) << i
		max := g[bi] - g[0]
		for s := Mask(0); s < n; s++ {
			if s&bi != 0 {
				continue
			}
			max = utils.Max(max, g[s|bi]-g[s])
		}
		delta[i] = max
	}
	for s := Mask(0); s < n; s++ {
		val := base
		for i := 0; i < k; i++ {
			if s&(1<<i) != 0 {
				val += delta[i]
			}
		}
		g[s] = val
	}
}

// ZeroMarginalSet rewrites g, in place, so every position in frozen has a
// zero marginal: g(S) = g(S \ frozen). Preserves submodularity, and (in the
// move context, where frozen positions keep the same label either way) the
// result still dominates the fusion energy.
func ZeroMarginalSet(k int, g []Energy, frozen Mask) {
	if frozen == 0 {
		return
	}
	n := Mask(1) << k
	for s := Mask(1); s < n; s++ {
		if s&frozen != 0 {
			g[s] = g[s&^frozen]
		}
	}
}

// SubtractLinear removes a linear term from g in place:
// g(S) -= sum_{i in S} lambdaB[i] + sum_{i not in S} lambdaA[i].
func SubtractLinear(k int, g []Energy, lambdaB, lambdaA []Energy) {
	n := Mask(1) << k
	for s := Mask(0); s < n; s++ {
		for i := 0; i < k; i++ {
			if s&(1<<i) != 0 {
				g[s] -= lambdaB[i]
			} else {
				g[s] -= lambdaA[i]
			}
		}
	}
}

// Normalize computes psi >= 0 with psi[i] = max(0, -min_{S containing i} g(S))
// for unfrozen positions (frozen ones take 0; their marginal is already zero,
// so the unfrozen offsets cover every negative set), then adds the modular
// term psi(S) into g. Afterwards g >= 0 everywhere and g(0) is unchanged.
// Adding a modular term preserves submodularity.
func Normalize(k int, g []Energy, psi []Energy, frozen Mask) {
	enforce.ENFORCE(len(psi) >= k, "psi buffer too small")
	n := Mask(1) << k
	for i := 0; i < k; i++ {
		psi[i] = 0
		bi := Mask(1) << i
		if frozen&bi != 0 {
			continue
		}
		min := g[bi]
		for s := Mask(0); s < n; s++ {
			if s&bi != 0 {
				min = utils.Min(min, g[s])
			}
		}
		if min < 0 {
			psi[i] = -min
		}
	}
	for s := Mask(1); s < n; s++ {
		for i := 0; i < k; i++ {
			if s&(1<<i) != 0 {
				g[s] += psi[i]
			}
		}
	}
}
