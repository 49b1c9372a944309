package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/mrflab/sospd/energy"
	"github.com/mrflab/sospd/sospd"
	"github.com/mrflab/sospd/utils"
)

// Random smoothing instance: a grid with noisy unaries and Potts edges,
// optionally topped with higher-order Potts cliques over random node subsets.
func buildInstance(r *rand.Rand, side, numLabels int, pottsWeight energy.Energy, hoCount, hoArity int) *energy.Model {
	n := side * side
	m := energy.NewModel(n, numLabels)
	costs := make([]energy.Energy, numLabels)
	for v := 0; v < n; v++ {
		for l := range costs {
			costs[l] = energy.Energy(r.Int63n(100))
		}
		m.AddUnary(energy.NodeId(v), costs)
	}
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			v := energy.NodeId(y*side + x)
			if x+1 < side {
				m.AddClique(energy.NewPotts([]energy.NodeId{v, v + 1}, pottsWeight))
			}
			if y+1 < side {
				m.AddClique(energy.NewPotts([]energy.NodeId{v, v + energy.NodeId(side)}, pottsWeight))
			}
		}
	}
	for c := 0; c < hoCount; c++ {
		perm := r.Perm(n)[:hoArity]
		nodes := make([]energy.NodeId, hoArity)
		for i, v := range perm {
			nodes[i] = energy.NodeId(v)
		}
		m.AddClique(energy.NewPotts(nodes, pottsWeight))
	}
	return m
}

// Launch point. Builds random instances, runs the solver, reports statistics.
func main() {
	sidePtr := flag.Int("n", 16, "Grid side length; the instance has n*n nodes.")
	labelsPtr := flag.Int("l", 4, "Number of labels.")
	weightPtr := flag.Int64("w", 20, "Potts smoothing weight.")
	hoPtr := flag.Int("ho", 0, "Number of extra higher-order Potts cliques.")
	arityPtr := flag.Int("ha", 4, "Arity of the extra higher-order cliques.")
	runsPtr := flag.Int("runs", 5, "Number of instances to solve.")
	seedPtr := flag.Int64("seed", 1, "Base RNG seed; run i uses seed+i.")
	dualPtr := flag.Bool("dual", false, "Use dual-guided fusion instead of the expansion sweep.")
	checkPtr := flag.Bool("c", false, "Check invariants around every sub-phase (slow).")
	debugPtr := flag.Int("debug", 0, "Adds extra debug output. 0 for info, 1 for debug, 2+ for trace.")
	colourPtr := flag.Bool("nc", false, "Removes the colouring from the log output.")
	flag.Parse()

	if *colourPtr {
		utils.SetLoggerConsole(true)
	}
	utils.SetLevel(*debugPtr)

	if *arityPtr < 2 || *arityPtr > energy.KMax {
		log.Panic().Msg("Higher-order arity must be in [2, " + utils.V(energy.KMax) + "]")
	}

	opts := sospd.Options{CheckInvariants: *checkPtr, DebugLevel: uint8(*debugPtr)}
	times := make([]float64, 0, *runsPtr)
	energies := make([]float64, 0, *runsPtr)
	rounds := make([]float64, 0, *runsPtr)

	for run := 0; run < *runsPtr; run++ {
		r := rand.New(rand.NewSource(*seedPtr + int64(run)))
		m := buildInstance(r, *sidePtr, *labelsPtr, energy.Energy(*weightPtr), *hoPtr, *arityPtr)
		s := sospd.New(m, opts)

		start := time.Now()
		if *dualPtr {
			s.SolveDualGuided()
		} else {
			s.Solve()
		}
		elapsed := time.Since(start)

		times = append(times, elapsed.Seconds())
		energies = append(energies, float64(s.Energy()))
		rounds = append(rounds, float64(s.Rounds))
		log.Info().Msg("run " + utils.V(run) + ": energy " + utils.V(s.Energy()) +
			" rounds " + utils.V(s.Rounds) + " time " + utils.V(elapsed))
	}

	log.Info().Msg("energy mean " + utils.F("%.1f", stat.Mean(energies, nil)) +
		" stddev " + utils.F("%.1f", stat.StdDev(energies, nil)))
	log.Info().Msg("time mean " + utils.F("%.4fs", stat.Mean(times, nil)) +
		" stddev " + utils.F("%.4fs", stat.StdDev(times, nil)) +
		" rounds mean " + utils.F("%.1f", stat.Mean(rounds, nil)))
}
