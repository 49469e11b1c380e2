package cmatrix

import (
	"math"
	"math/rand"
)

// Reordering reveals clusters of mutually confusable intents: a permutation
// is sought that pulls the off-diagonal mass toward the diagonal.

// Weights builds the scoring weight matrix: W[i][j] = |i-j| + 0.01*(i+j)
// off the diagonal, zero on it. The small asymmetric term breaks score
// ties so the optimum is unique.
func Weights(n int) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
		for j := range w[i] {
			if i == j {
				continue
			}
			w[i][j] = math.Abs(float64(i-j)) + 0.01*float64(i+j)
		}
	}
	return w
}

// Score is the weighted off-diagonal mass of the matrix.
func Score(m Matrix, weights [][]float64) float64 {
	total := 0.0
	for i := range m {
		for j := range m[i] {
			total += float64(m[i][j]) * weights[i][j]
		}
	}
	return total
}

// AnnealingConfig tunes the optimizer.
type AnnealingConfig struct {
	Steps int
	Temp  float64
	// Deterministic accepts only strict improvements (plain descent).
	Deterministic bool
}

// DefaultAnnealingConfig matches the documented schedule: 2e5 steps,
// initial temperature 100, multiplicative decay 0.99 per step.
func DefaultAnnealingConfig() AnnealingConfig {
	return AnnealingConfig{Steps: 200_000, Temp: 100}
}

// AnnealingResult is the best permutation found and the reordered matrix.
type AnnealingResult struct {
	Perm []int
	CM   Matrix
}

const tempDecay = 0.99

// SimulatedAnnealing searches for a row/column permutation minimizing the
// weighted score. Per step it proposes either a pair swap (p=0.5, forced
// for matrices smaller than 3) or a contiguous block move, accepts
// improvements always and regressions with probability exp(-delta/T), and
// decays T once per step. The rng is caller-seeded for determinism.
func SimulatedAnnealing(m Matrix, cfg AnnealingConfig, rng *rand.Rand) AnnealingResult {
	n := len(m)
	perm := identity(n)
	if n < 2 {
		return AnnealingResult{Perm: perm, CM: m.Clone()}
	}

	weights := Weights(n)
	current := m.Clone()
	currentScore := Score(current, weights)
	best := AnnealingResult{Perm: append([]int(nil), perm...), CM: current.Clone()}
	bestScore := currentScore
	temp := cfg.Temp

	for step := 0; step < cfg.Steps; step++ {
		candidate := append([]int(nil), perm...)
		if n < 3 || rng.Float64() < 0.5 {
			i := rng.Intn(n)
			j := rng.Intn(n - 1)
			if j >= i {
				j++
			}
			swap1D(candidate, i, j)
		} else {
			fromStart := rng.Intn(n - 2)
			fromEnd := fromStart + 1 + rng.Intn(n-2-fromStart)
			insert := randOutsideBlock(rng, n, fromStart, fromEnd)
			candidate = move1D(candidate, fromStart, fromEnd, insert)
		}

		next := m.Apply(candidate)
		nextScore := Score(next, weights)
		accept := nextScore < currentScore
		if !accept && !cfg.Deterministic && temp > 0 {
			accept = rng.Float64() <= math.Min(1, math.Exp(-(nextScore-currentScore)/temp))
		}
		if accept {
			perm = candidate
			current = next
			currentScore = nextScore
			if currentScore < bestScore {
				bestScore = currentScore
				best.Perm = append([]int(nil), perm...)
				best.CM = current.Clone()
			}
		}
		temp *= tempDecay
	}
	return best
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// swap1D exchanges two positions in place.
func swap1D(perm []int, i, j int) {
	perm[i], perm[j] = perm[j], perm[i]
}

// move1D moves the block perm[from:to+1] so it starts at insert, with
// insert interpreted against the sequence with the block removed.
func move1D(perm []int, from, to, insert int) []int {
	block := append([]int(nil), perm[from:to+1]...)
	rest := append([]int(nil), perm[:from]...)
	rest = append(rest, perm[to+1:]...)
	if insert > len(rest) {
		insert = len(rest)
	}
	out := append([]int(nil), rest[:insert]...)
	out = append(out, block...)
	out = append(out, rest[insert:]...)
	return out
}

// randOutsideBlock picks an insertion point not inside [from, to].
func randOutsideBlock(rng *rand.Rand, n, from, to int) int {
	blockLen := to - from + 1
	limit := n - blockLen
	if limit <= 0 {
		return 0
	}
	return rng.Intn(limit + 1)
}

// InversePerm returns the permutation that undoes perm.
func InversePerm(perm []int) []int {
	out := make([]int, len(perm))
	for i, p := range perm {
		out[p] = i
	}
	return out
}
