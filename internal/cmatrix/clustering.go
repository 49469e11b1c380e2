package cmatrix

import "sort"

// Clustering cuts the reordered matrix into contiguous blocks of mutually
// confusable labels, based on how much mass adjacent labels exchange.

// Connectivity returns c_i = m[i][i+1] + m[i+1][i] for each adjacent pair.
func Connectivity(m Matrix) []int {
	n := len(m)
	if n < 2 {
		return nil
	}
	out := make([]int, n-1)
	for i := 0; i < n-1; i++ {
		out[i] = m[i][i+1] + m[i+1][i]
	}
	return out
}

// FindThreshold picks the cut threshold so that roughly the given fraction
// of adjacent pairs falls strictly below it and gets cut.
func FindThreshold(connectivity []int, fraction float64) int {
	if len(connectivity) == 0 {
		return 0
	}
	sorted := append([]int(nil), connectivity...)
	sort.Ints(sorted)
	idx := int(float64(len(sorted)) * fraction)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// ExtractClusters returns the cut marks: cuts[i] is true when a cluster
// boundary sits between labels i and i+1. Matrices with fewer than 3
// labels are never cut; clustering them is a manual decision.
func ExtractClusters(m Matrix, fraction float64) []bool {
	if len(m) < 3 {
		return make([]bool, maxInt(0, len(m)-1))
	}
	connectivity := Connectivity(m)
	threshold := FindThreshold(connectivity, fraction)
	cuts := make([]bool, len(connectivity))
	for i, c := range connectivity {
		cuts[i] = c < threshold
	}
	return cuts
}

// ApplyGrouping splits labels at the cut marks into contiguous clusters.
func ApplyGrouping(labels []string, cuts []bool) [][]string {
	if len(labels) == 0 {
		return nil
	}
	var groups [][]string
	current := []string{labels[0]}
	for i := 1; i < len(labels); i++ {
		if i-1 < len(cuts) && cuts[i-1] {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, labels[i])
	}
	groups = append(groups, current)
	return groups
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
