// Package cmatrix provides the intent confusion matrix: construction,
// per-class metrics, row/column reordering via simulated annealing, and
// neighbor-connectivity clustering.
package cmatrix

import (
	"fmt"
	"sort"
)

// Matrix is a square confusion matrix: rows index the true intent, columns
// the predicted one.
type Matrix [][]int

// NewMatrix allocates an n x n zero matrix.
func NewMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	return m
}

// Build assembles a matrix and its label order from per-intent prediction
// counts (true intent -> predicted intent -> count). Labels are the union
// of all intents seen on either axis, sorted.
func Build(predictions map[string]map[string]int) (Matrix, []string) {
	seen := map[string]bool{}
	for truth, row := range predictions {
		seen[truth] = true
		for predicted := range row {
			seen[predicted] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}
	m := NewMatrix(len(labels))
	for truth, row := range predictions {
		for predicted, count := range row {
			m[index[truth]][index[predicted]] += count
		}
	}
	return m, labels
}

// Validate checks squareness.
func (m Matrix) Validate() error {
	for i, row := range m {
		if len(row) != len(m) {
			return fmt.Errorf("confusion matrix is not square: row %d has %d columns, want %d", i, len(row), len(m))
		}
	}
	return nil
}

// Clone deep-copies the matrix.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Trace sums the diagonal: the count of correct classifications.
func (m Matrix) Trace() int {
	total := 0
	for i := range m {
		total += m[i][i]
	}
	return total
}

// Total sums every cell.
func (m Matrix) Total() int {
	total := 0
	for _, row := range m {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// Accuracy is trace over total mass.
func (m Matrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.Trace()) / float64(total)
}

// Apply permutes rows and columns symmetrically: out = m[perm][:, perm].
func (m Matrix) Apply(perm []int) Matrix {
	n := len(m)
	out := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i][j] = m[perm[i]][perm[j]]
		}
	}
	return out
}

// ClassReport carries the per-class quality numbers.
type ClassReport struct {
	Label     string  `json:"label"`
	Support   int     `json:"support"`
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
	F1        float64 `json:"f1"`
}

// Report computes per-row recall, per-column precision and F1.
func (m Matrix) Report(labels []string) []ClassReport {
	n := len(m)
	out := make([]ClassReport, n)
	for i := 0; i < n; i++ {
		rowSum, colSum := 0, 0
		for j := 0; j < n; j++ {
			rowSum += m[i][j]
			colSum += m[j][i]
		}
		r := ClassReport{Support: rowSum}
		if i < len(labels) {
			r.Label = labels[i]
		}
		if rowSum > 0 {
			r.Recall = float64(m[i][i]) / float64(rowSum)
		}
		if colSum > 0 {
			r.Precision = float64(m[i][i]) / float64(colSum)
		}
		if r.Recall+r.Precision > 0 {
			r.F1 = 2 * r.Recall * r.Precision / (r.Recall + r.Precision)
		}
		out[i] = r
	}
	return out
}
