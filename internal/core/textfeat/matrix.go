package textfeat

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Matrix is a sparse row-major (CSR) matrix. Row i occupies
// Indices[Indptr[i]:Indptr[i+1]] and Data[Indptr[i]:Indptr[i+1]].
type Matrix struct {
	NumRows int       `json:"num_rows"`
	NumCols int       `json:"num_cols"`
	Indptr  []int     `json:"indptr"`
	Indices []int     `json:"indices"`
	Data    []float64 `json:"data"`
}

// SparseVec is a single sparse row with indices sorted ascending.
type SparseVec struct {
	Indices []int
	Values  []float64
	Dim     int
}

func (m *Matrix) Row(i int) SparseVec {
	start, end := m.Indptr[i], m.Indptr[i+1]
	return SparseVec{Indices: m.Indices[start:end], Values: m.Data[start:end], Dim: m.NumCols}
}

func (m *Matrix) AppendRow(vec SparseVec) {
	m.Indices = append(m.Indices, vec.Indices...)
	m.Data = append(m.Data, vec.Values...)
	m.Indptr = append(m.Indptr, len(m.Indices))
	m.NumRows++
}

func NewMatrix(numCols int) *Matrix {
	return &Matrix{NumCols: numCols, Indptr: []int{0}}
}

func (v SparseVec) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Dot assumes both vectors have their indices sorted ascending.
func (v SparseVec) Dot(other SparseVec) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] == other.Indices[j]:
			sum += v.Values[i] * other.Values[j]
			i++
			j++
		case v.Indices[i] < other.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Dense expands the vector into a []float64 of length Dim.
func (v SparseVec) Dense() []float64 {
	out := make([]float64, v.Dim)
	for k, idx := range v.Indices {
		out[idx] = v.Values[k]
	}
	return out
}

// CosineSimilarities returns the cosine similarity between query and every row
// of m. Zero rows and zero queries yield similarity 0.
func CosineSimilarities(query SparseVec, m *Matrix) ([]float64, error) {
	if query.Dim != m.NumCols {
		return nil, fmt.Errorf("dimension mismatch: query has %d features, matrix has %d", query.Dim, m.NumCols)
	}
	qnorm := query.Norm()
	sims := make([]float64, m.NumRows)
	if qnorm == 0 {
		return sims, nil
	}
	for i := 0; i < m.NumRows; i++ {
		row := m.Row(i)
		rnorm := row.Norm()
		if rnorm == 0 {
			continue
		}
		sims[i] = query.Dot(row) / (qnorm * rnorm)
	}
	return sims, nil
}

func (m *Matrix) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("error serializing matrix: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing matrix to %s: %w", path, err)
	}
	return nil
}

func LoadMatrix(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading matrix from %s: %w", path, err)
	}
	var m Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing matrix from %s: %w", path, err)
	}
	return &m, nil
}
