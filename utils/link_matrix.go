package utils

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// LinkMatrix is a square adjacency matrix between blocks, assembled as a DOK
// and frozen into CSR for queries.
type LinkMatrix struct {
	dok      *sparse.DOK
	csr      *sparse.CSR
	readOnly bool
	name     string
}

func NewLinkMatrix(n int, name string) (R *LinkMatrix) {
	R = &LinkMatrix{
		dok:  sparse.NewDOK(n, n),
		name: name,
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m *LinkMatrix) Dims() (r, c int)    { return m.dok.Dims() }
func (m *LinkMatrix) At(i, j int) float64 { return m.dok.At(i, j) }
func (m *LinkMatrix) T() mat.Matrix       { return m.dok.T() }

func (m *LinkMatrix) AddLink(from, to int) {
	m.checkWritable()
	m.dok.Set(from, to, 1)
}

func (m *LinkMatrix) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// Freeze converts the assembled links to CSR, further AddLink calls panic.
func (m *LinkMatrix) Freeze() *LinkMatrix {
	if !m.readOnly {
		m.csr = m.dok.ToCSR()
		m.readOnly = true
	}
	return m
}

func (m *LinkMatrix) RawMatrix() *blas.SparseMatrix {
	return m.Freeze().csr.RawMatrix()
}

func (m *LinkMatrix) NumLinks() int {
	return m.dok.NNZ()
}

// Neighbors returns the sorted column indices linked from row i.
func (m *LinkMatrix) Neighbors(i int) (nbrs []int) {
	raw := m.RawMatrix()
	for _, j := range raw.Ind[raw.Indptr[i]:raw.Indptr[i+1]] {
		nbrs = append(nbrs, j)
	}
	sort.Ints(nbrs)
	return
}

func (m *LinkMatrix) IsSymmetric() bool {
	m.Freeze()
	return mat.Equal(m.csr, m.csr.T())
}

func (m *LinkMatrix) String() string {
	var (
		nr, _ = m.Dims()
		s     = fmt.Sprintf("%s: %d links\n", m.name, m.NumLinks())
	)
	for i := 0; i < nr; i++ {
		s += fmt.Sprintf("  %d -> %v\n", i, m.Neighbors(i))
	}
	return s
}
