package stencil

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Export for diagnostics and solver interop: local interior rows against
// global columns, traversed row-major over rows then diagonal offsets, so
// repeated exports of the same operator are deterministic.

// ToDense materializes the local rows as a gonum dense matrix of
// dimension (local rows) x (global columns). Exact zeros are kept.
func (m *Mat) ToDense() (R *mat.Dense) {
	R = mat.NewDense(m.numLocalRows(), m.numGlobalCols(), nil)
	m.forEachStoredEntry(func(row, col int, val float64) {
		R.Set(row, col, R.At(row, col)+val)
	})
	return
}

// ToCSR exports the local rows in compressed sparse row form via a DOK
// accumulation pass. Exact zeros are dropped; entries outside the
// bandwidth do not exist to begin with.
func (m *Mat) ToCSR() *sparse.CSR {
	D := sparse.NewDOK(m.numLocalRows(), m.numGlobalCols())
	m.forEachStoredEntry(func(row, col int, val float64) {
		if val != 0 {
			D.Set(row, col, D.At(row, col)+val)
		}
	})
	return D.ToCSR()
}

func (m *Mat) numLocalRows() (nr int) {
	nr = 1
	for _, n := range m.codomain.LocalShape() {
		nr *= n
	}
	return
}

func (m *Mat) numGlobalCols() (nc int) {
	nc = 1
	for _, n := range m.domain.GlobalShape {
		nc *= n
	}
	return
}

// forEachStoredEntry walks owned interior rows in row-major order, then
// diagonal offsets in row-major order, reporting flattened local row and
// global column indices. Columns that wrap on periodic axes are folded
// into range; columns past a non-periodic boundary are skipped.
func (m *Mat) forEachStoredEntry(f func(row, col int, val float64)) {
	var (
		ndim = m.codomain.NumDims()
		lsC  = m.codomain.LocalShape()
		row  = make([]int, ndim)
		k    = make([]int, ndim)
		col  = make([]int, ndim)
	)
	for {
		// All diagonal offsets of this row
		for a := range k {
			k[a] = -m.bandLo[a]
		}
		for {
			inRange := true
			for a := 0; a < ndim; a++ {
				g := m.codomain.Starts[a] + row[a] + k[a]
				if m.domain.Periods[a] {
					n := m.domain.GlobalShape[a]
					g = ((g % n) + n) % n
				} else if g < 0 || g >= m.domain.GlobalShape[a] {
					inRange = false
					break
				}
				col[a] = g
			}
			if inRange {
				f(flatten(row, lsC), flatten(col, m.domain.GlobalShape), m.At(row, k))
			}
			if !odometer(k, m.bandHi, func(a int) int { return -m.bandLo[a] }) {
				break
			}
		}
		if !odometer(row, maxIndex(lsC), func(a int) int { return 0 }) {
			return
		}
	}
}

func flatten(idx, shape []int) (flat int) {
	for a := 0; a < len(shape); a++ {
		flat = flat*shape[a] + idx[a]
	}
	return
}

func maxIndex(shape []int) (max []int) {
	max = make([]int, len(shape))
	for a, n := range shape {
		max[a] = n - 1
	}
	return
}

// odometer advances idx row-major within [reset(a), max[a]] per axis and
// reports whether another position remains.
func odometer(idx, max []int, reset func(a int) int) bool {
	for a := len(idx) - 1; a >= 0; a-- {
		if idx[a] < max[a] {
			idx[a]++
			return true
		}
		idx[a] = reset(a)
	}
	return false
}
