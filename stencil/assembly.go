package stencil

import (
	"sync"

	"github.com/notargets/goiga/decomp"
)

// CellContribution is the output of the external quadrature/basis layer
// for one cell: a dense array of contributions, one per pair of local
// test/trial basis functions with support on the cell, plus the global
// basis indices those local functions map to.
type CellContribution struct {
	Rows [][]int   // global multi-indices of the test functions
	Cols [][]int   // global multi-indices of the trial functions (matrix part)
	A    []float64 // len(Rows)*len(Cols), row-major; nil if no matrix part
	B    []float64 // len(Rows); nil if no vector part
}

// CellKernel produces the contribution of one local cell. Invoked as an
// opaque integration callback; the core only scatters its results.
type CellKernel func(cell []int) CellContribution

// ScatterMatrix adds each contribution into the operator at the row and
// diagonal offset implied by the global indices. Rows owned by a neighbor
// land in this rank's ghost rows and are reconciled by the operator's
// UpdateGhostRegions. Contributions are additive and order-independent.
func ScatterMatrix(m *Mat, c CellContribution) {
	if c.A == nil {
		return
	}
	nc := len(c.Cols)
	for i, rg := range c.Rows {
		row, ok := m.codomain.LocalIndex(rg)
		if !ok {
			panic(indexErrorf("stencil: row %v is outside this rank's buffer", rg))
		}
		for j, cg := range c.Cols {
			val := c.A[i*nc+j]
			if val == 0 {
				continue
			}
			m.AddAt(row, diagOffset(m, rg, cg), val)
		}
	}
}

// ScatterVector adds the load-vector part of a contribution.
func ScatterVector(v *Vec, c CellContribution) {
	if c.B == nil {
		return
	}
	for i, rg := range c.Rows {
		row, ok := v.dec.LocalIndex(rg)
		if !ok {
			panic(indexErrorf("stencil: row %v is outside this rank's buffer", rg))
		}
		v.AddAt(row, c.B[i])
	}
}

// diagOffset computes the per-axis diagonal offset from a global row to a
// global column, folding periodic wraparound back into the bandwidth.
func diagOffset(m *Mat, rg, cg []int) (k []int) {
	k = make([]int, len(rg))
	for a := range rg {
		ka := cg[a] - rg[a]
		if m.domain.Periods[a] {
			n := m.domain.GlobalShape[a]
			if ka > m.bandHi[a] {
				ka -= n
			} else if ka < -m.bandLo[a] {
				ka += n
			}
		}
		k[a] = ka
	}
	return
}

// AssembleCells integrates and scatters every cell in the list. Either of
// m and b may be nil to assemble only an operator or only a load vector.
// With nWorkers > 1 the cell list is split evenly across workers, each
// accumulating into private scratch storage merged additively afterward,
// so the result is independent of both traversal order and worker count.
func AssembleCells(m *Mat, b *Vec, cells [][]int, kern CellKernel, nWorkers int) {
	if nWorkers <= 1 || len(cells) < 2*nWorkers {
		for _, cell := range cells {
			c := kern(cell)
			if m != nil {
				ScatterMatrix(m, c)
			}
			if b != nil {
				ScatterVector(b, c)
			}
		}
		return
	}
	var (
		wg       sync.WaitGroup
		mScratch = make([]*Mat, nWorkers)
		bScratch = make([]*Vec, nWorkers)
	)
	for w := 0; w < nWorkers; w++ {
		if m != nil {
			mScratch[w] = m.cloneZero()
		}
		if b != nil {
			bScratch[w] = NewVec(b.dec)
		}
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			start, n := decomp.SplitAxis(len(cells), nWorkers, w)
			for _, cell := range cells[start : start+n] {
				c := kern(cell)
				if m != nil {
					ScatterMatrix(mScratch[w], c)
				}
				if b != nil {
					ScatterVector(bScratch[w], c)
				}
			}
		}(w)
	}
	wg.Wait()
	for w := 0; w < nWorkers; w++ {
		if m != nil {
			m.merge(mScratch[w])
		}
		if b != nil {
			b.Axpy(1, bScratch[w])
		}
	}
}
