package stencil

import "math"

// BlockVec aggregates one Vec per field of a vector-valued or multi-field
// problem into a single algebraic object. Every operation delegates
// per-block and combines results.
type BlockVec struct {
	V []*Vec
}

func NewBlockVec(components ...*Vec) *BlockVec {
	if len(components) == 0 {
		panic(shapeErrorf("stencil: block vector needs at least one component"))
	}
	return &BlockVec{V: components}
}

func (b *BlockVec) NumBlocks() int { return len(b.V) }

func mustBlockVec(x Vector, nblocks int) *BlockVec {
	w, ok := x.(*BlockVec)
	if !ok {
		panic(shapeErrorf("stencil: expected block vector, got %T", x))
	}
	if len(w.V) != nblocks {
		panic(shapeErrorf("stencil: block count mismatch: %d vs %d", len(w.V), nblocks))
	}
	return w
}

func (b *BlockVec) Dot(other Vector) (sum float64) {
	w := mustBlockVec(other, len(b.V))
	for i, v := range b.V {
		sum += v.Dot(w.V[i])
	}
	return
}

func (b *BlockVec) Norm() float64 { return math.Sqrt(b.Dot(b)) }

func (b *BlockVec) Axpy(alpha float64, other Vector) {
	w := mustBlockVec(other, len(b.V))
	for i, v := range b.V {
		v.Axpy(alpha, w.V[i])
	}
}

func (b *BlockVec) Copy() Vector {
	components := make([]*Vec, len(b.V))
	for i, v := range b.V {
		components[i] = v.clone()
	}
	return &BlockVec{V: components}
}

func (b *BlockVec) Zero() {
	for _, v := range b.V {
		v.Zero()
	}
}

func (b *BlockVec) Conjugate() Vector { return b.Copy() }

func (b *BlockVec) UpdateGhostRegions() {
	for _, v := range b.V {
		v.UpdateGhostRegions()
	}
}

func (b *BlockVec) RefreshGhostRegions() {
	for _, v := range b.V {
		v.RefreshGhostRegions()
	}
}

// BlockMat is a block-row by block-column grid of stencil operators for
// multi-field systems. A nil cell is a zero block. All blocks in one
// block-row must share a codomain decomposition and all blocks in one
// block-column a domain decomposition.
type BlockMat struct {
	M      [][]*Mat
	Nr, Nc int
}

func NewBlockMat(nr, nc int) (bm *BlockMat) {
	bm = &BlockMat{Nr: nr, Nc: nc}
	bm.M = make([][]*Mat, nr)
	for i := range bm.M {
		bm.M[i] = make([]*Mat, nc)
	}
	return
}

// SetBlock installs a block, enforcing the row/column compatibility
// invariants against the blocks already present.
func (bm *BlockMat) SetBlock(i, j int, m *Mat) {
	if i < 0 || i >= bm.Nr || j < 0 || j >= bm.Nc {
		panic(indexErrorf("stencil: block (%d,%d) outside %dx%d block grid", i, j, bm.Nr, bm.Nc))
	}
	for jj, other := range bm.M[i] {
		if other != nil && other.codomain != m.codomain {
			panic(shapeErrorf("stencil: block (%d,%d) codomain differs from block (%d,%d) in the same block-row", i, j, i, jj))
		}
	}
	for ii := 0; ii < bm.Nr; ii++ {
		if other := bm.M[ii][j]; other != nil && other.domain != m.domain {
			panic(shapeErrorf("stencil: block (%d,%d) domain differs from block (%d,%d) in the same block-column", i, j, ii, j))
		}
	}
	bm.M[i][j] = m
}

// Dot applies the block operator to a block vector with one component per
// block-column, producing one component per block-row.
func (bm *BlockMat) Dot(x Vector) Vector {
	w := mustBlockVec(x, bm.Nc)
	out := make([]*Vec, bm.Nr)
	for i := 0; i < bm.Nr; i++ {
		for j := 0; j < bm.Nc; j++ {
			m := bm.M[i][j]
			if m == nil {
				continue
			}
			term := m.Dot(w.V[j]).(*Vec)
			if out[i] == nil {
				out[i] = term
			} else {
				out[i].Axpy(1, term)
			}
		}
		if out[i] == nil {
			panic(shapeErrorf("stencil: block-row %d has no blocks, codomain space unknown", i))
		}
	}
	return &BlockVec{V: out}
}

func (bm *BlockMat) UpdateGhostRegions() {
	for _, row := range bm.M {
		for _, m := range row {
			if m != nil {
				m.UpdateGhostRegions()
			}
		}
	}
}

func (bm *BlockMat) RefreshGhostRegions() {
	for _, row := range bm.M {
		for _, m := range row {
			if m != nil {
				m.RefreshGhostRegions()
			}
		}
	}
}
