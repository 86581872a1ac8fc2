package stencil

import (
	"fmt"

	"github.com/notargets/goiga/decomp"
)

// Mat is a distributed banded operator between two stencil vector spaces.
// Only diagonals within the per-axis bandwidth are stored: the entry at
// local row r and diagonal offset k couples row r to column r+k in the
// domain space; offsets beyond the bandwidth are implicitly zero. Rows
// span the codomain buffer including ghost rows, so per-cell assembly may
// scatter into rows owned by a neighbor; UpdateGhostRegions reconciles
// them afterward.
type Mat struct {
	domain, codomain *decomp.CartDecomp
	bandLo, bandHi   []int
	diagShape        []int
	diagStrides      []int
	payload          int // diagonal block size per row
	rowStrides       []int
	data             []float64
	ex               *exchanger
}

// NewMat creates a zero-filled operator mapping the domain space into the
// codomain space. The decompositions may differ (rectangular operators)
// but must share a communicator, and the bandwidth cannot exceed the
// domain ghost width or products could read past the halo.
func NewMat(domain, codomain *decomp.CartDecomp, bandLo, bandHi []int) (m *Mat, err error) {
	ndim := domain.NumDims()
	if codomain.NumDims() != ndim {
		return nil, fmt.Errorf("%w: domain has %d axes, codomain %d",
			decomp.ErrConfiguration, ndim, codomain.NumDims())
	}
	if domain.Comm() != codomain.Comm() {
		return nil, fmt.Errorf("%w: domain and codomain use different communicators",
			decomp.ErrConfiguration)
	}
	if len(bandLo) != ndim || len(bandHi) != ndim {
		return nil, fmt.Errorf("%w: bandwidth has %d/%d axes, want %d",
			decomp.ErrConfiguration, len(bandLo), len(bandHi), ndim)
	}
	m = &Mat{
		domain:      domain,
		codomain:    codomain,
		bandLo:      append([]int{}, bandLo...),
		bandHi:      append([]int{}, bandHi...),
		diagShape:   make([]int, ndim),
		diagStrides: make([]int, ndim),
		payload:     1,
	}
	for a := 0; a < ndim; a++ {
		if bandLo[a] < 0 || bandHi[a] < 0 {
			return nil, fmt.Errorf("%w: negative bandwidth on axis %d",
				decomp.ErrConfiguration, a)
		}
		if bandLo[a] > domain.Pads[a] || bandHi[a] > domain.Pads[a] {
			return nil, fmt.Errorf("%w: bandwidth (%d,%d) on axis %d exceeds domain ghost width %d",
				decomp.ErrConfiguration, bandLo[a], bandHi[a], a, domain.Pads[a])
		}
		m.diagShape[a] = bandLo[a] + bandHi[a] + 1
	}
	stride := 1
	for a := ndim - 1; a >= 0; a-- {
		m.diagStrides[a] = stride
		stride *= m.diagShape[a]
	}
	m.payload = stride
	m.ex = newExchanger(codomain, m.payload)
	m.rowStrides = m.ex.strides
	size := m.payload
	for _, extent := range codomain.BufferShape() {
		size *= extent
	}
	m.data = make([]float64, size)
	return m, nil
}

func (m *Mat) Domain() *decomp.CartDecomp   { return m.domain }
func (m *Mat) Codomain() *decomp.CartDecomp { return m.codomain }
func (m *Mat) Bandwidth() (lo, hi []int)    { return m.bandLo, m.bandHi }

func (m *Mat) offset(row, k []int) (off int) {
	var (
		pads = m.codomain.Pads
		ls   = m.codomain.LocalShape()
		ndim = len(ls)
	)
	if len(row) != ndim || len(k) != ndim {
		panic(indexErrorf("stencil: row/offset have %d/%d axes, matrix has %d",
			len(row), len(k), ndim))
	}
	for a := 0; a < ndim; a++ {
		if row[a] < -pads[a] || row[a] >= ls[a]+pads[a] {
			panic(indexErrorf("stencil: row %d on axis %d outside buffer range [%d,%d)",
				row[a], a, -pads[a], ls[a]+pads[a]))
		}
		if k[a] < -m.bandLo[a] || k[a] > m.bandHi[a] {
			panic(indexErrorf("stencil: diagonal offset %d on axis %d outside bandwidth [%d,%d]",
				k[a], a, -m.bandLo[a], m.bandHi[a]))
		}
		off += (row[a]+pads[a])*m.rowStrides[a] + (k[a]+m.bandLo[a])*m.diagStrides[a]
	}
	return
}

// At returns the coefficient coupling local row to column row+k.
func (m *Mat) At(row, k []int) float64 { return m.data[m.offset(row, k)] }

func (m *Mat) Set(row, k []int, val float64) { m.data[m.offset(row, k)] = val }

// AddAt accumulates a contribution, possibly into a ghost row.
func (m *Mat) AddAt(row, k []int, val float64) { m.data[m.offset(row, k)] += val }

// Dot applies the operator to x and returns a new vector over the
// codomain space. The input halo must already be current: callers refresh
// or update ghosts first. This is a precondition, not performed here, so
// chained products do not pay for redundant communication.
func (m *Mat) Dot(x Vector) Vector {
	var (
		v    = mustVec(x)
		ndim = m.domain.NumDims()
	)
	if v.dec != m.domain {
		panic(shapeErrorf("stencil: input vector is not over the operator's domain"))
	}
	// Row r of the codomain reads domain positions r+shift+k; every one
	// of them must fall inside the input's padded buffer.
	shift := make([]int, ndim)
	for a := 0; a < ndim; a++ {
		shift[a] = m.codomain.Starts[a] - m.domain.Starts[a]
		var (
			lo = shift[a] - m.bandLo[a]
			hi = m.codomain.LocalShape()[a] - 1 + shift[a] + m.bandHi[a]
		)
		if lo < -m.domain.Pads[a] || hi >= m.domain.LocalShape()[a]+m.domain.Pads[a] {
			panic(shapeErrorf("stencil: bandwidth plus domain/codomain offset exceeds input halo on axis %d", a))
		}
	}
	// The buffer displacement of each diagonal offset is constant across
	// rows, so precompute it once per product.
	relOffs := make([]int, m.payload)
	for d := 0; d < m.payload; d++ {
		rem := d
		for a := 0; a < ndim; a++ {
			ka := rem/m.diagStrides[a] - m.bandLo[a]
			rem %= m.diagStrides[a]
			relOffs[d] += (ka + shift[a]) * v.strides[a]
		}
	}
	var (
		out   = NewVec(m.codomain)
		lsC   = m.codomain.LocalShape()
		padC  = m.codomain.Pads
		padD  = m.domain.Pads
		inner = lsC[ndim-1]
		idx   = make([]int, ndim-1)
	)
	for {
		var rowOff, vOff, outOff int
		for a := 0; a < ndim-1; a++ {
			rowOff += (idx[a] + padC[a]) * m.rowStrides[a]
			vOff += (idx[a] + shift[a] + padD[a]) * v.strides[a]
			outOff += (idx[a] + padC[a]) * out.strides[a]
		}
		rowOff += padC[ndim-1] * m.rowStrides[ndim-1]
		vOff += (shift[ndim-1] + padD[ndim-1]) * v.strides[ndim-1]
		outOff += padC[ndim-1]
		for i := 0; i < inner; i++ {
			var (
				sum  float64
				mrow = m.data[rowOff : rowOff+m.payload]
			)
			for d, rel := range relOffs {
				sum += mrow[d] * v.data[vOff+rel]
			}
			out.data[outOff] = sum
			rowOff += m.payload
			vOff++
			outOff++
		}
		a := ndim - 2
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < lsC[a] {
				break
			}
			idx[a] = 0
		}
		if a < 0 {
			break
		}
	}
	return out
}

// UpdateGhostRegions reconciles contributions accumulated in ghost rows
// into the owning ranks and refreshes the ghost row blocks, with the same
// additive-then-refresh contract as the vector exchange, applied per
// row-block along each axis.
func (m *Mat) UpdateGhostRegions() { m.ex.exchange(m.data, true) }

// RefreshGhostRegions refreshes ghost row blocks without accumulating.
func (m *Mat) RefreshGhostRegions() { m.ex.exchange(m.data, false) }

// cloneZero allocates an operator with identical structure and zero
// entries, used for per-worker assembly scratch.
func (m *Mat) cloneZero() *Mat {
	w, err := NewMat(m.domain, m.codomain, m.bandLo, m.bandHi)
	if err != nil {
		panic(err)
	}
	return w
}

// merge adds every stored coefficient of w, ghost rows included.
func (m *Mat) merge(w *Mat) {
	for i, val := range w.data {
		m.data[i] += val
	}
}
