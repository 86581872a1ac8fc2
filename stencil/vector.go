package stencil

import (
	"math"

	"github.com/notargets/goiga/decomp"
	"gonum.org/v1/gonum/floats"
)

// Vec is a distributed coefficient vector over a Cartesian decomposition:
// one dense buffer per rank sized interior plus 2*pad per axis. Entries
// are addressed in local coordinates where 0 is the first owned entry on
// each axis and negative values reach into the low ghost layer. Ghost
// entries are valid only after a halo exchange; writes to them are pending
// contributions until the next UpdateGhostRegions.
type Vec struct {
	dec     *decomp.CartDecomp
	data    []float64
	strides []int
	ex      *exchanger
}

func NewVec(d *decomp.CartDecomp) (v *Vec) {
	ex := newExchanger(d, 1)
	size := 1
	for _, extent := range d.BufferShape() {
		size *= extent
	}
	return &Vec{
		dec:     d,
		data:    make([]float64, size),
		strides: ex.strides,
		ex:      ex,
	}
}

func (v *Vec) Decomp() *decomp.CartDecomp { return v.dec }

// Data exposes the raw local buffer, including ghost layers, for solver
// and exporter interop.
func (v *Vec) Data() []float64 { return v.data }

func (v *Vec) bufferOffset(i []int) (off int) {
	var (
		pads = v.dec.Pads
		ls   = v.dec.LocalShape()
	)
	if len(i) != len(ls) {
		panic(indexErrorf("stencil: index has %d axes, vector has %d", len(i), len(ls)))
	}
	for a, ia := range i {
		if ia < -pads[a] || ia >= ls[a]+pads[a] {
			panic(indexErrorf("stencil: index %d on axis %d outside buffer range [%d,%d)",
				ia, a, -pads[a], ls[a]+pads[a]))
		}
		off += (ia + pads[a]) * v.strides[a]
	}
	return
}

// At returns the entry at local multi-index i, bounds-checked against the
// full buffer including pad.
func (v *Vec) At(i []int) float64 { return v.data[v.bufferOffset(i)] }

func (v *Vec) Set(i []int, val float64) { v.data[v.bufferOffset(i)] = val }

// AddAt accumulates into the entry at i. Scatter into ghost positions is
// allowed; it stays pending until the next UpdateGhostRegions.
func (v *Vec) AddAt(i []int, val float64) { v.data[v.bufferOffset(i)] += val }

func mustVec(x Vector) *Vec {
	v, ok := x.(*Vec)
	if !ok {
		panic(shapeErrorf("stencil: expected stencil vector, got %T", x))
	}
	return v
}

func (v *Vec) sameSpace(w *Vec) {
	if v.dec != w.dec {
		panic(shapeErrorf("stencil: vectors built over different decompositions"))
	}
}

// interiorRuns visits the owned interior as contiguous runs along the
// innermost axis, so reductions never touch ghost entries.
func (v *Vec) interiorRuns(f func(start, n int)) {
	var (
		ndim = v.dec.NumDims()
		ls   = v.dec.LocalShape()
		pads = v.dec.Pads
	)
	if ndim == 1 {
		f(pads[0], ls[0])
		return
	}
	idx := make([]int, ndim-1)
	for {
		start := pads[ndim-1]
		for a := 0; a < ndim-1; a++ {
			start += (idx[a] + pads[a]) * v.strides[a]
		}
		f(start, ls[ndim-1])
		a := ndim - 2
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < ls[a] {
				break
			}
			idx[a] = 0
		}
		if a < 0 {
			return
		}
	}
}

// Dot sums interior entries only, once per owner, then reduces the partial
// sums across all ranks. Ghost duplicates never contribute.
func (v *Vec) Dot(other Vector) float64 {
	w := mustVec(other)
	v.sameSpace(w)
	local := 0.
	v.interiorRuns(func(start, n int) {
		local += floats.Dot(v.data[start:start+n], w.data[start:start+n])
	})
	return v.dec.Comm().AllReduceSum(local)
}

func (v *Vec) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Axpy computes v = v + alpha*other over the full buffer including
// ghosts, so pending ghost contributions combine linearly too.
func (v *Vec) Axpy(alpha float64, other Vector) {
	w := mustVec(other)
	v.sameSpace(w)
	floats.AddScaled(v.data, alpha, w.data)
}

func (v *Vec) Copy() Vector { return v.clone() }

func (v *Vec) clone() *Vec {
	w := NewVec(v.dec)
	copy(w.data, v.data)
	return w
}

func (v *Vec) Zero() {
	for i := range v.data {
		v.data[i] = 0
	}
}

// Conjugate returns the elementwise complex conjugate. Coefficients are
// real, so this is a copy.
func (v *Vec) Conjugate() Vector { return v.clone() }

// Scale multiplies every entry, ghosts included, by alpha.
func (v *Vec) Scale(alpha float64) {
	floats.Scale(alpha, v.data)
}

// UpdateGhostRegions reconciles pending ghost contributions into the
// owning ranks' interiors and refreshes every halo in one blocking
// collective pass. All ranks must call it in the same relative order.
func (v *Vec) UpdateGhostRegions() { v.ex.exchange(v.data, true) }

// RefreshGhostRegions overwrites halos with the owners' interior values
// without accumulating. Use between chained stencil products when no
// scatter contributions are pending.
func (v *Vec) RefreshGhostRegions() { v.ex.exchange(v.data, false) }
