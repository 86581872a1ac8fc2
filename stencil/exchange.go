package stencil

import (
	"github.com/notargets/goiga/decomp"
)

// Exchange phases. Accumulate moves pending ghost contributions into the
// owning rank's interior; refresh overwrites stale halos with the owners'
// canonical interior values.
const (
	phaseAccumulate = iota
	phaseRefresh
)

// exchanger runs the ghost exchange protocol over a flat buffer laid out
// row-major with the decomposition's padded spatial axes first and an
// optional trailing payload block per spatial point (1 for vectors, the
// diagonal block size for matrices). Message sizes are fixed at
// construction time, so the communication buffers are allocated once and
// reused for every synchronization call.
type exchanger struct {
	dec     *decomp.CartDecomp
	shape   []int // spatial buffer shape, interior + 2*pad per axis
	strides []int // spatial strides in scalar elements
	payload int

	sendLow, sendHigh [][]float64 // per-axis slab buffers, minus/plus direction
	recvLow, recvHigh [][]float64
}

func newExchanger(d *decomp.CartDecomp, payload int) (ex *exchanger) {
	var (
		ndim  = d.NumDims()
		shape = d.BufferShape()
	)
	ex = &exchanger{
		dec:      d,
		shape:    shape,
		strides:  make([]int, ndim),
		payload:  payload,
		sendLow:  make([][]float64, ndim),
		sendHigh: make([][]float64, ndim),
		recvLow:  make([][]float64, ndim),
		recvHigh: make([][]float64, ndim),
	}
	stride := payload
	for a := ndim - 1; a >= 0; a-- {
		ex.strides[a] = stride
		stride *= shape[a]
	}
	for a := 0; a < ndim; a++ {
		size := ex.slabSize(a)
		ex.sendLow[a] = make([]float64, size)
		ex.sendHigh[a] = make([]float64, size)
		ex.recvLow[a] = make([]float64, size)
		ex.recvHigh[a] = make([]float64, size)
	}
	return
}

// slabSize is the scalar element count of one boundary slab along axis: a
// layer of width pad spanning the full buffer extent of every other axis,
// so corner regions ride along with each exchange.
func (ex *exchanger) slabSize(axis int) (size int) {
	size = ex.payload * ex.dec.Pads[axis]
	for a, extent := range ex.shape {
		if a != axis {
			size *= extent
		}
	}
	return
}

// exchange is the collective synchronization entry point. Axes are
// exchanged strictly one at a time: the accumulate sweep relays corner
// contributions along a unique monotone axis path into the owning rank,
// and the refresh sweep afterwards overwrites every ghost layer, later
// axes correcting the corner regions written from stale data by earlier
// ones. All participating ranks must call it in the same relative order.
func (ex *exchanger) exchange(data []float64, additive bool) {
	ndim := len(ex.shape)
	if additive {
		for axis := 0; axis < ndim; axis++ {
			ex.axisExchange(data, axis, phaseAccumulate)
		}
	}
	for axis := 0; axis < ndim; axis++ {
		ex.axisExchange(data, axis, phaseRefresh)
	}
}

func (ex *exchanger) axisExchange(data []float64, axis, phase int) {
	var (
		d     = ex.dec
		c     = d.Comm()
		pad   = d.Pads[axis]
		n     = d.LocalShape()[axis]
		minus = d.Neighbor(axis, 0)
		plus  = d.Neighbor(axis, 1)
	)
	if pad == 0 || (minus < 0 && plus < 0) {
		return
	}
	// Buffer-coordinate slab starts along this axis.
	var (
		lowGhost  = 0
		lowInt    = pad
		highInt   = n
		highGhost = n + pad
	)
	if minus == c.Rank() {
		// Single process on a periodic axis: both neighbors are this
		// rank, so the exchange degenerates to a local wraparound fold.
		if phase == phaseAccumulate {
			ex.fold(data, axis, lowGhost, highInt, true)
			ex.fold(data, axis, highGhost, lowInt, true)
		} else {
			ex.fold(data, axis, highInt, lowGhost, false)
			ex.fold(data, axis, lowInt, highGhost, false)
		}
		return
	}
	var srcLow, srcHigh, dstFromPlus, dstFromMinus int
	add := phase == phaseAccumulate
	if add {
		srcLow, srcHigh = lowGhost, highGhost
		dstFromPlus, dstFromMinus = highInt, lowInt
	} else {
		srcLow, srcHigh = lowInt, highInt
		dstFromPlus, dstFromMinus = highGhost, lowGhost
	}
	// Post both sends before awaiting any receive so neither side can
	// block the other regardless of arrival order. Message tags carry the
	// sender's direction: a message received from the plus neighbor was
	// sent toward that neighbor's minus side.
	if minus >= 0 {
		ex.pack(data, axis, srcLow, ex.sendLow[axis])
		c.Send(minus, exchangeTag(axis, phase, 0), ex.sendLow[axis])
	}
	if plus >= 0 {
		ex.pack(data, axis, srcHigh, ex.sendHigh[axis])
		c.Send(plus, exchangeTag(axis, phase, 1), ex.sendHigh[axis])
	}
	if plus >= 0 {
		c.Recv(plus, exchangeTag(axis, phase, 0), ex.recvHigh[axis])
		ex.unpack(data, axis, dstFromPlus, ex.recvHigh[axis], add)
	}
	if minus >= 0 {
		c.Recv(minus, exchangeTag(axis, phase, 1), ex.recvLow[axis])
		ex.unpack(data, axis, dstFromMinus, ex.recvLow[axis], add)
	}
}

func exchangeTag(axis, phase, dir int) int {
	return (axis*2+phase)*2 + dir
}

// forSlab visits every spatial point whose axis coordinate lies in
// [lo, lo+pad), spanning the full buffer extent of every other axis, and
// passes the scalar element offset of the point's payload run.
func (ex *exchanger) forSlab(axis, lo int, f func(off int)) {
	var (
		ndim  = len(ex.shape)
		width = ex.dec.Pads[axis]
		base  = make([]int, ndim)
		lim   = make([]int, ndim)
		idx   = make([]int, ndim)
	)
	for a := 0; a < ndim; a++ {
		lim[a] = ex.shape[a]
	}
	base[axis], lim[axis] = lo, lo+width
	copy(idx, base)
	for {
		off := 0
		for a := 0; a < ndim; a++ {
			off += idx[a] * ex.strides[a]
		}
		f(off)
		a := ndim - 1
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < lim[a] {
				break
			}
			idx[a] = base[a]
		}
		if a < 0 {
			return
		}
	}
}

func (ex *exchanger) pack(data []float64, axis, lo int, buf []float64) {
	i := 0
	ex.forSlab(axis, lo, func(off int) {
		copy(buf[i:i+ex.payload], data[off:off+ex.payload])
		i += ex.payload
	})
}

func (ex *exchanger) unpack(data []float64, axis, lo int, buf []float64, add bool) {
	i := 0
	ex.forSlab(axis, lo, func(off int) {
		if add {
			for p := 0; p < ex.payload; p++ {
				data[off+p] += buf[i+p]
			}
		} else {
			copy(data[off:off+ex.payload], buf[i:i+ex.payload])
		}
		i += ex.payload
	})
}

// fold applies a slab-to-slab wraparound transfer within the local buffer,
// used when a periodic axis has a single process.
func (ex *exchanger) fold(data []float64, axis, from, to int, add bool) {
	delta := (to - from) * ex.strides[axis]
	ex.forSlab(axis, from, func(off int) {
		if add {
			for p := 0; p < ex.payload; p++ {
				data[off+delta+p] += data[off+p]
			}
		} else {
			copy(data[off+delta:off+delta+ex.payload], data[off:off+ex.payload])
		}
	})
}
