package decomp

import (
	"errors"
	"fmt"

	"github.com/notargets/goiga/comm"
)

// ErrConfiguration is wrapped by every constructor failure: a requested
// process grid or grid shape that cannot be satisfied is fatal and is
// reported before any computation starts.
var ErrConfiguration = errors.New("decomposition configuration error")

// CartDecomp partitions a D-dimensional tensor-product index space over a
// Cartesian grid of processes. Each process owns one contiguous interior
// sub-range per axis; the interiors tile the global shape exactly, while
// pad regions overlap between neighbors. Immutable after
// construction and shared read-only by every stencil object built on it.
type CartDecomp struct {
	GlobalShape []int  // global extent per axis
	ProcShape   []int  // process grid extent per axis
	Coords      []int  // this process's coordinate in the process grid
	Starts      []int  // first owned global index per axis
	Ends        []int  // last owned global index per axis (inclusive)
	Pads        []int  // ghost width per axis
	Periods     []bool // periodicity per axis

	c           comm.Communicator
	localShape  []int
	bufferShape []int
	neighbors   [][2]int // [axis][dir], dir 0 = minus, 1 = plus, -1 = none
}

// New builds the decomposition of globalShape over the communicator's
// ranks. The process grid is derived by a near-square factorization of the
// communicator size unless an explicit grid is passed as procShapeO. The
// split is deterministic: each axis extent is divided evenly among that
// axis's process count with the remainder assigned to the lowest-rank
// processes first.
func New(c comm.Communicator, globalShape, pads []int, periods []bool,
	procShapeO ...[]int) (d *CartDecomp, err error) {
	var (
		ndim = len(globalShape)
		size = c.Size()
	)
	if ndim == 0 {
		return nil, fmt.Errorf("%w: empty global shape", ErrConfiguration)
	}
	if len(pads) != ndim || len(periods) != ndim {
		return nil, fmt.Errorf("%w: shape/pads/periods lengths differ: %d, %d, %d",
			ErrConfiguration, ndim, len(pads), len(periods))
	}
	for a := 0; a < ndim; a++ {
		if globalShape[a] < 1 {
			return nil, fmt.Errorf("%w: axis %d has non-positive extent %d",
				ErrConfiguration, a, globalShape[a])
		}
		if pads[a] < 0 {
			return nil, fmt.Errorf("%w: axis %d has negative pad %d",
				ErrConfiguration, a, pads[a])
		}
	}
	var procShape []int
	if len(procShapeO) != 0 {
		procShape = append([]int{}, procShapeO[0]...)
		if len(procShape) != ndim {
			return nil, fmt.Errorf("%w: process grid has %d axes, want %d",
				ErrConfiguration, len(procShape), ndim)
		}
		nProcs := 1
		for _, p := range procShape {
			nProcs *= p
		}
		if nProcs != size {
			return nil, fmt.Errorf("%w: process grid %v does not divide into %d ranks",
				ErrConfiguration, procShape, size)
		}
	} else {
		procShape = BalancedDims(size, ndim)
	}
	for a := 0; a < ndim; a++ {
		if globalShape[a] < procShape[a] {
			return nil, fmt.Errorf("%w: axis %d has %d cells for %d processes, a process would own zero elements",
				ErrConfiguration, a, globalShape[a], procShape[a])
		}
	}
	d = &CartDecomp{
		GlobalShape: append([]int{}, globalShape...),
		ProcShape:   procShape,
		Pads:        append([]int{}, pads...),
		Periods:     append([]bool{}, periods...),
		c:           c,
		Coords:      coordsOf(c.Rank(), procShape),
		Starts:      make([]int, ndim),
		Ends:        make([]int, ndim),
		localShape:  make([]int, ndim),
		bufferShape: make([]int, ndim),
		neighbors:   make([][2]int, ndim),
	}
	for a := 0; a < ndim; a++ {
		start, n := SplitAxis(globalShape[a], procShape[a], d.Coords[a])
		d.Starts[a] = start
		d.Ends[a] = start + n - 1
		d.localShape[a] = n
		d.bufferShape[a] = n + 2*pads[a]
		d.neighbors[a][0] = d.neighborRank(a, -1)
		d.neighbors[a][1] = d.neighborRank(a, +1)
	}
	return d, nil
}

// SplitAxis divides extent among nParts, spreading the remainder one each
// over the lowest part numbers, and returns the start and length of the
// given part. The maximum imbalance is one element.
func SplitAxis(extent, nParts, part int) (start, n int) {
	var (
		base      = extent / nParts
		remainder = extent % nParts
	)
	if part < remainder {
		start = part * (base + 1)
		n = base + 1
	} else {
		start = part*base + remainder
		n = base
	}
	return
}

func (d *CartDecomp) Comm() comm.Communicator { return d.c }
func (d *CartDecomp) Rank() int               { return d.c.Rank() }
func (d *CartDecomp) Size() int               { return d.c.Size() }
func (d *CartDecomp) NumDims() int            { return len(d.GlobalShape) }

// LocalShape is the extent of the owned interior per axis.
func (d *CartDecomp) LocalShape() []int { return d.localShape }

// BufferShape is the extent of the interior plus both pad layers per axis.
func (d *CartDecomp) BufferShape() []int { return d.bufferShape }

// Neighbor returns the rank of the immediate neighbor on axis in
// direction dir (0 = minus, 1 = plus), or -1 at a non-periodic boundary.
func (d *CartDecomp) Neighbor(axis, dir int) int { return d.neighbors[axis][dir] }

func (d *CartDecomp) neighborRank(axis, step int) int {
	c := d.Coords[axis] + step
	if c < 0 || c >= d.ProcShape[axis] {
		if !d.Periods[axis] {
			return -1
		}
		c = (c + d.ProcShape[axis]) % d.ProcShape[axis]
	}
	coords := append([]int{}, d.Coords...)
	coords[axis] = c
	return rankOf(coords, d.ProcShape)
}

// RankRange reports the owned interior range of an arbitrary rank, without
// communication. Used for gather-style verification and export.
func (d *CartDecomp) RankRange(rank int) (starts, ends []int) {
	var (
		ndim   = len(d.GlobalShape)
		coords = coordsOf(rank, d.ProcShape)
	)
	starts = make([]int, ndim)
	ends = make([]int, ndim)
	for a := 0; a < ndim; a++ {
		start, n := SplitAxis(d.GlobalShape[a], d.ProcShape[a], coords[a])
		starts[a] = start
		ends[a] = start + n - 1
	}
	return
}

// LocalIndex converts a global multi-index into this process's local
// coordinates, where 0 is the first owned entry per axis and negative
// values reach into the low ghost layer. On periodic axes the index is
// wrapped into the nearest image that falls inside the padded buffer.
// Reports false if the index lies outside interior and pad.
func (d *CartDecomp) LocalIndex(g []int) (local []int, ok bool) {
	local = make([]int, len(g))
	for a := range g {
		l := g[a] - d.Starts[a]
		if d.Periods[a] {
			n := d.GlobalShape[a]
			if l < -d.Pads[a] {
				l += n
			} else if l >= d.localShape[a]+d.Pads[a] {
				l -= n
			}
		}
		if l < -d.Pads[a] || l >= d.localShape[a]+d.Pads[a] {
			return nil, false
		}
		local[a] = l
	}
	return local, true
}

// rankOf flattens process-grid coordinates row-major, axis 0 slowest.
func rankOf(coords, procShape []int) (rank int) {
	for a := 0; a < len(procShape); a++ {
		rank = rank*procShape[a] + coords[a]
	}
	return
}

func coordsOf(rank int, procShape []int) (coords []int) {
	coords = make([]int, len(procShape))
	for a := len(procShape) - 1; a >= 0; a-- {
		coords[a] = rank % procShape[a]
		rank /= procShape[a]
	}
	return
}
