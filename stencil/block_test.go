package stencil

import (
	"testing"

	"github.com/notargets/goiga/comm"
	"github.com/notargets/goiga/decomp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaledIdentityOn builds a bandwidth-zero operator multiplying by alpha.
func scaledIdentityOn(t *testing.T, d *decomp.CartDecomp, alpha float64) *Mat {
	M, err := NewMat(d, d, []int{0}, []int{0})
	require.NoError(t, err)
	for l := 0; l < d.LocalShape()[0]; l++ {
		M.Set([]int{l}, []int{0}, alpha)
	}
	return M
}

func TestBlockVecDelegation(t *testing.T) {
	d := mustDecomp(t, comm.SelfComm{}, []int{4}, []int{1}, []bool{false})
	v1, v2 := NewVec(d), NewVec(d)
	for l := 0; l < 4; l++ {
		v1.Set([]int{l}, float64(l+1)) // dot with self: 1+4+9+16 = 30
		v2.Set([]int{l}, 2)            // dot with self: 16
	}
	b := NewBlockVec(v1, v2)
	assert.Equal(t, 46., b.Dot(b))
	assert.InDelta(t, 6.7823, b.Norm(), 1e-4)

	w := b.Copy().(*BlockVec)
	w.Axpy(2, b)
	assert.Equal(t, 3., w.V[0].At([]int{0}))
	assert.Equal(t, 1., v1.At([]int{0})) // deep copy, original untouched

	w.Zero()
	assert.Equal(t, 0., w.Dot(w))
	assert.Panics(t, func() { b.Dot(NewBlockVec(v1)) }) // block count mismatch
	assert.Panics(t, func() { b.Dot(v1) })              // not a block vector
}

func TestBlockMatDot(t *testing.T) {
	d := mustDecomp(t, comm.SelfComm{}, []int{4}, []int{1}, []bool{false})
	var (
		id  = func(alpha float64) *Mat { return scaledIdentityOn(t, d, alpha) }
		bm  = NewBlockMat(2, 2)
		one = NewVec(d)
		two = NewVec(d)
	)
	bm.SetBlock(0, 0, id(1))
	bm.SetBlock(1, 1, id(3))
	for l := 0; l < 4; l++ {
		one.Set([]int{l}, 1)
		two.Set([]int{l}, 2)
	}
	x := NewBlockVec(one, two)
	y := bm.Dot(x).(*BlockVec)
	assert.Equal(t, 1., y.V[0].At([]int{2}))
	assert.Equal(t, 6., y.V[1].At([]int{2}))

	// An off-diagonal block contributes additively to its block-row
	bm.SetBlock(0, 1, id(10))
	y = bm.Dot(x).(*BlockVec)
	assert.Equal(t, 21., y.V[0].At([]int{2}))
	assert.Equal(t, 6., y.V[1].At([]int{2}))

	assert.Panics(t, func() { bm.Dot(NewBlockVec(one)) })
}

func TestBlockMatCompatibility(t *testing.T) {
	d1 := mustDecomp(t, comm.SelfComm{}, []int{4}, []int{1}, []bool{false})
	d2 := mustDecomp(t, comm.SelfComm{}, []int{6}, []int{1}, []bool{false})
	bm := NewBlockMat(1, 2)
	bm.SetBlock(0, 0, scaledIdentityOn(t, d1, 1))
	// Same block-row must share the codomain decomposition
	assert.Panics(t, func() { bm.SetBlock(0, 1, scaledIdentityOn(t, d2, 1)) })
	assert.Panics(t, func() { bm.SetBlock(2, 0, scaledIdentityOn(t, d1, 1)) })
}
