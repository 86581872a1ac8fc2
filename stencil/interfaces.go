package stencil

// Vector is the capability contract consumed by external solvers: the
// algebraic operations plus halo maintenance. Vec implements it for a
// single coefficient field and BlockVec by per-block delegation for
// multi-field problems.
type Vector interface {
	// Dot sums products of owned interior entries only, once, then
	// reduces globally across all ranks.
	Dot(other Vector) float64
	Norm() float64
	// Axpy sets the receiver to receiver + alpha*other, elementwise over
	// the full buffer including ghosts, so pending ghost contributions
	// combine linearly too.
	Axpy(alpha float64, other Vector)
	Copy() Vector
	Zero()
	Conjugate() Vector
	// UpdateGhostRegions reduces duplicated ghost contributions into the
	// canonical owner entries and refreshes stale halos, in one blocking
	// synchronization pass.
	UpdateGhostRegions()
	// RefreshGhostRegions only refreshes halos from the owners' interior
	// values. Cheaper than UpdateGhostRegions when no scatter
	// contributions are pending, e.g. between chained products.
	RefreshGhostRegions()
}

// Operator is the matrix-side contract: a linear map between Vector
// spaces. Mat implements it for a single stencil operator and BlockMat by
// per-block delegation.
type Operator interface {
	// Dot applies the operator and returns a new vector over the codomain
	// space. The input's halo must be current; callers refresh first.
	Dot(x Vector) Vector
	UpdateGhostRegions()
	RefreshGhostRegions()
}
