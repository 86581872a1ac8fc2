package decomp

import "sort"

// BalancedDims factors size into ndims process counts as near to square as
// possible, largest count first. Prime factors are distributed greedily,
// each going to the axis with the currently smallest product.
func BalancedDims(size, ndims int) (dims []int) {
	dims = make([]int, ndims)
	for a := range dims {
		dims[a] = 1
	}
	for _, f := range primeFactors(size) {
		min := 0
		for a := 1; a < ndims; a++ {
			if dims[a] < dims[min] {
				min = a
			}
		}
		dims[min] *= f
	}
	sort.Sort(sort.Reverse(sort.IntSlice(dims)))
	return
}

// primeFactors returns the prime factorization of n in descending order.
func primeFactors(n int) (factors []int) {
	for f := 2; f*f <= n; f++ {
		for n%f == 0 {
			factors = append(factors, f)
			n /= f
		}
	}
	if n > 1 {
		factors = append(factors, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(factors)))
	return
}
