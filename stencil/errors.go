package stencil

import "fmt"

// IndexError marks access outside a buffer's valid range, including
// bandwidth violations. Always a programming error in the caller, so it is
// raised as a panic rather than returned.
type IndexError string

func (e IndexError) Error() string { return string(e) }

func indexErrorf(format string, args ...interface{}) IndexError {
	return IndexError(fmt.Sprintf(format, args...))
}

// ShapeMismatchError marks an operation between two stencil or block
// objects built over incompatible decompositions. Always a programming
// error, raised as a panic.
type ShapeMismatchError string

func (e ShapeMismatchError) Error() string { return string(e) }

func shapeErrorf(format string, args ...interface{}) ShapeMismatchError {
	return ShapeMismatchError(fmt.Sprintf(format, args...))
}
