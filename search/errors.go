package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLimit is returned when a search limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrInvalidEpsilon is returned when a removal tolerance is negative.
	ErrInvalidEpsilon = errors.New("epsilon must not be negative")

	// ErrInvalidNumProjections is returned when a projection searcher is
	// configured with a non-positive number of axes.
	ErrInvalidNumProjections = errors.New("number of projections must be positive")

	// ErrInvalidSearchSize is returned when a searcher is configured with
	// a non-positive candidate budget.
	ErrInvalidSearchSize = errors.New("search size must be positive")
)

// ErrDimensionMismatch indicates a vector whose dimension differs from
// the dimension fixed by the first vector added to the searcher.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
