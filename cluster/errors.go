package cluster

import "errors"

var (
	// ErrEmptyInput is returned when a clusterer is invoked with no
	// points.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidK is returned when a cluster count is not positive.
	ErrInvalidK = errors.New("cluster count must be positive")

	// ErrInvalidIterations is returned when an iteration budget is not
	// positive.
	ErrInvalidIterations = errors.New("iteration budget must be positive")

	// ErrInvalidCutoff is returned when a distance cutoff is not
	// positive.
	ErrInvalidCutoff = errors.New("distance cutoff must be positive")

	// ErrNilSearcher is returned when a clusterer is constructed without
	// a searcher.
	ErrNilSearcher = errors.New("searcher must not be nil")
)
