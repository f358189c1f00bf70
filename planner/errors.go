package planner

import "errors"

// ErrInvalidInput marks caller mistakes: malformed rows, mismatched cluster
// slices, non-divisible MinHash parameters, wave-spec contract violations.
// The window produces no plan when it is returned.
var ErrInvalidInput = errors.New("planner: invalid input")
