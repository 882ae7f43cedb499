package qtable

import "errors"

// ErrInvalidConfig is returned by New when Config names a store size
// that cannot be represented: a configuration error, fatal at setup
// time per spec.md §7.
var ErrInvalidConfig = errors.New("qtable: invalid config")
