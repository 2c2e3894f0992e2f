package cache

import "errors"

// ErrMiss reports that a key is absent or expired. Both backends return it
// so callers can tell a miss from a backend failure.
var ErrMiss = errors.New("cache: miss")
