package store

import "errors"

// ErrNotFound is returned by GetSession when no row matches the given id,
// the sentinel session.Service's getOrRestore checks for.
var ErrNotFound = errors.New("forge store: session not found")
