package localstore

import "errors"

// ErrNotFound is returned by updates that target a missing row.
var ErrNotFound = errors.New("not found")
