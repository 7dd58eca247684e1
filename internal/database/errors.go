package database

import "errors"

// ErrNotFound indicates the requested record was not found.
var ErrNotFound = errors.New("record not found")
