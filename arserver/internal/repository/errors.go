package repository

import "errors"

// ErrNotFound is returned by any lookup that finds no matching record.
var ErrNotFound = errors.New("record not found")
