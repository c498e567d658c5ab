package store

import "errors"

// ErrNotFound is returned by lookups when no row matches. Both backends map
// their driver-level miss onto it so callers never see sql.ErrNoRows.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert, such
// as a namespace name or a second evaluation for the same group.
var ErrDuplicate = errors.New("already exists")
