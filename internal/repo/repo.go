package repo

import "errors"

// ErrNotFound is returned when a query matches no rows. Callers translate it
// into their own domain result; it is never swallowed into a default value.
var ErrNotFound = errors.New("not found")
