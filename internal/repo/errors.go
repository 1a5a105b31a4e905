package repo

import "errors"

// ErrNotFound is returned when a row does not exist. Callers that treat
// absence as a normal outcome (conversation state, habit lookups) check
// for it with errors.Is; anything else is a storage fault.
var ErrNotFound = errors.New("not found")
