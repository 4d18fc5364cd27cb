// Package persistence carries transactions through context.Context so that
// repositories join the caller's unit of work without extra parameters.
package persistence

import "errors"

// ErrNoTransaction is returned by Commit or Rollback on a context that never went through Begin.
var ErrNoTransaction = errors.New("no transaction in context")
