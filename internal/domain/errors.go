// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested graph object does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent write collision outside the per-task
// serialization discipline. It is surfaced, never retried silently.
var ErrConflict = errors.New("conflict: concurrent write collision")

// ErrUnavailable indicates the store could not be reached. Writes failing
// with it are retried with backoff up to the configured attempt bound.
var ErrUnavailable = errors.New("store unavailable")
