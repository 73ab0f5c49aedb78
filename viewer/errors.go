package viewer

import (
	"errors"
	"log/slog"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

var (
	// ErrViewerDestroyed is returned by any operation on a destroyed viewer instance
	ErrViewerDestroyed = errors.New("viewer instance has been destroyed")

	// ErrRenderCancelled marks a render superseded or pruned. It is an expected
	// outcome, never logged as a failure and never retried automatically.
	ErrRenderCancelled = errors.New("render cancelled")

	// ErrPoolDestroyed is returned when acquiring from a destroyed pool
	ErrPoolDestroyed = errors.New("resource pool has been destroyed")

	// ErrPoolExhausted is returned when the pool is at capacity, nothing is
	// evictable and overflow allocation is disabled
	ErrPoolExhausted = errors.New("resource pool exhausted")

	// ErrNoSuchPage is returned for page numbers outside [1, NumPages]
	ErrNoSuchPage = errors.New("page number out of range")

	// ErrViewerExists is returned when registering a second viewer for a container
	ErrViewerExists = errors.New("viewer already registered for container")

	// ErrNoSuchViewer is returned when looking up an unknown container
	ErrNoSuchViewer = errors.New("no viewer registered for container")

	// ErrNotLoaded is returned for operations that need a loaded document
	ErrNotLoaded = errors.New("no document loaded")
)
