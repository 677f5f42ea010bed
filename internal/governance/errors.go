package governance

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAction = errors.New("unknown pending action")
	ErrInvalidAction = errors.New("invalid pending action")
)

// LoadError reports a pending-actions file that exists but cannot be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading pending actions %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failed queue write. The in-memory queue is unaffected.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("saving pending actions %q: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
