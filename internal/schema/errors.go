package schema

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCategory   = errors.New("unknown category")
	ErrUnknownValue      = errors.New("unknown canonical value")
	ErrDuplicateCategory = errors.New("duplicate category")
	ErrDuplicateSynonym  = errors.New("duplicate synonym")
	ErrDuplicateValue    = errors.New("duplicate canonical value")
	ErrDuplicateVariant  = errors.New("duplicate variant")
	ErrEmptyName         = errors.New("name must not be empty")
)

// LoadError reports a schema file that is missing or cannot be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading schema %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failed schema write. In-memory state is unaffected.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("saving schema %q: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// IsDuplicate reports whether err is one of the idempotency guards, which
// callers usually treat as a no-op.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateCategory) ||
		errors.Is(err, ErrDuplicateSynonym) ||
		errors.Is(err, ErrDuplicateValue) ||
		errors.Is(err, ErrDuplicateVariant)
}
