package schema

import (
	_ "embed"
)

//go:embed default.json
var defaultSchema []byte

// Default returns the built-in job-preference vocabulary. It is only used when
// a caller asks for it explicitly.
func Default() (*Schema, error) {
	return Unmarshal(defaultSchema)
}

// DefaultBytes returns the built-in vocabulary in its on-disk form.
func DefaultBytes() []byte {
	return append([]byte(nil), defaultSchema...)
}
