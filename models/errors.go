package models

import "errors"

// Error kinds. Callers match them with errors.Is; the wrapped cause stays
// reachable through the same chain.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrEmptyInput       = errors.New("empty input")
	ErrIndex            = errors.New("index error")
	ErrGeneration       = errors.New("generation error")
)
