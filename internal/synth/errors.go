package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus is returned when no templates are loaded.
	ErrEmptyCorpus = errors.New("template corpus is empty")

	// ErrEmptyPool is matched by EmptyPoolError through errors.Is.
	ErrEmptyPool = errors.New("word pool is empty")
)

// EmptyPoolError reports a registered placeholder whose pool has no words.
type EmptyPoolError struct {
	// Placeholder is the offending placeholder, e.g. "[noun]".
	Placeholder string
}

// Error implements error.
func (e *EmptyPoolError) Error() string {
	return fmt.Sprintf("word pool for %s is empty", e.Placeholder)
}

// Is makes errors.Is(err, ErrEmptyPool) true for any EmptyPoolError.
func (e *EmptyPoolError) Is(target error) bool {
	return target == ErrEmptyPool
}
