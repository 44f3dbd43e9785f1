// Package utils provides shared utility helpers used across Pippin's ambient
// packages (config, fsrepo).
package utils

import (
	"fmt"

	"github.com/pippin-db/pippin/core"
)

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapIO wraps err as a core.IoError tagged with op, the form every RepoIO
// backend returns on a failed filesystem call so core's error taxonomy
// carries through instead of a bare fmt.Errorf.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &core.IoError{Op: op, Err: err}
}
