package normalize

import (
	"errors"
	"fmt"
)

// Structural failures carried by a FormatError.
var (
	ErrUnrecognized      = errors.New("unrecognized input shape")
	ErrHeaderNotFound    = errors.New("header not found")
	ErrNoRows            = errors.New("no valid measurement rows")
	ErrMissingIdentifier = errors.New("missing identifier")
	ErrNoConfigurations  = errors.New("missing configurations")
	ErrEmptyCycle        = errors.New("first cycle has no measures")
	ErrNoChannels        = errors.New("no sensor channels")
)

// FormatError reports an input that cannot be normalized at all. It names the
// file and the structural element that was missing or malformed.
type FormatError struct {
	File    string
	Element string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("normalize: %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("normalize: %s: %v: %s", e.File, e.Err, e.Element)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(file, element string, err error) *FormatError {
	return &FormatError{File: file, Element: element, Err: err}
}
