package generate

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationUnavailable means the backend could not be reached, timed
	// out or refused the request.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrGenerationMalformed means the backend answered but the output is
	// unusable (empty, blocked, wrong shape).
	ErrGenerationMalformed = errors.New("generation malformed")

	// ErrUnknownTemplate means the requested template is not defined by the
	// persona.
	ErrUnknownTemplate = errors.New("unknown template")
)

// GenerationFailedError is returned by the dispatcher whenever the backend
// fails. It is never replaced by fallback content.
type GenerationFailedError struct {
	Template string
	Err      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed for template %s: %v", e.Template, e.Err)
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a malformed-output failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrGenerationMalformed)
}
