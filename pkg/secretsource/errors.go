package secretsource

import (
	"errors"
	"fmt"
)

// ErrSecretUnavailable matches any *UnavailableError via errors.Is.
var ErrSecretUnavailable = errors.New("secret unavailable")

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// UnavailableError reports a secret file that is missing or unreadable.
type UnavailableError struct {
	Name string
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("failed to read %s from %s: %v", e.Name, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSecretUnavailable) true.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrSecretUnavailable
}
