package credential

import (
	"errors"
	"fmt"
)

// Operations reported by RotationFailedError.
const (
	OpSetCredentials = "set-credentials"
	OpRefresh        = "refresh"
)

// ErrRotationFailed matches any *RotationFailedError via errors.Is.
var ErrRotationFailed = errors.New("credential rotation failed")

// RotationFailedError reports that a pool could not apply a new credential
// pair or could not be told to converge on it.
type RotationFailedError struct {
	Pool string
	Op   string
	Err  error
}

func (e *RotationFailedError) Error() string {
	switch e.Op {
	case OpSetCredentials:
		return fmt.Sprintf("failed to update credentials in pool %s: %v", e.Pool, e.Err)
	case OpRefresh:
		return fmt.Sprintf("failed to refresh pool %s: %v", e.Pool, e.Err)
	default:
		return fmt.Sprintf("credential rotation failed for pool %s: %v", e.Pool, e.Err)
	}
}

func (e *RotationFailedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRotationFailed) true for any RotationFailedError.
func (e *RotationFailedError) Is(target error) bool {
	return target == ErrRotationFailed
}
