package errors

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/systmms/poolrotate/pkg/credential"
	"github.com/systmms/poolrotate/pkg/secretsource"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// SecretError explains a failed read of the mounted credential files
func SecretError(dir string, err error) error {
	suggestion := fmt.Sprintf("Verify the secrets volume is mounted at %s and contains 'username' and 'password'", dir)

	var unavailable *secretsource.UnavailableError
	if errors.As(err, &unavailable) {
		switch {
		case strings.Contains(unavailable.Err.Error(), "permission denied"):
			suggestion = fmt.Sprintf("Make %s readable by the poolrotate user", unavailable.Path)
		case strings.Contains(unavailable.Err.Error(), "UTF-8"):
			suggestion = fmt.Sprintf("Rewrite %s as UTF-8 text", unavailable.Path)
		}
	}

	return UserError{
		Message:    "Unable to read database credentials",
		Details:    err.Error(),
		Suggestion: suggestion,
		Err:        err,
	}
}

// PoolError enhances connection pool errors with context
func PoolError(pool string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("pool %s failed during %s", pool, operation),
		Details:    err.Error(),
		Suggestion: getPoolSuggestion(err),
		Err:        err,
	}
}

// getPoolSuggestion returns helpful suggestions based on the database error
func getPoolSuggestion(err error) string {
	errStr := err.Error()

	if errors.Is(err, credential.ErrRotationFailed) {
		return "The pool keeps its previous credentials until the next rotation; check the pool name and database reachability"
	}

	switch {
	case strings.Contains(errStr, "password authentication failed"),
		strings.Contains(errStr, "Access denied for user"):
		return "The database rejected the mounted credentials. Check that the secrets manager finished rotating the user"
	case strings.Contains(errStr, "unsupported database driver"):
		return "Use one of the supported drivers: postgres, mysql"
	case strings.Contains(errStr, "timeout"):
		return "The operation timed out. Check your network connection and try again"
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return "Unable to connect. Check the pool URL and that the database is reachable"
	}

	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) || strings.HasPrefix(errStr, "yaml: ") {
		return ConfigError{
			Message:    fmt.Sprintf("Invalid YAML format: %s", strings.TrimPrefix(errStr, "yaml: ")),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	// Return original error if we can't simplify it
	return err
}
