package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the auth client. Every error returned by the controller
// matches exactly one of these via errors.Is.
var (
	// Sign-in errors
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInteractiveCancelled   = errors.New("interactive sign-in cancelled")
	ErrProviderNotImplemented = errors.New("auth provider not implemented")
	ErrInvalidProvider        = errors.New("invalid auth provider")

	// Token errors
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoSession      = errors.New("no session")

	// Transport errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("network error")

	// Persistence errors
	ErrStorage = errors.New("credential storage error")

	// General errors
	ErrInternal = errors.New("internal error")
)

// StorageError reports a failed credential store operation. A dropped token
// write must never look like a success, so stores return this instead of
// logging and carrying on.
type StorageError struct {
	Op  string // set, get, remove, clear
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credential store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err as a StorageError. A nil err yields nil.
func NewStorageError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// AuthError is the single error shape handed to the state machine. Kind is one
// of the sentinels above, Message is safe to show to a user.
type AuthError struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var kinds = []error{
	ErrInvalidCredentials,
	ErrInteractiveCancelled,
	ErrProviderNotImplemented,
	ErrInvalidProvider,
	ErrNoRefreshToken,
	ErrRefreshFailed,
	ErrNoSession,
	ErrUnauthorized,
	ErrNetwork,
	ErrStorage,
}

var messages = map[error]string{
	ErrInvalidCredentials:     "The username or password is incorrect.",
	ErrInteractiveCancelled:   "Sign-in was cancelled.",
	ErrProviderNotImplemented: "This sign-in method is not available.",
	ErrInvalidProvider:        "The sign-in method is not configured correctly.",
	ErrNoRefreshToken:         "Your session has expired. Please sign in again.",
	ErrRefreshFailed:          "Your session has expired. Please sign in again.",
	ErrNoSession:              "You are not signed in.",
	ErrUnauthorized:           "Your session is no longer valid. Please sign in again.",
	ErrNetwork:                "The server could not be reached. Please try again.",
	ErrStorage:                "Your credentials could not be saved on this device.",
	ErrInternal:               "Something went wrong. Please try again.",
}

// KindOf returns the first known kind matched by err, or ErrInternal.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// Normalize converts any error into an *AuthError tagged with op. Errors that
// are already normalized are returned unchanged. nil stays nil.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	kind := KindOf(err)
	return &AuthError{Kind: kind, Op: op, Message: messages[kind], Err: err}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
