package autherr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput        Kind = "InvalidInput"
	KindInvalidCredentials  Kind = "InvalidCredentials"
	KindAccountLocked       Kind = "AccountLocked"
	KindAccountInactive     Kind = "AccountInactive"
	KindMissingToken        Kind = "MissingToken"
	KindBlacklistedToken    Kind = "BlacklistedToken"
	KindInvalidSignature    Kind = "InvalidSignature"
	KindExpired             Kind = "Expired"
	KindStalePasswordToken  Kind = "StalePasswordToken"
	KindUserNotFound        Kind = "UserNotFound"
	KindInvalidRefreshToken Kind = "InvalidRefreshToken"
	KindForbidden           Kind = "Forbidden"
	KindConflict            Kind = "Conflict"
	KindInfrastructure      Kind = "InfrastructureError"
)

var publicMessages = map[Kind]string{
	KindInvalidInput:        "invalid input",
	KindInvalidCredentials:  "invalid email or password",
	KindAccountLocked:       "account temporarily locked after too many failed login attempts",
	KindAccountInactive:     "account is deactivated",
	KindMissingToken:        "authentication required",
	KindBlacklistedToken:    "token has been revoked, please log in again",
	KindInvalidSignature:    "invalid token",
	KindExpired:             "token expired, please log in again",
	KindStalePasswordToken:  "password changed recently, please log in again",
	KindUserNotFound:        "user not found",
	KindInvalidRefreshToken: "invalid refresh token",
	KindForbidden:           "you do not have permission to access this resource",
	KindConflict:            "email already registered",
	KindInfrastructure:      "service temporarily unavailable",
}

// Error is the typed failure returned by the authentication core. Message is
// safe to show to the caller; Err carries the internal cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Retryable() bool { return e.Kind == KindInfrastructure }

var (
	ErrInvalidCredentials  = New(KindInvalidCredentials, "")
	ErrAccountLocked       = New(KindAccountLocked, "")
	ErrAccountInactive     = New(KindAccountInactive, "")
	ErrMissingToken        = New(KindMissingToken, "")
	ErrBlacklistedToken    = New(KindBlacklistedToken, "")
	ErrInvalidSignature    = New(KindInvalidSignature, "")
	ErrExpired             = New(KindExpired, "")
	ErrStalePasswordToken  = New(KindStalePasswordToken, "")
	ErrUserNotFound        = New(KindUserNotFound, "")
	ErrInvalidRefreshToken = New(KindInvalidRefreshToken, "")
	ErrForbidden           = New(KindForbidden, "")
	ErrConflict            = New(KindConflict, "")
)

// New builds an error of the given kind. An empty message falls back to the
// kind's public message.
func New(kind Kind, msg string) *Error {
	if msg == "" {
		msg = publicMessages[kind]
	}
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	e := New(kind, msg)
	e.Err = err
	return e
}

func InvalidInput(msg string) *Error { return New(KindInvalidInput, msg) }

func Infra(err error, msg string) *Error { return Wrap(KindInfrastructure, err, msg) }

// KindOf reports the kind of err. Untyped non-nil errors are infrastructure
// failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

func Retryable(err error) bool { return KindOf(err) == KindInfrastructure }

// Public returns the kind and the caller-facing message for err.
func Public(err error) (Kind, string) {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInfrastructure {
			return e.Kind, publicMessages[KindInfrastructure]
		}
		return e.Kind, e.Message
	}
	return KindInfrastructure, publicMessages[KindInfrastructure]
}
