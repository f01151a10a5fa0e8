package authenticator

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures. The set is closed; callers switch on it
// instead of inspecting messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnsupported
	KindInvalidInput
	KindNoCredential
	KindNoAssertion
	KindCredentialMismatch
	KindUserCancelled
	KindPlatformUnsupported
	KindSecurityViolation
	KindInvalidPlatformState
	KindRegistrationFailed
	KindAuthenticationFailed
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindUnsupported:          "unsupported",
	KindInvalidInput:         "invalid_input",
	KindNoCredential:         "no_credential",
	KindNoAssertion:          "no_assertion",
	KindCredentialMismatch:   "credential_mismatch",
	KindUserCancelled:        "user_cancelled",
	KindPlatformUnsupported:  "platform_unsupported",
	KindSecurityViolation:    "security_violation",
	KindInvalidPlatformState: "invalid_platform_state",
	KindRegistrationFailed:   "registration_failed",
	KindAuthenticationFailed: "authentication_failed",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the only error type the gateway returns.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so that errors.Is(err, ErrCredentialMismatch) works
// regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrUnsupported          = &Error{Kind: KindUnsupported}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrNoCredential         = &Error{Kind: KindNoCredential}
	ErrNoAssertion          = &Error{Kind: KindNoAssertion}
	ErrCredentialMismatch   = &Error{Kind: KindCredentialMismatch}
	ErrUserCancelled        = &Error{Kind: KindUserCancelled}
	ErrPlatformUnsupported  = &Error{Kind: KindPlatformUnsupported}
	ErrSecurityViolation    = &Error{Kind: KindSecurityViolation}
	ErrInvalidPlatformState = &Error{Kind: KindInvalidPlatformState}
	ErrRegistrationFailed   = &Error{Kind: KindRegistrationFailed}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
)

// KindOf returns the outermost gateway kind in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var reasons = map[Kind]string{
	KindUnsupported:          "biometric authentication is not supported in this browser",
	KindInvalidInput:         "roll number not found",
	KindNoCredential:         "no biometric credential found",
	KindNoAssertion:          "biometric authentication failed - no assertion received",
	KindCredentialMismatch:   "biometric credential mismatch",
	KindUserCancelled:        "biometric authentication was cancelled or failed",
	KindPlatformUnsupported:  "biometric authentication is not supported on this device",
	KindSecurityViolation:    "security error during biometric authentication",
	KindInvalidPlatformState: "invalid state during biometric authentication",
	KindRegistrationFailed:   "biometric registration failed",
	KindAuthenticationFailed: "biometric authentication failed",
}

// Reason renders err as the human-readable reason stored on an absent outcome.
func Reason(err error) string {
	if r, ok := reasons[KindOf(err)]; ok {
		return r
	}
	return "biometric authentication failed"
}

// PlatformError is a failure category reported by the platform credential API,
// named as the platform names it (NotAllowedError, SecurityError, ...).
type PlatformError struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

const (
	NameNotAllowed   = "NotAllowedError"
	NameNotSupported = "NotSupportedError"
	NameSecurity     = "SecurityError"
	NameInvalidState = "InvalidStateError"
)

// classify maps a platform failure to a specific kind, or fallback when the
// category is not one the gateway knows.
func classify(err error, fallback Kind) Kind {
	var pe *PlatformError
	if !errors.As(err, &pe) {
		return fallback
	}
	switch pe.Name {
	case NameNotAllowed:
		return KindUserCancelled
	case NameNotSupported:
		return KindPlatformUnsupported
	case NameSecurity:
		return KindSecurityViolation
	case NameInvalidState:
		return KindInvalidPlatformState
	default:
		return fallback
	}
}
