package auth

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
	KindOAuthProvider
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindOAuthProvider:
		return "oauth_provider"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a business-rule failure. Message is safe to show to clients; Err
// is the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrMissingCredentials = newError(KindValidation, "MissingCredentials", "Please provide both email and password to proceed")
	ErrMissingFields      = newError(KindValidation, "MissingFields", "All fields must be filled")
	ErrInvalidEmail       = newError(KindValidation, "InvalidEmail", "Invalid email address")
	ErrInvalidUsername    = newError(KindValidation, "InvalidUsername", "Username must be 3-32 characters")
	ErrWeakPassword       = newError(KindValidation, "WeakPassword", "Password not strong enough")
	ErrPasswordTooLong    = newError(KindValidation, "PasswordTooLong", "Password must be at most 72 bytes")
	ErrPasswordMismatch   = newError(KindValidation, "PasswordMismatch", "Passwords do not match")
	ErrInvalidOTP         = newError(KindValidation, "InvalidOTP", "Invalid or expired OTP")
	ErrOTPAlreadyIssued   = newError(KindValidation, "OTPAlreadyIssued", "An OTP has already been sent to this email")
	ErrMissingCode        = newError(KindValidation, "MissingCode", "Authorization code is required")

	ErrInvalidCredentials = newError(KindUnauthenticated, "InvalidCredentials", "Invalid email or password")
	ErrMissingToken       = newError(KindUnauthenticated, "MissingToken", "Access Denied")
	ErrSessionUserGone    = newError(KindUnauthenticated, "SessionUserGone", "Access Denied")
	ErrEmailRequired      = newError(KindUnauthenticated, "EmailRequired", "Email is required")

	ErrInvalidToken            = newError(KindForbidden, "InvalidToken", "Forbidden")
	ErrOAuthAccountCannotReset = newError(KindForbidden, "OAuthAccountCannotReset", "This account signs in with Google or GitHub and has no password to reset")
	ErrOAuthEmailUnverified    = newError(KindForbidden, "OAuthEmailUnverified", "The provider has not verified this email address")

	ErrUserNotFound = newError(KindNotFound, "UserNotFound", "User not found")

	ErrEmailTaken    = newError(KindConflict, "EmailTaken", "Email already taken")
	ErrUsernameTaken = newError(KindConflict, "UsernameTaken", "Username already taken")
	ErrIdentityTaken = newError(KindConflict, "IdentityTaken", "This provider account is already linked to another user")

	ErrOAuthExchange       = newError(KindOAuthProvider, "OAuthProviderError", "OAuthProviderError")
	ErrOAuthProfile        = newError(KindUpstream, "OAuthProfileError", "Could not fetch the provider profile")
	ErrOAuthNoPrimaryEmail = newError(KindUpstream, "OAuthNoPrimaryEmail", "The provider account has no primary email")
	ErrMailDelivery        = newError(KindUpstream, "MailDelivery", "Could not send the email, try again later")

	ErrTooManyAttempts = newError(KindRateLimited, "TooManyAttempts", "Too many failed attempts, try again later")
)

// ErrOTPCodeInUse is returned by OTPStore.Create when the generated code is
// already live for another email. Callers retry with a fresh code.
var ErrOTPCodeInUse = errors.New("otp code already in use")

// KindOf reports the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
