package service

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
)

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindInvalidToken   ErrorKind = "invalid_token"
	KindAuthentication ErrorKind = "authentication"
	KindNotFound       ErrorKind = "not_found"
	KindInternal       ErrorKind = "internal"
)

const (
	MsgRegistered          = "Register success, please check your email to verify your account"
	MsgAlreadyVerified     = "Account already verified"
	MsgVerified            = "Email successfully verified"
	MsgOK                  = "OK"
	MsgRecoverRequested    = "Recover password request has been sent to your email"
	MsgPasswordChanged     = "Password successfully changed"
	MsgLoggedOut           = "Logout success"
	MsgTokenRefreshed      = "Token refreshed"
	MsgInvalidToken        = "Verification token is invalid"
	MsgBadCredentials      = "Wrong email or password, or account not verified"
	MsgEmailNotFound       = "Email not found"
	MsgValidationFailed    = "The given data was invalid"
	MsgUnauthenticated     = "Unauthenticated"
	msgEmailAlreadyTaken   = "has already been taken"
	msgInternalUnavailable = "Internal server error"
)

// Error is the result type every auth operation fails with. Handlers map Kind
// to an HTTP status and never inspect Err.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidationFailed, Fields: fields}
}

func InvalidTokenError() *Error {
	return &Error{Kind: KindInvalidToken, Message: MsgInvalidToken}
}

func AuthenticationError(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// InternalError keeps the cause's message so it reaches the envelope.
func InternalError(err error) *Error {
	msg := msgInternalUnavailable
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// StatusCode maps a kind to its HTTP status. Unknown kinds are 500.
func StatusCode(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindInvalidToken:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// AsError classifies any error. Plain errors become internal ones.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return InternalError(err)
}

func fieldsFromValidation(err error) (map[string]string, bool) {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make(map[string]string, len(verrs))
	for name, ferr := range verrs {
		if ferr != nil {
			fields[name] = ferr.Error()
		}
	}
	return fields, true
}

// wrapValidation turns an ozzo result into a *Error, passing nil through.
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	if fields, ok := fieldsFromValidation(err); ok {
		return ValidationError(fields)
	}
	return InternalError(err)
}
