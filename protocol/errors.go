package protocol

import "errors"

// Code identifies a failure class on the wire. Validation and state codes
// report a rejected request that changed nothing; resource codes report an
// unknown entity; CodeInternal covers invariant failures that are logged
// server-side and surfaced generically.
type Code string

const (
	// Validation errors.
	CodeMalformed       Code = "MALFORMED"
	CodeInvalidUsername Code = "INVALID_USERNAME"
	CodeInvalidPosition Code = "INVALID_POSITION"

	// State errors.
	CodeNotYourTurn          Code = "NOT_YOUR_TURN"
	CodeSessionNotActive     Code = "SESSION_NOT_ACTIVE"
	CodeAlreadyQueued        Code = "ALREADY_QUEUED"
	CodeAlreadyInGame        Code = "ALREADY_IN_GAME"
	CodeNotQueued            Code = "NOT_QUEUED"
	CodeDuplicateInvite      Code = "DUPLICATE_INVITE"
	CodeSelfInvite           Code = "SELF_INVITE"
	CodeRecipientUnavailable Code = "RECIPIENT_UNAVAILABLE"
	CodeInviteNotPending     Code = "INVITE_NOT_PENDING"
	CodeAlreadyLoggedIn      Code = "ALREADY_LOGGED_IN"

	// Resource errors.
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"
	CodeInviteNotFound     Code = "INVITE_NOT_FOUND"
	CodeUnknownUser        Code = "UNKNOWN_USER"
	CodeUsernameTaken      Code = "USERNAME_TAKEN"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeNotAuthenticated   Code = "NOT_AUTHENTICATED"

	CodeInternal Code = "INTERNAL"
)

// Error is a typed failure that services return and the server maps 1:1
// onto a wire error response.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError builds a typed protocol error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError converts any error into a wire Error. Non-protocol errors are
// masked as INTERNAL so infrastructure details never leak to clients.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{Code: CodeInternal, Message: "internal server error"}
}

// IsCode reports whether err is a protocol error with the given code.
func IsCode(err error, code Code) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == code
}
