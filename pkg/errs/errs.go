package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a coded application error. The code travels to API responses and
// gateway error frames; the cause stays server-side.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func AuthenticationFailed(msg string) error { return New(CodeAuthenticationFailed, msg) }

func InvalidConversation(msg string) error { return New(CodeInvalidConversation, msg) }

func NotParticipant(msg string) error { return New(CodeNotParticipant, msg) }

func UploadFailed(msg string, cause error) error { return Wrap(CodeUploadFailed, msg, cause) }

func StoreUnavailable(msg string, cause error) error { return Wrap(CodeStoreUnavailable, msg, cause) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func InvalidArg(msg string) error { return New(CodeInvalidArgument, msg) }

// CodeOf extracts the application code from an error chain.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HTTPStatus maps an error chain to the status the API layer should return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodeNotParticipant:
		return http.StatusForbidden
	case CodeInvalidConversation, CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeUploadFailed:
		return http.StatusBadGateway
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
