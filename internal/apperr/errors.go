package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeForbidden               Code = "FORBIDDEN"
	CodeDuplicateIdentity       Code = "DUPLICATE_IDENTITY"
	CodeInvalidCredential       Code = "INVALID_CREDENTIAL"
	CodeInsufficientBalance     Code = "INSUFFICIENT_BALANCE"
	CodeInvalidVerificationCode Code = "INVALID_VERIFICATION_CODE"
	CodeMissingSettlement       Code = "MISSING_SETTLEMENT"
	CodeValidation              Code = "VALIDATION_ERROR"
	CodeConflict                Code = "CONFLICT"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error is a typed application error. Two errors are equal under errors.Is
// when their codes match, so the package-level sentinels can be used as targets.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound                = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden               = &Error{Code: CodeForbidden, Message: "not allowed"}
	ErrDuplicateIdentity       = &Error{Code: CodeDuplicateIdentity, Message: "phone number already registered"}
	ErrInvalidCredential       = &Error{Code: CodeInvalidCredential, Message: "invalid credentials"}
	ErrInsufficientBalance     = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrInvalidVerificationCode = &Error{Code: CodeInvalidVerificationCode, Message: "invalid confirmation code"}
	ErrMissingSettlement       = &Error{Code: CodeMissingSettlement, Message: "no settled transaction for listing"}
	ErrValidation              = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrConflict                = &Error{Code: CodeConflict, Message: "conflicting state"}
	ErrUnauthorized            = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found")
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// CodeOf returns the code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to the status code used by the HTTP layer.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeDuplicateIdentity, CodeConflict:
		return http.StatusConflict
	case CodeInvalidCredential, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInsufficientBalance, CodeMissingSettlement, CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidVerificationCode:
		// soft failure: the request was understood, the payment was not accepted
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// JSON writes err as the standard failure envelope.
func JSON(c echo.Context, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "server error", "code": CodeInternal})
	}
	return c.JSON(HTTPStatus(err), echo.Map{"success": false, "error": e.Message, "code": e.Code})
}
