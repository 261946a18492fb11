package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"

	"github.com/plumehq/plume/internal/pkg/log"
)

// Error codes
const (
	CodeBadRequest  = "BAD_REQUEST"
	CodeForbidden   = "FORBIDDEN"
	CodeNotFound    = "NOT_FOUND"
	CodeBadGateway  = "BAD_GATEWAY"
	CodeInternal    = "INTERNAL_SERVER_ERROR"
	CodeUnprocessed = "UNPROCESSABLE_ENTITY"
)

// Error is a service error carrying the HTTP status it maps to. Internal
// errors additionally carry a generated reference id so a client report can
// be matched to the logged cause.
type Error struct {
	Status  int
	Code    string
	Message string
	Refid   string
	Detail  interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// BadRequest reports client input that violates a stated bound.
func BadRequest(format string, a ...interface{}) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: fmt.Sprintf(format, a...),
	}
}

// Forbidden reports a post that exists but belongs to another uploader.
func Forbidden(message string) *Error {
	return &Error{
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Message: message,
	}
}

// NotFound reports a post that does not exist for this uploader.
func NotFound(message string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: message,
	}
}

// BadGateway reports a non-success response from the CDN or a collaborator
// service.
func BadGateway(message string) *Error {
	return &Error{
		Status:  http.StatusBadGateway,
		Code:    CodeBadGateway,
		Message: message,
	}
}

// Internal wraps an unexpected condition. The generated reference id is
// surfaced to the client; the cause is only logged.
func Internal(cause error) *Error {
	ref := ""
	if id, err := uuid.NewV4(); err == nil {
		ref = id.String()
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal server error",
		Refid:   ref,
		Cause:   cause,
	}
}

// ValidationDetail describes one failed field of a multipart or form request.
type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// Unprocessable reports per-field validation failures with a 422 and the
// detail array listing each offending field.
func Unprocessable(details []ValidationDetail) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeUnprocessed,
		Message: "request validation failed",
		Detail:  details,
	}
}

// Response is the JSON error body.
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Refid   string      `json:"refid,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

// Handle renders a service error onto the fiber context. Anything that is
// not an *Error is treated as an internal error.
func Handle(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if !errors.As(err, &svcErr) {
		svcErr = Internal(err)
	}

	if svcErr.Status >= http.StatusInternalServerError {
		log.ErrorWithContext(c.UserContext(), "[refid=%s] %v", svcErr.Refid, errCause(svcErr))
	}

	return c.Status(svcErr.Status).JSON(Response{
		Code:    svcErr.Code,
		Message: svcErr.Message,
		Refid:   svcErr.Refid,
		Detail:  svcErr.Detail,
	})
}

// ErrorHandler is the app-level fiber error handler covering errors that
// escape the per-handler Handle calls (body parser failures, panics
// recovered by middleware, fiber route errors).
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(Response{
			Code:    http.StatusText(fiberErr.Code),
			Message: fiberErr.Message,
		})
	}
	return Handle(c, err)
}

func errCause(e *Error) error {
	if e.Cause != nil {
		return e.Cause
	}
	return errors.New(e.Message)
}

// StatusOf returns the HTTP status an error maps to; non-service errors map
// to 500.
func StatusOf(err error) int {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Status
	}
	return http.StatusInternalServerError
}
