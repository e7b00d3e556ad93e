package handler

import (
	"github.com/gofiber/fiber/v2"

	"docvault/internal/apperr"
	"docvault/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeServiceError translates a taxonomy error into the HTTP surface. Only
// the kind and the caller-safe message cross the boundary.
func writeServiceError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)

	switch kind {
	case apperr.KindNotFound:
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", msg)
	case apperr.KindPermissionDenied:
		return writeError(c, fiber.StatusForbidden, "PERMISSION_DENIED", msg)
	case apperr.KindInvalidArgument:
		return writeError(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", msg)
	case apperr.KindQuotaExceeded:
		return writeError(c, fiber.StatusInsufficientStorage, "QUOTA_EXCEEDED", msg)
	case apperr.KindUnavailable:
		return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", msg)
	case apperr.KindTimeout:
		return writeError(c, fiber.StatusGatewayTimeout, "TIMEOUT", msg)
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
