package web

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/protocol"
	"github.com/teslashibe/go-focus/pkg/session"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error  string                `json:"error"`
	Code   string                `json:"code"`
	Fields []protocol.FieldError `json:"fields,omitempty"`
}

// classify maps an error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, codeForStatus(fe.Code)
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict, "session_exists"
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusServiceUnavailable, "too_many_sessions"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, session.ErrNoDetector), errors.Is(err, detection.ErrNoDetector):
		return http.StatusServiceUnavailable, "no_detector"
	case session.DropReason(err) != "":
		return http.StatusUnprocessableEntity, session.DropReason(err)
	case errors.Is(err, focus.ErrUnknownProfile):
		return http.StatusBadRequest, "unknown_profile"
	case errors.Is(err, protocol.ErrInvalidPayload), isValidation(err):
		return http.StatusBadRequest, "invalid_payload"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func isValidation(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_payload"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusUpgradeRequired:
		return "upgrade_required"
	default:
		if status >= 500 {
			return "internal"
		}
		return "error"
	}
}

// fieldErrors flattens schema and struct validation failures.
func fieldErrors(err error) []protocol.FieldError {
	var verr *protocol.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]protocol.FieldError, 0, len(ve))
		for _, fe := range ve {
			out = append(out, protocol.FieldError{
				Field:       fe.Field(),
				Description: "failed " + fe.Tag() + " validation",
			})
		}
		return out
	}
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && code == "internal" {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("request rejected", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:  err.Error(),
		Code:   code,
		Fields: fieldErrors(err),
	})
}
