package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/flowrun/pkg/models"
)

// Problem is an RFC 7807 body extended with the failing node and the error
// details.
type Problem struct {
	*problems.Problem

	NodeID   string          `json:"nodeId,omitempty"`
	NodeType models.NodeType `json:"nodeType,omitempty"`
	Details  any             `json:"details,omitempty"`
}

// invalidWorkflowError marks a stored workflow that failed load-time
// validation. It is the author's configuration problem, not the caller's.
type invalidWorkflowError struct {
	err error
}

func (e *invalidWorkflowError) Error() string { return e.err.Error() }

func (e *invalidWorkflowError) Unwrap() error { return e.err }

// StatusFor maps the error taxonomy to an HTTP status.
func StatusFor(errType models.ErrorType) int {
	switch errType {
	case models.ErrRateLimitExceeded:
		return fiber.StatusTooManyRequests
	case models.ErrWorkflowNotFound, models.ErrProjectNotFound:
		return fiber.StatusNotFound
	case models.ErrMissingParams, models.ErrValidationFailed,
		models.ErrParameterProcessingFailed, models.ErrUnexpectedParams:
		return fiber.StatusBadRequest
	case models.ErrCORS, models.ErrAccessDenied:
		return fiber.StatusForbidden
	case models.ErrNoEntryNode, models.ErrInvalidEdge:
		return fiber.StatusUnprocessableEntity
	case models.ErrConnectionTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error leaving a handler as a problem body. It is
// the fatal catch-all: anything unstructured becomes a 500 and is reported.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			problem := problems.NewStatusProblem(fiberErr.Code).
				WithInstance(c.Path()).
				WithDetail(fiberErr.Message)

			return c.Status(fiberErr.Code).JSON(problem)
		}

		execErr, structured := models.AsExecutionError(err)
		if !structured {
			execErr = models.WrapError(models.ErrExecutionFailed, err)
		}

		status := StatusFor(execErr.Type)

		var invalid *invalidWorkflowError
		if errors.As(err, &invalid) {
			status = fiber.StatusUnprocessableEntity
		}

		if status == fiber.StatusInternalServerError {
			logger.ErrorContext(c.Context(), "Request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", err,
			)

			if !structured {
				reportError(c, err)
			}
		}

		problem := &Problem{
			Problem: problems.NewStatusProblem(status).
				WithInstance(c.Path()).
				WithType(string(execErr.Type)).
				WithDetail(execErr.Message),
			NodeID:   execErr.NodeID,
			NodeType: execErr.NodeType,
			Details:  execErr.Details,
		}

		return c.Status(status).JSON(problem)
	}
}

func reportError(c fiber.Ctx, err error) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("method", c.Method())
		scope.SetTag("route", c.Route().Path)
		scope.SetTag("tenant", c.Params("tenant"))
		scope.SetTag("project_id", c.Params("projectId"))
		scope.SetRequest(&http.Request{Method: c.Method(), RequestURI: c.OriginalURL()})
		hub.CaptureException(err)
	})
}
