package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pushlytics/api/analytics"
	"pushlytics/api/logging"
)

// AppError is the JSON error envelope returned by every handler.
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *AppError) Error() string { return e.Message }

func badRequest(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: "invalid_request", Message: msg}
}

// toAppError maps engine errors onto HTTP statuses. Anything unrecognized is
// an internal error and its text is not exposed.
func toAppError(err error) *AppError {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, analytics.ErrFunnelNotFound):
		return &AppError{Status: http.StatusNotFound, Code: "not_found", Message: "Funnel not found"}
	case errors.Is(err, analytics.ErrInvalidRequest):
		return &AppError{Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, analytics.ErrNotImplemented):
		return &AppError{Status: http.StatusNotImplemented, Code: "not_implemented", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Status: http.StatusGatewayTimeout, Code: "timeout", Message: "Analysis timed out"}
	case errors.Is(err, context.Canceled):
		// 499: client closed request.
		return &AppError{Status: 499, Code: "canceled", Message: "Request canceled"}
	default:
		return &AppError{Status: http.StatusInternalServerError, Code: "internal", Message: "Failed to compute analysis"}
	}
}

func respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.Status, appErr)
}
