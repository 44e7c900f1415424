package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebook/internal/repository"
	"ridebook/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string              `json:"error"`
	Seats []service.SeatError `json:"seats,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Whole-batch rejections carry the affected seats.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	resp := ErrorResponse{Error: err.Error()}

	var rejected *service.BatchRejectedError
	if errors.As(err, &rejected) {
		resp.Error = rejected.Cause.Error()
		resp.Seats = rejected.Seats
	}

	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Signed out
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrTripNotInHistory):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrNoBookingsSelected),
		errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, repository.ErrInvalidPath):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrCancellationInProgress),
		errors.Is(err, service.ErrTripStateChanged):
		return http.StatusConflict

	// Business rule errors
	case errors.Is(err, service.ErrBookingsNotEligible):
		return http.StatusUnprocessableEntity

	// Retryable
	case errors.Is(err, service.ErrHistoryFetchFailed),
		errors.Is(err, repository.ErrTooManyConflicts):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
