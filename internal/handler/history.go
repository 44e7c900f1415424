package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridebook/internal/domain"
	"ridebook/internal/middleware"
	"ridebook/internal/service"
)

// HistoryHandler handles HTTP requests for the trip history.
type HistoryHandler struct {
	reconciler   *service.ReconcilerService
	cancellation *service.CancellationService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(reconciler *service.ReconcilerService, cancellation *service.CancellationService) *HistoryHandler {
	return &HistoryHandler{
		reconciler:   reconciler,
		cancellation: cancellation,
	}
}

// BookingResponse is one booking of a trip group.
type BookingResponse struct {
	BookingID       string  `json:"booking_id"`
	SeatID          string  `json:"seat_id"`
	SeatName        string  `json:"seat_name"`
	Status          string  `json:"status"`
	DisplayStatus   string  `json:"display_status"`
	StatusLabel     string  `json:"status_label"`
	TripPrice       float64 `json:"trip_price"`
	BookedAt        string  `json:"booked_at,omitempty"`
	TripTimeDisplay string  `json:"trip_time_display,omitempty"`
}

// TripGroupResponse is one trip of the history.
type TripGroupResponse struct {
	TripID             string            `json:"trip_id"`
	TripDateTime       string            `json:"trip_date_time,omitempty"`
	TripTimeDisplay    string            `json:"trip_time_display,omitempty"`
	DepartureCityValue string            `json:"departure_city_value"`
	ArrivalCityValue   string            `json:"arrival_city_value"`
	DriverID           string            `json:"driver_id,omitempty"`
	DriverName         string            `json:"driver_name,omitempty"`
	DriverPhone        string            `json:"driver_phone,omitempty"`
	LiveTripStatus     string            `json:"live_trip_status,omitempty"`
	HeaderStatus       string            `json:"header_status"`
	HeaderLabel        string            `json:"header_label"`
	ActiveFees         float64           `json:"active_fees"`
	CanCancel          bool              `json:"can_cancel_any_booking_in_group"`
	Bookings           []BookingResponse `json:"bookings"`
}

// HistoryResponse is the HTTP response for GET /v1/history.
type HistoryResponse struct {
	Trips []TripGroupResponse `json:"trips"`
}

// CancellableResponse is the HTTP response for the cancellable bookings of a trip.
type CancellableResponse struct {
	TripID   string            `json:"trip_id"`
	Bookings []BookingResponse `json:"bookings"`
}

// CancelBookingsRequest is the HTTP request body for cancelling bookings.
type CancelBookingsRequest struct {
	BookingIDs []string `json:"booking_ids" binding:"required"`
}

// GetHistory handles GET /v1/history
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	groups, err := h.reconciler.Reconcile(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := HistoryResponse{Trips: make([]TripGroupResponse, 0, len(groups))}
	for _, group := range groups {
		resp.Trips = append(resp.Trips, toTripGroupResponse(group))
	}

	respondJSON(c, http.StatusOK, resp)
}

// GetCancellable handles GET /v1/history/trips/:tripId/cancellable
func (h *HistoryHandler) GetCancellable(c *gin.Context) {
	tripID := c.Param("tripId")

	bookings, err := h.cancellation.CancellableBookings(c.Request.Context(), middleware.UserIDFromContext(c), tripID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CancellableResponse{
		TripID:   tripID,
		Bookings: toBookingResponses(bookings),
	})
}

// CancelBookings handles POST /v1/history/cancellations
func (h *HistoryHandler) CancelBookings(c *gin.Context) {
	var req CancelBookingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondJSON(c, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.cancellation.ExecuteCancellationByIDs(c.Request.Context(), middleware.UserIDFromContext(c), req.BookingIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, result)
}

func toTripGroupResponse(group domain.GroupedTrip) TripGroupResponse {
	resp := TripGroupResponse{
		TripID:             group.TripID,
		TripTimeDisplay:    group.TripTimeDisplay,
		DepartureCityValue: group.DepartureCityValue,
		ArrivalCityValue:   group.ArrivalCityValue,
		DriverID:           group.DriverID,
		DriverName:         group.DriverName,
		LiveTripStatus:     string(group.LiveTripStatus),
		HeaderStatus:       string(group.HeaderStatus),
		HeaderLabel:        group.HeaderLabel,
		ActiveFees:         group.ActiveFees,
		CanCancel:          group.CanCancelAnyBookingInGroup,
		Bookings:           toBookingResponses(group.Bookings),
	}
	if !group.TripDateTime.IsZero() {
		resp.TripDateTime = group.TripDateTime.UTC().Format(time.RFC3339)
	}
	if len(group.Bookings) > 0 {
		resp.DriverPhone = group.Bookings[0].DriverPhone
	}
	return resp
}

func toBookingResponses(bookings []domain.DisplayableBooking) []BookingResponse {
	resp := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		item := BookingResponse{
			BookingID:       b.BookingID,
			SeatID:          b.SeatID,
			SeatName:        b.SeatName,
			Status:          string(b.Status),
			DisplayStatus:   string(b.DisplayStatus),
			StatusLabel:     b.StatusLabel,
			TripPrice:       b.TripPrice,
			TripTimeDisplay: b.TripTimeDisplay,
		}
		if !b.BookedAt.IsZero() {
			item.BookedAt = b.BookedAt.UTC().Format(time.RFC3339)
		}
		resp = append(resp, item)
	}
	return resp
}
