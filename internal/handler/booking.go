package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-coordinator/internal/middleware"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

type confirmRequest struct {
	ShowtimeID uint64   `json:"showtime_id"`
	HoldID     string   `json:"hold_id"`
	SeatIDs    []uint64 `json:"seat_ids"`
	PaymentRef string   `json:"payment_ref"`
}

// ConfirmBooking handles POST /bookings.  It turns the caller's active hold
// into a booking; seat_ids may narrow the booking to a subset of the held
// seats.  An expired hold answers 410 and the client has to hold again.
func (h *ReservationHandler) ConfirmBooking(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ShowtimeID == 0 || body.HoldID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id and hold_id are required"})
	}
	b, err := h.Coord.ConfirmBooking(c.Request().Context(), reservation.ConfirmRequest{
		HoldID:     body.HoldID,
		ShowtimeID: body.ShowtimeID,
		Owner:      userID,
		SeatIDs:    body.SeatIDs,
		PaymentRef: body.PaymentRef,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// GetBooking handles GET /bookings/:id for the booking's owner.
func (h *ReservationHandler) GetBooking(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Coord.Booking(c.Request().Context(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /my-bookings, newest first.
func (h *ReservationHandler) ListBookings(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	items, err := h.Coord.BookingsByOwner(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		return c.JSON(http.StatusOK, echo.Map{"items": []any{}})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// CancelBooking handles DELETE /bookings/:id.  The seats go back on sale;
// cancelling twice is harmless.
func (h *ReservationHandler) CancelBooking(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	if err := h.Coord.CancelBooking(c.Request().Context(), id, userID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmPayment handles POST /payments/:booking_id/confirm, the callback
// from the payment page.  "success" marks the booking paid, "failed"
// cancels it and frees the seats.
func (h *ReservationHandler) ConfirmPayment(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "booking_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body struct {
		Result     string `json:"result"`
		PaymentRef string `json:"payment_ref"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	var success bool
	switch body.Result {
	case "success":
		success = true
	case "failed":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "result must be success or failed"})
	}
	b, err := h.Coord.ConfirmPayment(c.Request().Context(), id, userID, success, body.PaymentRef)
	if err != nil {
		return respondError(c, err)
	}
	msg := "payment confirmed"
	if !success {
		msg = "payment failed, booking cancelled"
	}
	return c.JSON(http.StatusOK, echo.Map{"success": success, "message": msg, "booking": b})
}
