package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-coordinator/internal/middleware"
	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

// ReservationHandler exposes the reservation coordinator over HTTP.  Public
// methods read showtimes and seat maps; the rest assume JWTAuth and
// RequireRole already ran and return 401 when no user id is present.
type ReservationHandler struct {
	Coord *reservation.Coordinator
	now   func() time.Time
}

// NewReservationHandler panics on a nil coordinator.
func NewReservationHandler(coord *reservation.Coordinator) *ReservationHandler {
	if coord == nil {
		panic("nil coordinator passed to NewReservationHandler")
	}
	return &ReservationHandler{Coord: coord, now: time.Now}
}

// GetShowtime handles GET /showtimes/:id.
func (h *ReservationHandler) GetShowtime(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	st, err := h.Coord.Showtime(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// GetSeats handles GET /showtimes/:id/seats and returns every seat of the
// showtime with its current status.
func (h *ReservationHandler) GetSeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	seats, err := h.Coord.Seats(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": seats})
}

type holdRequest struct {
	SeatIDs    []uint64 `json:"seat_ids"`
	TTLSeconds int      `json:"ttl_seconds"`
}

type holdResponse struct {
	HoldID           string          `json:"hold_id"`
	State            model.HoldState `json:"state"`
	SeatIDs          []uint64        `json:"seat_ids"`
	ExpiresAt        string          `json:"expires_at"`
	ExpiresInSeconds int             `json:"expires_in_seconds"`
}

func (h *ReservationHandler) holdView(hold model.Hold) holdResponse {
	return holdResponse{
		HoldID:           hold.ID,
		State:            hold.State,
		SeatIDs:          hold.SeatIDs,
		ExpiresAt:        hold.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresInSeconds: int(hold.Remaining(h.now()).Seconds()),
	}
}

// HoldSeats handles POST /showtimes/:id/seats/hold.  The body names the
// seats to hold and optionally a lease in seconds.  All seats are held or
// none: 409 lists the seats that were not available.
func (h *ReservationHandler) HoldSeats(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	var body holdRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.TTLSeconds < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ttl_seconds must be positive"})
	}
	hold, err := h.Coord.Hold(c.Request().Context(), reservation.HoldRequest{
		ShowtimeID: showID,
		SeatIDs:    body.SeatIDs,
		Owner:      userID,
		TTL:        time.Duration(body.TTLSeconds) * time.Second,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, h.holdView(hold))
}

// ReleaseHold handles DELETE /showtimes/:id/seats/hold with body
// {"hold_id": "..."}.  Releasing an already finished hold is a no-op.
func (h *ReservationHandler) ReleaseHold(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	var body struct {
		HoldID string `json:"hold_id"`
	}
	if err := c.Bind(&body); err != nil || body.HoldID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_id is required"})
	}
	if err := h.Coord.Release(c.Request().Context(), showID, body.HoldID, userID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HoldStatus handles GET /showtimes/:id/seats/hold/status?hold_id=.  The
// remaining seconds drive the client's countdown.
func (h *ReservationHandler) HoldStatus(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	holdID := c.QueryParam("hold_id")
	if holdID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_id is required"})
	}
	hold, err := h.Coord.HoldStatus(c.Request().Context(), holdID, userID)
	if err != nil {
		return respondError(c, err)
	}
	if hold.ShowtimeID != showID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	return c.JSON(http.StatusOK, h.holdView(hold))
}
