package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

// respondError maps a coordinator error to its HTTP status and writes the
// usual {"error": ...} body.  Seat conflicts also list the unavailable
// seats so the client can refresh its seat map.
func respondError(c echo.Context, err error) error {
	var conflict *reservation.SeatConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "some seats are unavailable",
			"unavailable": conflict.SeatIDs,
		})
	case errors.Is(err, reservation.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, reservation.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, reservation.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, reservation.ErrHoldExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold expired"})
	case errors.Is(err, reservation.ErrHoldNotActive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "hold is not active"})
	case errors.Is(err, reservation.ErrBookingCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking cancelled"})
	}
	c.Logger().Errorf("request failed: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
