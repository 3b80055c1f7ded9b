package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is used by load balancers and monitoring to verify the service is
// up.  It writes a plain "ok" with 200.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
