package router // package router registers the HTTP routes of the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-coordinator/internal/config"
	"github.com/iliyamo/cinema-seat-coordinator/internal/handler"
	"github.com/iliyamo/cinema-seat-coordinator/internal/middleware"
)

// Options carries what the route middleware needs.  A nil Redis client
// disables rate limiting and response caching.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes registers non-authenticated routes.  Currently only the
// health check used by load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the browse endpoints guests can call before
// logging in.  Showtime details rarely change and go through the Redis
// response cache; the seat map is always read live.
func RegisterPublic(e *echo.Echo, h *handler.ReservationHandler, opts Options) {
	e.GET("/showtimes/:id", h.GetShowtime, middleware.NewRedisCache(opts.Cache, opts.Redis))
	e.GET("/showtimes/:id/seats", h.GetSeats)
}

// RegisterCustomer registers customer-scoped endpoints.  All routes require
// a valid JWT and the CUSTOMER role; the routes that change seat state are
// also rate limited per user.
func RegisterCustomer(e *echo.Echo, h *handler.ReservationHandler, opts Options) {
	g := e.Group(
		"",
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	limit := middleware.NewTokenBucket(opts.RateLimit, opts.Redis)

	g.POST("/showtimes/:id/seats/hold", h.HoldSeats, limit)
	g.DELETE("/showtimes/:id/seats/hold", h.ReleaseHold, limit)
	g.GET("/showtimes/:id/seats/hold/status", h.HoldStatus)

	g.POST("/bookings", h.ConfirmBooking, limit)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking, limit)
	g.GET("/my-bookings", h.ListBookings)

	g.POST("/payments/:booking_id/confirm", h.ConfirmPayment, limit)
}

// Register wires every route group onto e.
func Register(e *echo.Echo, h *handler.ReservationHandler, opts Options) {
	RegisterRoutes(e)
	RegisterPublic(e, h, opts)
	RegisterCustomer(e, h, opts)
}
