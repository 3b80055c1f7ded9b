package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-coordinator/internal/middleware"
	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/repository"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
	"github.com/iliyamo/cinema-seat-coordinator/internal/utils"
)

const (
	secret = "handler-secret"
	showID = 3
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type server struct {
	e     *echo.Echo
	clock *clock
}

func newServer(t *testing.T) *server {
	t.Helper()
	clk := &clock{t: time.Date(2026, 4, 2, 20, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore()
	store.SetClock(clk.Now)
	seats := make([]model.Seat, 4)
	for i := range seats {
		seats[i] = model.Seat{SeatID: uint64(i + 1), Row: "A", Column: uint32(i + 1), PriceCents: 1000}
	}
	require.NoError(t, store.AddShowtime(model.Showtime{ID: showID, Title: "Heat", HallName: "Hall 1"}, seats))

	coord := reservation.NewCoordinator(store, reservation.Options{DefaultTTL: 5 * time.Minute, Now: clk.Now})
	h := NewReservationHandler(coord)
	h.now = clk.Now

	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/showtimes/:id", h.GetShowtime)
	e.GET("/showtimes/:id/seats", h.GetSeats)
	g := e.Group("", middleware.JWTAuth(secret), middleware.RequireRole(middleware.RoleCustomer))
	g.POST("/showtimes/:id/seats/hold", h.HoldSeats)
	g.DELETE("/showtimes/:id/seats/hold", h.ReleaseHold)
	g.GET("/showtimes/:id/seats/hold/status", h.HoldStatus)
	g.POST("/bookings", h.ConfirmBooking)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking)
	g.GET("/my-bookings", h.ListBookings)
	g.POST("/payments/:booking_id/confirm", h.ConfirmPayment)
	return &server{e: e, clock: clk}
}

func (s *server) do(t *testing.T, method, path string, user uint64, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != 0 {
		tok, err := utils.NewAccessToken(secret, user, middleware.RoleCustomer, time.Hour)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *server) hold(t *testing.T, user uint64, seats string) holdResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/showtimes/3/seats/hold", user, `{"seat_ids":`+seats+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out holdResponse
	decode(t, rec, &out)
	return out
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPublicShowtimeAndSeats(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/showtimes/3", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st model.Showtime
	decode(t, rec, &st)
	assert.Equal(t, "Heat", st.Title)

	rec = s.do(t, http.MethodGet, "/showtimes/3/seats", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var seats struct {
		Items []model.Seat `json:"items"`
	}
	decode(t, rec, &seats)
	require.Len(t, seats.Items, 4)
	assert.Equal(t, model.SeatAvailable, seats.Items[0].Status)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/showtimes/99", 0, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/showtimes/abc/seats", 0, "").Code)
}

func TestHoldRequiresToken(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/showtimes/3/seats/hold", 0, `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHoldConflictListsUnavailableSeats(t *testing.T) {
	s := newServer(t)
	h := s.hold(t, 1, "[1,2]")
	assert.Equal(t, []uint64{1, 2}, h.SeatIDs)
	assert.Equal(t, 300, h.ExpiresInSeconds)
	assert.Equal(t, "2026-04-02T20:05:00Z", h.ExpiresAt)

	rec := s.do(t, http.MethodPost, "/showtimes/3/seats/hold", 2, `{"seat_ids":[2,3]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error       string   `json:"error"`
		Unavailable []uint64 `json:"unavailable"`
	}
	decode(t, rec, &body)
	assert.Equal(t, []uint64{2}, body.Unavailable)

	rec = s.do(t, http.MethodPost, "/showtimes/3/seats/hold", 2, `{"seat_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldStatusAndRelease(t *testing.T) {
	s := newServer(t)
	h := s.hold(t, 1, "[1]")
	s.clock.Advance(time.Minute)

	rec := s.do(t, http.MethodGet, "/showtimes/3/seats/hold/status?hold_id="+h.HoldID, 1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st holdResponse
	decode(t, rec, &st)
	assert.Equal(t, model.HoldActive, st.State)
	assert.Equal(t, 240, st.ExpiresInSeconds)

	assert.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodGet, "/showtimes/3/seats/hold/status?hold_id="+h.HoldID, 2, "").Code)

	body := `{"hold_id":"` + h.HoldID + `"}`
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/showtimes/99/seats/hold", 1, body).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/showtimes/3/seats/hold", 2, `{"seat_ids":[1]}`).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/showtimes/3/seats/hold", 1, body).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/showtimes/3/seats/hold", 1, body).Code)

	// Seat 1 can be held again.
	s.hold(t, 2, "[1]")
}

func TestConfirmExpiredHoldIsGone(t *testing.T) {
	s := newServer(t)
	h := s.hold(t, 1, "[1,2]")
	s.clock.Advance(5 * time.Minute)

	rec := s.do(t, http.MethodPost, "/bookings", 1, `{"showtime_id":3,"hold_id":"`+h.HoldID+`"}`)
	assert.Equal(t, http.StatusGone, rec.Code)

	// Seats went back to the pool.
	s.hold(t, 2, "[1,2]")
}

func TestBookingLifecycle(t *testing.T) {
	s := newServer(t)
	h := s.hold(t, 1, "[1,2,3]")

	rec := s.do(t, http.MethodPost, "/bookings", 1, `{"showtime_id":3,"hold_id":"`+h.HoldID+`","seat_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b model.Booking
	decode(t, rec, &b)
	assert.Equal(t, []uint64{1, 2}, b.SeatIDs)
	assert.Equal(t, uint32(2000), b.TotalAmountCents)
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)

	// Committing the same hold twice is refused.
	rec = s.do(t, http.MethodPost, "/bookings", 1, `{"showtime_id":3,"hold_id":"`+h.HoldID+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := "/bookings/" + jsonNumber(b.ID)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, 1, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, 2, "").Code)

	rec = s.do(t, http.MethodGet, "/my-bookings", 1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.Booking `json:"items"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)

	rec = s.do(t, http.MethodPost, "/payments/"+jsonNumber(b.ID)+"/confirm", 1, `{"result":"success","payment_ref":"pay_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid struct {
		Success bool          `json:"success"`
		Booking model.Booking `json:"booking"`
	}
	decode(t, rec, &paid)
	assert.True(t, paid.Success)
	assert.Equal(t, model.PaymentPaid, paid.Booking.PaymentStatus)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, 1, "").Code)
	rec = s.do(t, http.MethodPost, "/payments/"+jsonNumber(b.ID)+"/confirm", 1, `{"result":"success"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Cancelled seats are available again.
	s.hold(t, 2, "[1,2,3]")
}

func TestFailedPaymentCancelsBooking(t *testing.T) {
	s := newServer(t)
	h := s.hold(t, 1, "[4]")
	rec := s.do(t, http.MethodPost, "/bookings", 1, `{"showtime_id":3,"hold_id":"`+h.HoldID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var b model.Booking
	decode(t, rec, &b)

	rec = s.do(t, http.MethodPost, "/payments/"+jsonNumber(b.ID)+"/confirm", 1, `{"result":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/payments/"+jsonNumber(b.ID)+"/confirm", 1, `{"result":"failed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Success bool          `json:"success"`
		Booking model.Booking `json:"booking"`
	}
	decode(t, rec, &out)
	assert.False(t, out.Success)
	assert.Equal(t, model.PaymentCancelled, out.Booking.PaymentStatus)
	s.hold(t, 2, "[4]")

	// A second failure report finds the booking already cancelled.
	rec = s.do(t, http.MethodPost, "/payments/"+jsonNumber(b.ID)+"/confirm", 1, `{"result":"failed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func jsonNumber(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
