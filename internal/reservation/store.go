package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// Inventory is the authoritative seat status of one showtime.  Transition
// is the only mutation primitive: it is a compare-and-set over the whole
// batch and either moves every seat or none.
type Inventory interface {
	// SeatsByID returns the requested seats of the unit's showtime.  Seats
	// that do not exist are omitted.
	SeatsByID(ctx context.Context, seatIDs []uint64) ([]model.Seat, error)
	// Transition moves every seat in seatIDs from `from` to `to`.  When any
	// seat is missing or not in `from`, nothing changes and a
	// *SeatConflictError listing those seats is returned.
	Transition(ctx context.Context, seatIDs []uint64, from, to model.SeatStatus) error
}

// Ledger keeps the holds of one showtime and their lease deadlines.
type Ledger interface {
	CreateHold(ctx context.Context, h model.Hold) error
	// GetHold returns ErrNotFound for unknown ids.
	GetHold(ctx context.Context, holdID string) (model.Hold, error)
	// MarkCommitted, MarkReleased and MarkExpired move an active hold to the
	// named state and return the resulting state.  On a hold that is already
	// terminal they change nothing and return the current state.
	MarkCommitted(ctx context.Context, holdID string) (model.HoldState, error)
	MarkReleased(ctx context.Context, holdID string) (model.HoldState, error)
	MarkExpired(ctx context.Context, holdID string) (model.HoldState, error)
	// ExpiredHolds returns the active holds of the showtime whose deadline
	// is at or before now.
	ExpiredHolds(ctx context.Context, now time.Time) ([]model.Hold, error)
}

// BookingStore persists committed bookings.
type BookingStore interface {
	// CreateBooking assigns b.ID and timestamps.
	CreateBooking(ctx context.Context, b *model.Booking) error
	// GetBooking returns ErrNotFound for unknown ids.
	GetBooking(ctx context.Context, bookingID uint64) (model.Booking, error)
	UpdatePaymentStatus(ctx context.Context, bookingID uint64, status model.PaymentStatus, paymentRef *string) error
}

// Tx is a unit of work scoped to one showtime.  Implementations serialise
// units of the same showtime; units of different showtimes may run in
// parallel.  Either Commit or Rollback must be called exactly once.
type Tx interface {
	Inventory
	Ledger
	BookingStore
	Commit() error
	Rollback() error
}

// Store opens units of work and serves lock-free reads.
type Store interface {
	// Begin opens a unit of work on showtimeID.  It returns ErrNotFound when
	// the showtime does not exist.
	Begin(ctx context.Context, showtimeID uint64) (Tx, error)

	// Showtime returns ErrNotFound for unknown ids.
	Showtime(ctx context.Context, showtimeID uint64) (model.Showtime, error)
	// ListSeats returns a snapshot of a showtime's seats ordered by row and
	// column.  It never waits on a unit of work.
	ListSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error)
	// FindHold looks a hold up without locking it.
	FindHold(ctx context.Context, holdID string) (model.Hold, error)
	// FindBooking looks a booking up without locking it.
	FindBooking(ctx context.Context, bookingID uint64) (model.Booking, error)
	// BookingsByOwner returns a user's bookings, newest first.
	BookingsByOwner(ctx context.Context, owner uint64) ([]model.Booking, error)
	// ExpiredHolds returns up to limit active holds across all showtimes
	// whose deadline is at or before now, oldest deadline first.
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
	// ExpiredHoldsByShow returns the lapsed active holds of one showtime,
	// oldest deadline first, without locking them.
	ExpiredHoldsByShow(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Hold, error)
}

// EventSink receives lifecycle notifications after the corresponding unit
// of work committed.  Implementations must not block.
type EventSink interface {
	HoldExpired(ctx context.Context, h model.Hold)
	BookingConfirmed(ctx context.Context, b model.Booking)
	BookingCancelled(ctx context.Context, b model.Booking)
}

type noopSink struct{}

func (noopSink) HoldExpired(context.Context, model.Hold)         {}
func (noopSink) BookingConfirmed(context.Context, model.Booking) {}
func (noopSink) BookingCancelled(context.Context, model.Booking) {}
