package reservation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned for unknown showtimes, holds and bookings.
	ErrNotFound = errors.New("not found")
	// ErrSeatConflict matches every *SeatConflictError.
	ErrSeatConflict = errors.New("seat conflict")
	// ErrHoldExpired is returned when a hold's lease ran out before commit.
	// The caller has to place a new hold.
	ErrHoldExpired = errors.New("hold expired")
	// ErrHoldNotActive is returned when committing a hold that was already
	// committed or released.
	ErrHoldNotActive = errors.New("hold is not active")
	// ErrBookingCancelled is returned when confirming payment for a booking
	// that has been cancelled.
	ErrBookingCancelled = errors.New("booking cancelled")
	// ErrForbidden is returned when the caller does not own the hold or
	// booking.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidRequest is returned for malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStorage wraps failures of the underlying store.  Foreground
	// operations surface it; the sweeper logs it and retries next tick.
	ErrStorage = errors.New("storage failure")
	// ErrInconsistent is returned when the seat inventory disagrees with the
	// hold ledger at commit time.  It is never retried.
	ErrInconsistent = errors.New("inventory inconsistent with hold ledger")
)

// SeatConflictError lists the requested seats that were not in the expected
// status.  SeatIDs is sorted ascending.
type SeatConflictError struct {
	SeatIDs []uint64
}

// NewSeatConflict builds a SeatConflictError from the offending seats.
func NewSeatConflict(seatIDs []uint64) *SeatConflictError {
	ids := append([]uint64(nil), seatIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &SeatConflictError{SeatIDs: ids}
}

func (e *SeatConflictError) Error() string {
	parts := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("seat conflict: %s", strings.Join(parts, ","))
}

// Is lets errors.Is(err, ErrSeatConflict) match.
func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// storageErr wraps err as ErrStorage unless it already carries one of the
// package's sentinels.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrSeatConflict, ErrStorage, ErrInconsistent} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
