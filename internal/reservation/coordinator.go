// Package reservation implements the seat-hold lifecycle: seats of a
// showtime are claimed by a time-bounded hold, committed into a booking or
// released back to the pool on release, expiry, cancellation or failed
// payment.  Every state change runs inside a showtime-scoped unit of work
// obtained from a Store, so two callers racing for the same seat always
// produce one winner and one SeatConflictError.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// Options tunes a Coordinator.  Zero values fall back to the defaults
// documented on each field.
type Options struct {
	DefaultTTL time.Duration    // lease used when a request carries none (5m)
	MaxTTL     time.Duration    // upper bound on a requested lease (15m)
	MaxSeats   int              // seats per hold, 0 means unlimited
	Now        func() time.Time // clock, time.Now by default
	NewHoldID  func() string    // hold token generator, uuid.NewString by default
	Events     EventSink        // lifecycle notifications, discarded by default
}

// HoldRequest asks for an exclusive lease on seats of a showtime.
type HoldRequest struct {
	ShowtimeID uint64
	SeatIDs    []uint64
	Owner      uint64
	TTL        time.Duration
}

// ConfirmRequest converts an active hold into a booking.  SeatIDs may name
// a subset of the hold's seats; the rest are released.  An empty SeatIDs
// books every held seat.  A non-empty PaymentRef marks the booking paid.
type ConfirmRequest struct {
	HoldID     string
	ShowtimeID uint64
	Owner      uint64
	SeatIDs    []uint64
	PaymentRef string
}

// Coordinator is the only component allowed to move seats between
// statuses.
type Coordinator struct {
	store Store
	opts  Options
}

// NewCoordinator returns a Coordinator backed by store.
func NewCoordinator(store Store, opts Options) *Coordinator {
	if store == nil {
		panic("nil store passed to NewCoordinator")
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = 15 * time.Minute
	}
	if opts.MaxTTL < opts.DefaultTTL {
		opts.MaxTTL = opts.DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewHoldID == nil {
		opts.NewHoldID = uuid.NewString
	}
	if opts.Events == nil {
		opts.Events = noopSink{}
	}
	return &Coordinator{store: store, opts: opts}
}

// DefaultTTL is the lease given to holds that do not ask for one.
func (c *Coordinator) DefaultTTL() time.Duration { return c.opts.DefaultTTL }

func (c *Coordinator) now() time.Time { return c.opts.Now().UTC() }

// Showtime returns the showtime header.
func (c *Coordinator) Showtime(ctx context.Context, showtimeID uint64) (model.Showtime, error) {
	s, err := c.store.Showtime(ctx, showtimeID)
	return s, storageErr("load showtime", err)
}

// Seats returns the current seat map of a showtime.  When the map shows
// held seats, lapsed holds of the showtime are reclaimed first so their
// seats read available without waiting for the sweeper.
func (c *Coordinator) Seats(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	seats, err := c.store.ListSeats(ctx, showtimeID)
	if err != nil {
		return nil, storageErr("list seats", err)
	}
	if !anyHeld(seats) {
		return seats, nil
	}
	now := c.now()
	lapsed, err := c.store.ExpiredHoldsByShow(ctx, showtimeID, now)
	if err != nil {
		return nil, storageErr("list expired holds", err)
	}
	if len(lapsed) == 0 {
		return seats, nil
	}
	var reclaimed []model.Hold
	err = c.unit(ctx, showtimeID, func(tx Tx) error {
		r, err := c.reclaimLapsed(ctx, tx, now)
		reclaimed = r
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, h := range reclaimed {
		c.opts.Events.HoldExpired(ctx, h)
	}
	seats, err = c.store.ListSeats(ctx, showtimeID)
	if err != nil {
		return nil, storageErr("list seats", err)
	}
	return seats, nil
}

func anyHeld(seats []model.Seat) bool {
	for _, s := range seats {
		if s.Status == model.SeatHeld {
			return true
		}
	}
	return false
}

// Hold places an exclusive lease on req.SeatIDs.  Lapsed holds of the same
// showtime are reclaimed first so their seats can be taken right away.  If
// any requested seat is unknown or not available, nothing is held and a
// *SeatConflictError names those seats.
func (c *Coordinator) Hold(ctx context.Context, req HoldRequest) (model.Hold, error) {
	seatIDs := uniqueSeatIDs(req.SeatIDs)
	if len(seatIDs) == 0 {
		return model.Hold{}, fmt.Errorf("%w: seat_ids is required", ErrInvalidRequest)
	}
	if c.opts.MaxSeats > 0 && len(seatIDs) > c.opts.MaxSeats {
		return model.Hold{}, fmt.Errorf("%w: at most %d seats per hold", ErrInvalidRequest, c.opts.MaxSeats)
	}
	if req.Owner == 0 {
		return model.Hold{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	if ttl > c.opts.MaxTTL {
		ttl = c.opts.MaxTTL
	}
	now := c.now()
	hold := model.Hold{
		ID:         c.opts.NewHoldID(),
		ShowtimeID: req.ShowtimeID,
		SeatIDs:    seatIDs,
		Owner:      req.Owner,
		State:      model.HoldActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	var reclaimed []model.Hold
	err := c.unit(ctx, req.ShowtimeID, func(tx Tx) error {
		lapsed, err := c.reclaimLapsed(ctx, tx, now)
		if err != nil {
			return err
		}
		reclaimed = lapsed
		if err := tx.Transition(ctx, seatIDs, model.SeatAvailable, model.SeatHeld); err != nil {
			return storageErr("hold seats", err)
		}
		return storageErr("create hold", tx.CreateHold(ctx, hold))
	})
	if err != nil {
		return model.Hold{}, err
	}
	for _, h := range reclaimed {
		c.opts.Events.HoldExpired(ctx, h)
	}
	return hold, nil
}

// Release gives the seats of an active hold back to the pool.  Releasing a
// hold that already reached a terminal state succeeds without effect.  A
// non-zero showtimeID must match the hold's showtime, otherwise the hold
// is reported as not found.
func (c *Coordinator) Release(ctx context.Context, showtimeID uint64, holdID string, owner uint64) error {
	h, err := c.ownedHold(ctx, holdID, owner)
	if err != nil {
		return err
	}
	if showtimeID != 0 && h.ShowtimeID != showtimeID {
		return ErrNotFound
	}
	if h.State.Terminal() {
		return nil
	}
	now := c.now()
	var expired *model.Hold
	err = c.unit(ctx, h.ShowtimeID, func(tx Tx) error {
		cur, err := tx.GetHold(ctx, holdID)
		if err != nil {
			return storageErr("load hold", err)
		}
		if cur.State.Terminal() {
			return nil
		}
		if cur.Lapsed(now) {
			if err := c.expireInTx(ctx, tx, cur); err != nil {
				return err
			}
			cur.State = model.HoldExpired
			expired = &cur
			return nil
		}
		if err := c.freeHeldSeats(ctx, tx, cur.SeatIDs); err != nil {
			return err
		}
		_, err = tx.MarkReleased(ctx, holdID)
		return storageErr("mark released", err)
	})
	if err != nil {
		return err
	}
	if expired != nil {
		c.opts.Events.HoldExpired(ctx, *expired)
	}
	return nil
}

// HoldStatus returns the hold as of now.  An active hold past its deadline
// is expired on the spot, so callers never observe a lapsed active hold.
func (c *Coordinator) HoldStatus(ctx context.Context, holdID string, owner uint64) (model.Hold, error) {
	h, err := c.ownedHold(ctx, holdID, owner)
	if err != nil {
		return model.Hold{}, err
	}
	if !h.Lapsed(c.now()) {
		return h, nil
	}
	if _, err := c.ExpireHold(ctx, holdID); err != nil {
		return model.Hold{}, err
	}
	h, err = c.store.FindHold(ctx, holdID)
	return h, storageErr("load hold", err)
}

// ExpireHold reclaims the seats of holdID if its lease ran out.  It reports
// whether this call expired the hold; a hold that was committed, released
// or renewed in the meantime is left untouched.
func (c *Coordinator) ExpireHold(ctx context.Context, holdID string) (bool, error) {
	h, err := c.store.FindHold(ctx, holdID)
	if err != nil {
		return false, storageErr("load hold", err)
	}
	now := c.now()
	if !h.Lapsed(now) {
		return false, nil
	}
	expired := false
	err = c.unit(ctx, h.ShowtimeID, func(tx Tx) error {
		cur, err := tx.GetHold(ctx, holdID)
		if err != nil {
			return storageErr("load hold", err)
		}
		if !cur.Lapsed(now) {
			return nil
		}
		if err := c.expireInTx(ctx, tx, cur); err != nil {
			return err
		}
		h = cur
		h.State = model.HoldExpired
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		c.opts.Events.HoldExpired(ctx, h)
	}
	return expired, nil
}

// ConfirmBooking commits an active hold into a booking.  The deadline is
// checked again inside the unit of work: a hold that lapsed even a moment
// earlier is expired and ErrHoldExpired returned.
func (c *Coordinator) ConfirmBooking(ctx context.Context, req ConfirmRequest) (model.Booking, error) {
	h, err := c.ownedHold(ctx, req.HoldID, req.Owner)
	if err != nil {
		return model.Booking{}, err
	}
	if req.ShowtimeID != 0 && req.ShowtimeID != h.ShowtimeID {
		return model.Booking{}, fmt.Errorf("%w: hold belongs to another showtime", ErrInvalidRequest)
	}
	now := c.now()
	var (
		booking model.Booking
		lapsed  *model.Hold
	)
	err = c.unit(ctx, h.ShowtimeID, func(tx Tx) error {
		cur, err := tx.GetHold(ctx, req.HoldID)
		if err != nil {
			return storageErr("load hold", err)
		}
		switch {
		case cur.State == model.HoldExpired:
			return ErrHoldExpired
		case cur.State.Terminal():
			return ErrHoldNotActive
		case cur.Lapsed(now):
			if err := c.expireInTx(ctx, tx, cur); err != nil {
				return err
			}
			cur.State = model.HoldExpired
			lapsed = &cur
			return nil
		}

		wanted := cur.SeatIDs
		var leftover []uint64
		if len(req.SeatIDs) > 0 {
			wanted = uniqueSeatIDs(req.SeatIDs)
			if outside := difference(wanted, cur.SeatIDs); len(outside) > 0 {
				return NewSeatConflict(outside)
			}
			leftover = difference(cur.SeatIDs, wanted)
		}
		if len(leftover) > 0 {
			if err := tx.Transition(ctx, leftover, model.SeatHeld, model.SeatAvailable); err != nil {
				return inconsistent("release unbooked seats", err)
			}
		}
		seats, err := tx.SeatsByID(ctx, wanted)
		if err != nil {
			return storageErr("load seats", err)
		}
		var total uint32
		for _, s := range seats {
			total += s.PriceCents
		}
		if err := tx.Transition(ctx, wanted, model.SeatHeld, model.SeatBooked); err != nil {
			return inconsistent("book seats", err)
		}
		booking = model.Booking{
			ShowtimeID:       cur.ShowtimeID,
			HoldID:           cur.ID,
			SeatIDs:          wanted,
			Owner:            cur.Owner,
			TotalAmountCents: total,
			PaymentStatus:    model.PaymentPending,
		}
		if req.PaymentRef != "" {
			ref := req.PaymentRef
			booking.PaymentRef = &ref
			booking.PaymentStatus = model.PaymentPaid
		}
		if err := tx.CreateBooking(ctx, &booking); err != nil {
			return storageErr("create booking", err)
		}
		_, err = tx.MarkCommitted(ctx, cur.ID)
		return storageErr("mark committed", err)
	})
	if err != nil {
		return model.Booking{}, err
	}
	if lapsed != nil {
		c.opts.Events.HoldExpired(ctx, *lapsed)
		return model.Booking{}, ErrHoldExpired
	}
	c.opts.Events.BookingConfirmed(ctx, booking)
	return booking, nil
}

// CancelBooking returns a booking's seats to the pool and marks it
// cancelled.  Cancelling an already cancelled booking succeeds without
// effect.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, owner uint64) error {
	b, err := c.Booking(ctx, bookingID, owner)
	if err != nil {
		return err
	}
	if b.PaymentStatus == model.PaymentCancelled {
		return nil
	}
	cancelled := false
	err = c.unit(ctx, b.ShowtimeID, func(tx Tx) error {
		cur, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return storageErr("load booking", err)
		}
		if cur.PaymentStatus == model.PaymentCancelled {
			return nil
		}
		if err := tx.Transition(ctx, cur.SeatIDs, model.SeatBooked, model.SeatAvailable); err != nil {
			return inconsistent("free booked seats", err)
		}
		if err := tx.UpdatePaymentStatus(ctx, bookingID, model.PaymentCancelled, cur.PaymentRef); err != nil {
			return storageErr("cancel booking", err)
		}
		b = cur
		b.PaymentStatus = model.PaymentCancelled
		cancelled = true
		return nil
	})
	if err != nil {
		return err
	}
	if cancelled {
		c.opts.Events.BookingCancelled(ctx, b)
	}
	return nil
}

// ConfirmPayment applies the payment gateway's verdict to a booking.  A
// successful payment marks a pending booking paid; a failed one cancels the
// booking and frees its seats.  Either verdict on a cancelled booking
// returns ErrBookingCancelled.
func (c *Coordinator) ConfirmPayment(ctx context.Context, bookingID, owner uint64, success bool, paymentRef string) (model.Booking, error) {
	b, err := c.Booking(ctx, bookingID, owner)
	if err != nil {
		return model.Booking{}, err
	}
	if !success {
		if b.PaymentStatus == model.PaymentCancelled {
			return model.Booking{}, ErrBookingCancelled
		}
		if err := c.CancelBooking(ctx, bookingID, owner); err != nil {
			return model.Booking{}, err
		}
		b, err = c.store.FindBooking(ctx, bookingID)
		return b, storageErr("load booking", err)
	}
	err = c.unit(ctx, b.ShowtimeID, func(tx Tx) error {
		cur, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return storageErr("load booking", err)
		}
		switch cur.PaymentStatus {
		case model.PaymentCancelled:
			return ErrBookingCancelled
		case model.PaymentPaid:
			b = cur
			return nil
		}
		ref := cur.PaymentRef
		if paymentRef != "" {
			ref = &paymentRef
		}
		if err := tx.UpdatePaymentStatus(ctx, bookingID, model.PaymentPaid, ref); err != nil {
			return storageErr("mark paid", err)
		}
		b, err = tx.GetBooking(ctx, bookingID)
		return storageErr("load booking", err)
	})
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// Booking returns a booking owned by owner.
func (c *Coordinator) Booking(ctx context.Context, bookingID, owner uint64) (model.Booking, error) {
	b, err := c.store.FindBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, storageErr("load booking", err)
	}
	if b.Owner != owner {
		return model.Booking{}, ErrForbidden
	}
	return b, nil
}

// BookingsByOwner lists a user's bookings, newest first.
func (c *Coordinator) BookingsByOwner(ctx context.Context, owner uint64) ([]model.Booking, error) {
	out, err := c.store.BookingsByOwner(ctx, owner)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return out, nil
}

// unit runs fn inside a unit of work on showtimeID and commits when fn
// returns nil.
func (c *Coordinator) unit(ctx context.Context, showtimeID uint64, fn func(tx Tx) error) error {
	tx, err := c.store.Begin(ctx, showtimeID)
	if err != nil {
		return storageErr("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	committed = true
	return nil
}

func (c *Coordinator) ownedHold(ctx context.Context, holdID string, owner uint64) (model.Hold, error) {
	if holdID == "" {
		return model.Hold{}, fmt.Errorf("%w: hold_id is required", ErrInvalidRequest)
	}
	h, err := c.store.FindHold(ctx, holdID)
	if err != nil {
		return model.Hold{}, storageErr("load hold", err)
	}
	if h.Owner != owner {
		return model.Hold{}, ErrForbidden
	}
	return h, nil
}

// reclaimLapsed expires every lapsed hold of the unit's showtime.
func (c *Coordinator) reclaimLapsed(ctx context.Context, tx Tx, now time.Time) ([]model.Hold, error) {
	lapsed, err := tx.ExpiredHolds(ctx, now)
	if err != nil {
		return nil, storageErr("list expired holds", err)
	}
	out := make([]model.Hold, 0, len(lapsed))
	for _, h := range lapsed {
		if err := c.expireInTx(ctx, tx, h); err != nil {
			return nil, err
		}
		h.State = model.HoldExpired
		out = append(out, h)
	}
	return out, nil
}

func (c *Coordinator) expireInTx(ctx context.Context, tx Tx, h model.Hold) error {
	if err := c.freeHeldSeats(ctx, tx, h.SeatIDs); err != nil {
		return err
	}
	_, err := tx.MarkExpired(ctx, h.ID)
	return storageErr("mark expired", err)
}

// freeHeldSeats moves seatIDs from held to available.  Seats that already
// left the held status were resolved by another path and are skipped, so
// one stray seat cannot pin the rest of a hold.
func (c *Coordinator) freeHeldSeats(ctx context.Context, tx Tx, seatIDs []uint64) error {
	err := tx.Transition(ctx, seatIDs, model.SeatHeld, model.SeatAvailable)
	var conflict *SeatConflictError
	if !errors.As(err, &conflict) {
		return storageErr("free seats", err)
	}
	rest := difference(seatIDs, conflict.SeatIDs)
	if len(rest) == 0 {
		return nil
	}
	return storageErr("free seats", tx.Transition(ctx, rest, model.SeatHeld, model.SeatAvailable))
}

func inconsistent(op string, err error) error {
	if errors.Is(err, ErrSeatConflict) {
		return fmt.Errorf("%w: %s: %w", ErrInconsistent, op, err)
	}
	return storageErr(op, err)
}

// uniqueSeatIDs drops zero ids and duplicates and sorts the rest.
func uniqueSeatIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// difference returns the ids of a that are not in b, keeping a's order.
func difference(a, b []uint64) []uint64 {
	skip := make(map[uint64]struct{}, len(b))
	for _, id := range b {
		skip[id] = struct{}{}
	}
	var out []uint64
	for _, id := range a {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
