package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

// MemoryStore is an in-process reservation.Store.  Each showtime has its
// own lock, taken for the lifetime of a unit of work, and a seat snapshot
// that is swapped atomically on commit so ListSeats never waits.
type MemoryStore struct {
	mu          sync.RWMutex
	shows       map[uint64]*memShow
	holdShow    map[string]uint64
	bookingShow map[uint64]uint64
	nextBooking uint64
	now         func() time.Time
}

type memShow struct {
	sem      chan struct{}
	info     model.Showtime
	seats    map[uint64]*model.Seat
	order    []uint64
	holds    map[string]*model.Hold
	bookings map[uint64]*model.Booking
	snapshot atomic.Pointer[[]model.Seat]
}

var _ reservation.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.  Showtimes are added with
// AddShowtime.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shows:       make(map[uint64]*memShow),
		holdShow:    make(map[string]uint64),
		bookingShow: make(map[uint64]uint64),
		now:         time.Now,
	}
}

// SetClock replaces the clock used for booking timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// AddShowtime registers a showtime and its seats.  Seats with an empty
// status start available.
func (s *MemoryStore) AddShowtime(show model.Showtime, seats []model.Seat) error {
	if show.ID == 0 {
		return fmt.Errorf("showtime id is required")
	}
	ms := &memShow{
		sem:      make(chan struct{}, 1),
		info:     show,
		seats:    make(map[uint64]*model.Seat, len(seats)),
		holds:    make(map[string]*model.Hold),
		bookings: make(map[uint64]*model.Booking),
	}
	for _, seat := range seats {
		if _, dup := ms.seats[seat.SeatID]; dup {
			return fmt.Errorf("duplicate seat %d", seat.SeatID)
		}
		seat.ShowtimeID = show.ID
		if seat.Status == "" {
			seat.Status = model.SeatAvailable
		}
		cp := seat
		ms.seats[seat.SeatID] = &cp
		ms.order = append(ms.order, seat.SeatID)
	}
	sort.Slice(ms.order, func(i, j int) bool {
		a, b := ms.seats[ms.order[i]], ms.seats[ms.order[j]]
		if len(a.Row) != len(b.Row) {
			return len(a.Row) < len(b.Row)
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Column < b.Column
	})
	ms.publish()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shows[show.ID]; exists {
		return fmt.Errorf("showtime %d already exists", show.ID)
	}
	s.shows[show.ID] = ms
	return nil
}

func (ms *memShow) publish() {
	snap := make([]model.Seat, 0, len(ms.order))
	for _, id := range ms.order {
		snap = append(snap, *ms.seats[id])
	}
	ms.snapshot.Store(&snap)
}

func (ms *memShow) acquire(ctx context.Context) error {
	select {
	case ms.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ms *memShow) release() { <-ms.sem }

func (s *MemoryStore) show(id uint64) (*memShow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.shows[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return ms, nil
}

// Begin locks showtimeID until the returned unit commits or rolls back.
func (s *MemoryStore) Begin(ctx context.Context, showtimeID uint64) (reservation.Tx, error) {
	ms, err := s.show(showtimeID)
	if err != nil {
		return nil, err
	}
	if err := ms.acquire(ctx); err != nil {
		return nil, err
	}
	return &memTx{store: s, show: ms}, nil
}

func (s *MemoryStore) Showtime(_ context.Context, showtimeID uint64) (model.Showtime, error) {
	ms, err := s.show(showtimeID)
	if err != nil {
		return model.Showtime{}, err
	}
	return ms.info, nil
}

func (s *MemoryStore) ListSeats(_ context.Context, showtimeID uint64) ([]model.Seat, error) {
	ms, err := s.show(showtimeID)
	if err != nil {
		return nil, err
	}
	snap := *ms.snapshot.Load()
	return append([]model.Seat(nil), snap...), nil
}

func (s *MemoryStore) FindHold(ctx context.Context, holdID string) (model.Hold, error) {
	s.mu.RLock()
	showID, ok := s.holdShow[holdID]
	ms := s.shows[showID]
	s.mu.RUnlock()
	if !ok || ms == nil {
		return model.Hold{}, reservation.ErrNotFound
	}
	if err := ms.acquire(ctx); err != nil {
		return model.Hold{}, err
	}
	defer ms.release()
	h, ok := ms.holds[holdID]
	if !ok {
		return model.Hold{}, reservation.ErrNotFound
	}
	return copyHold(h), nil
}

func (s *MemoryStore) FindBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	s.mu.RLock()
	showID, ok := s.bookingShow[bookingID]
	ms := s.shows[showID]
	s.mu.RUnlock()
	if !ok || ms == nil {
		return model.Booking{}, reservation.ErrNotFound
	}
	if err := ms.acquire(ctx); err != nil {
		return model.Booking{}, err
	}
	defer ms.release()
	b, ok := ms.bookings[bookingID]
	if !ok {
		return model.Booking{}, reservation.ErrNotFound
	}
	return copyBooking(b), nil
}

func (s *MemoryStore) BookingsByOwner(ctx context.Context, owner uint64) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, ms := range s.allShows() {
		if err := ms.acquire(ctx); err != nil {
			return nil, err
		}
		for _, b := range ms.bookings {
			if b.Owner == owner {
				out = append(out, copyBooking(b))
			}
		}
		ms.release()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	var out []model.Hold
	for _, ms := range s.allShows() {
		if err := ms.acquire(ctx); err != nil {
			return nil, err
		}
		out = append(out, ms.lapsed(now)...)
		ms.release()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ExpiredHoldsByShow(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Hold, error) {
	ms, err := s.show(showtimeID)
	if err != nil {
		return nil, err
	}
	if err := ms.acquire(ctx); err != nil {
		return nil, err
	}
	defer ms.release()
	return ms.lapsed(now), nil
}

func (s *MemoryStore) allShows() []*memShow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.shows))
	for id := range s.shows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*memShow, len(ids))
	for i, id := range ids {
		out[i] = s.shows[id]
	}
	return out
}

func (ms *memShow) lapsed(now time.Time) []model.Hold {
	var out []model.Hold
	for _, h := range ms.holds {
		if h.Lapsed(now) {
			out = append(out, copyHold(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// memTx writes straight into the showtime's maps and records an undo
// step for every change.
type memTx struct {
	store      *MemoryStore
	show       *memShow
	undo       []func()
	seatsDirty bool
	done       bool
}

func (t *memTx) SeatsByID(_ context.Context, seatIDs []uint64) ([]model.Seat, error) {
	out := make([]model.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		if seat, ok := t.show.seats[id]; ok {
			out = append(out, *seat)
		}
	}
	return out, nil
}

func (t *memTx) Transition(_ context.Context, seatIDs []uint64, from, to model.SeatStatus) error {
	var offenders []uint64
	for _, id := range seatIDs {
		seat, ok := t.show.seats[id]
		if !ok || seat.Status != from {
			offenders = append(offenders, id)
		}
	}
	if len(offenders) > 0 {
		return reservation.NewSeatConflict(offenders)
	}
	for _, id := range seatIDs {
		seat := t.show.seats[id]
		prev := seat.Status
		seat.Status = to
		t.undo = append(t.undo, func() { seat.Status = prev })
	}
	if len(seatIDs) > 0 {
		t.seatsDirty = true
	}
	return nil
}

func (t *memTx) CreateHold(_ context.Context, h model.Hold) error {
	if h.ShowtimeID != t.show.info.ID {
		return fmt.Errorf("hold %s belongs to showtime %d", h.ID, h.ShowtimeID)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, dup := t.store.holdShow[h.ID]; dup {
		return fmt.Errorf("duplicate hold id %s", h.ID)
	}
	cp := copyHold(&h)
	t.show.holds[h.ID] = &cp
	t.store.holdShow[h.ID] = h.ShowtimeID
	t.undo = append(t.undo, func() {
		delete(t.show.holds, h.ID)
		t.store.mu.Lock()
		delete(t.store.holdShow, h.ID)
		t.store.mu.Unlock()
	})
	return nil
}

func (t *memTx) GetHold(_ context.Context, holdID string) (model.Hold, error) {
	h, ok := t.show.holds[holdID]
	if !ok {
		return model.Hold{}, reservation.ErrNotFound
	}
	return copyHold(h), nil
}

func (t *memTx) mark(holdID string, to model.HoldState) (model.HoldState, error) {
	h, ok := t.show.holds[holdID]
	if !ok {
		return "", reservation.ErrNotFound
	}
	if h.State.Terminal() {
		return h.State, nil
	}
	prev := h.State
	h.State = to
	t.undo = append(t.undo, func() { h.State = prev })
	return to, nil
}

func (t *memTx) MarkCommitted(_ context.Context, holdID string) (model.HoldState, error) {
	return t.mark(holdID, model.HoldCommitted)
}

func (t *memTx) MarkReleased(_ context.Context, holdID string) (model.HoldState, error) {
	return t.mark(holdID, model.HoldReleased)
}

func (t *memTx) MarkExpired(_ context.Context, holdID string) (model.HoldState, error) {
	return t.mark(holdID, model.HoldExpired)
}

func (t *memTx) ExpiredHolds(_ context.Context, now time.Time) ([]model.Hold, error) {
	return t.show.lapsed(now), nil
}

func (t *memTx) CreateBooking(_ context.Context, b *model.Booking) error {
	t.store.mu.Lock()
	t.store.nextBooking++
	id := t.store.nextBooking
	now := t.store.now().UTC()
	t.store.bookingShow[id] = t.show.info.ID
	t.store.mu.Unlock()

	b.ID = id
	b.ShowtimeID = t.show.info.ID
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := copyBooking(b)
	t.show.bookings[id] = &cp
	t.undo = append(t.undo, func() {
		delete(t.show.bookings, id)
		t.store.mu.Lock()
		delete(t.store.bookingShow, id)
		t.store.mu.Unlock()
	})
	return nil
}

func (t *memTx) GetBooking(_ context.Context, bookingID uint64) (model.Booking, error) {
	b, ok := t.show.bookings[bookingID]
	if !ok {
		return model.Booking{}, reservation.ErrNotFound
	}
	return copyBooking(b), nil
}

func (t *memTx) UpdatePaymentStatus(_ context.Context, bookingID uint64, status model.PaymentStatus, paymentRef *string) error {
	b, ok := t.show.bookings[bookingID]
	if !ok {
		return reservation.ErrNotFound
	}
	prev := *b
	b.PaymentStatus = status
	if paymentRef != nil {
		ref := *paymentRef
		b.PaymentRef = &ref
	} else {
		b.PaymentRef = nil
	}
	t.store.mu.RLock()
	b.UpdatedAt = t.store.now().UTC()
	t.store.mu.RUnlock()
	t.undo = append(t.undo, func() { *b = prev })
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return fmt.Errorf("unit of work already finished")
	}
	t.done = true
	if t.seatsDirty {
		t.show.publish()
	}
	t.undo = nil
	t.show.release()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.show.release()
	return nil
}

func copyHold(h *model.Hold) model.Hold {
	cp := *h
	cp.SeatIDs = append([]uint64(nil), h.SeatIDs...)
	return cp
}

func copyBooking(b *model.Booking) model.Booking {
	cp := *b
	cp.SeatIDs = append([]uint64(nil), b.SeatIDs...)
	if b.PaymentRef != nil {
		ref := *b.PaymentRef
		cp.PaymentRef = &ref
	}
	return cp
}
