package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

// MySQLStore implements reservation.Store on top of the MySQL
// repositories.  A unit of work is a database transaction that starts by
// locking the show row.
type MySQLStore struct {
	db       *sql.DB
	shows    *ShowRepo
	seats    *ShowSeatRepo
	holds    *SeatHoldRepo
	bookings *BookingRepo
}

var _ reservation.Store = (*MySQLStore)(nil)

// NewMySQLStore wires the repositories around db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:       db,
		shows:    NewShowRepo(db),
		seats:    NewShowSeatRepo(db),
		holds:    NewSeatHoldRepo(db),
		bookings: NewBookingRepo(db),
	}
}

// Begin opens a transaction and locks showtimeID's row.
func (s *MySQLStore) Begin(ctx context.Context, showtimeID uint64) (reservation.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	if err := s.shows.LockTx(ctx, tx, showtimeID); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &mysqlTx{tx: tx, showID: showtimeID, store: s}, nil
}

func (s *MySQLStore) Showtime(ctx context.Context, showtimeID uint64) (model.Showtime, error) {
	return s.shows.GetByID(ctx, showtimeID)
}

func (s *MySQLStore) ListSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	seats, err := s.seats.ListByShow(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		// Tell an unknown show apart from one without seats.
		if _, err := s.shows.GetByID(ctx, showtimeID); err != nil {
			return nil, err
		}
	}
	return seats, nil
}

func (s *MySQLStore) FindHold(ctx context.Context, holdID string) (model.Hold, error) {
	return s.holds.Get(ctx, holdID)
}

func (s *MySQLStore) FindBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	return s.bookings.Get(ctx, bookingID)
}

func (s *MySQLStore) BookingsByOwner(ctx context.Context, owner uint64) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, owner)
}

func (s *MySQLStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	return s.holds.ListExpired(ctx, now, limit)
}

func (s *MySQLStore) ExpiredHoldsByShow(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Hold, error) {
	return s.holds.ListExpiredByShow(ctx, showtimeID, now)
}

// mysqlTx binds the repositories' ...Tx methods to one transaction and
// one show.
type mysqlTx struct {
	tx     *sql.Tx
	showID uint64
	store  *MySQLStore
}

func (t *mysqlTx) SeatsByID(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	return t.store.seats.SeatsByIDTx(ctx, t.tx, t.showID, seatIDs)
}

func (t *mysqlTx) Transition(ctx context.Context, seatIDs []uint64, from, to model.SeatStatus) error {
	return t.store.seats.TransitionTx(ctx, t.tx, t.showID, seatIDs, from, to)
}

func (t *mysqlTx) CreateHold(ctx context.Context, h model.Hold) error {
	return t.store.holds.CreateTx(ctx, t.tx, h)
}

func (t *mysqlTx) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	h, err := t.store.holds.GetTx(ctx, t.tx, holdID)
	if err != nil {
		return model.Hold{}, err
	}
	if h.ShowtimeID != t.showID {
		return model.Hold{}, reservation.ErrNotFound
	}
	return h, nil
}

func (t *mysqlTx) MarkCommitted(ctx context.Context, holdID string) (model.HoldState, error) {
	return t.store.holds.SetStateTx(ctx, t.tx, holdID, model.HoldCommitted)
}

func (t *mysqlTx) MarkReleased(ctx context.Context, holdID string) (model.HoldState, error) {
	return t.store.holds.SetStateTx(ctx, t.tx, holdID, model.HoldReleased)
}

func (t *mysqlTx) MarkExpired(ctx context.Context, holdID string) (model.HoldState, error) {
	return t.store.holds.SetStateTx(ctx, t.tx, holdID, model.HoldExpired)
}

func (t *mysqlTx) ExpiredHolds(ctx context.Context, now time.Time) ([]model.Hold, error) {
	return t.store.holds.ExpiredByShowTx(ctx, t.tx, t.showID, now)
}

func (t *mysqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	return t.store.bookings.CreateTx(ctx, t.tx, b)
}

func (t *mysqlTx) GetBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	b, err := t.store.bookings.GetTx(ctx, t.tx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.ShowtimeID != t.showID {
		return model.Booking{}, reservation.ErrNotFound
	}
	return b, nil
}

func (t *mysqlTx) UpdatePaymentStatus(ctx context.Context, bookingID uint64, status model.PaymentStatus, paymentRef *string) error {
	return t.store.bookings.UpdatePaymentStatusTx(ctx, t.tx, bookingID, status, paymentRef)
}

func (t *mysqlTx) Commit() error   { return t.tx.Commit() }
func (t *mysqlTx) Rollback() error { return t.tx.Rollback() }
