package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestTransitionTxConflictWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowSeatRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_id, status FROM show_seats")).
		WithArgs(7, 1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"seat_id", "status"}).
			AddRow(1, "available").
			AddRow(2, "held"))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.TransitionTx(ctx, tx, 7, []uint64{1, 2, 3}, model.SeatAvailable, model.SeatHeld)
	var conflict *reservation.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []uint64{2, 3}, conflict.SeatIDs)
	require.NoError(t, tx.Rollback())
}

func TestTransitionTxUpdatesAllSeats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowSeatRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_id, status FROM show_seats")).
		WithArgs(7, 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"seat_id", "status"}).
			AddRow(1, "held").
			AddRow(2, "held"))
	mock.ExpectExec(q("UPDATE show_seats SET status = ?, version = version + 1")).
		WithArgs("booked", 7, "held", 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.TransitionTx(ctx, tx, 7, []uint64{1, 2}, model.SeatHeld, model.SeatBooked))
	require.NoError(t, tx.Commit())
}

func TestTransitionTxShortUpdateIsInconsistent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowSeatRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_id, status FROM show_seats")).
		WillReturnRows(sqlmock.NewRows([]string{"seat_id", "status"}).AddRow(4, "available"))
	mock.ExpectExec(q("UPDATE show_seats")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.TransitionTx(context.Background(), tx, 7, []uint64{4}, model.SeatAvailable, model.SeatHeld)
	assert.ErrorIs(t, err, reservation.ErrInconsistent)
	require.NoError(t, tx.Rollback())
}

func TestSetStateTxOnTerminalHold(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSeatHoldRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE seat_holds SET state = ? WHERE hold_token = ? AND state = 'active'")).
		WithArgs("expired", "h1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT state FROM seat_holds WHERE hold_token = ?")).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("committed"))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	state, err := repo.SetStateTx(context.Background(), tx, "h1", model.HoldExpired)
	require.NoError(t, err)
	assert.Equal(t, model.HoldCommitted, state)
	require.NoError(t, tx.Commit())
}

func TestSeatHoldGetLoadsSeats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSeatHoldRepo(db)
	created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("FROM seat_holds WHERE hold_token = ?")).
		WithArgs("h9").
		WillReturnRows(sqlmock.NewRows([]string{"hold_token", "show_id", "user_id", "state", "created_at", "expires_at"}).
			AddRow("h9", 3, 11, "active", created, created.Add(5*time.Minute)))
	mock.ExpectQuery(q("SELECT hold_token, seat_id FROM seat_hold_seats")).
		WithArgs("h9").
		WillReturnRows(sqlmock.NewRows([]string{"hold_token", "seat_id"}).AddRow("h9", 4).AddRow("h9", 6))

	h, err := repo.Get(context.Background(), "h9")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.ShowtimeID)
	assert.Equal(t, uint64(11), h.Owner)
	assert.Equal(t, model.HoldActive, h.State)
	assert.Equal(t, []uint64{4, 6}, h.SeatIDs)
	assert.Equal(t, created.Add(5*time.Minute), h.ExpiresAt)
}

func TestSeatHoldGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM seat_holds")).WillReturnError(sql.ErrNoRows)

	_, err := NewSeatHoldRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestBookingUpdatePaymentStatusMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)
	ref := "pay_1"

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE bookings SET payment_status = ?, payment_ref = ? WHERE id = ?")).
		WithArgs("paid", ref, 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT id FROM bookings WHERE id = ?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.UpdatePaymentStatusTx(context.Background(), tx, 5, model.PaymentPaid, &ref)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
	require.NoError(t, tx.Rollback())
}

func TestMySQLStoreBeginLocksShow(t *testing.T) {
	db, mock := newMock(t)
	store := NewMySQLStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM shows WHERE id = ? FOR UPDATE")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectRollback()

	tx, err := store.Begin(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}

func TestMySQLStoreBeginUnknownShow(t *testing.T) {
	db, mock := newMock(t)
	store := NewMySQLStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM shows WHERE id = ? FOR UPDATE")).
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.Begin(context.Background(), 404)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestListSeatsOrdersByPosition(t *testing.T) {
	db, mock := newMock(t)
	store := NewMySQLStore(db)

	mock.ExpectQuery(q("FROM show_seats ss JOIN seats se ON se.id = ss.seat_id WHERE ss.show_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"show_id", "seat_id", "row_label", "seat_number", "status", "price_cents"}).
			AddRow(1, 10, "A", 1, "available", 1200).
			AddRow(1, 11, "A", 2, "booked", 1200))

	seats, err := store.ListSeats(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, model.Seat{ShowtimeID: 1, SeatID: 11, Row: "A", Column: 2, Status: model.SeatBooked, PriceCents: 1200}, seats[1])
}

func TestMySQLStoreExpiredHoldsByShow(t *testing.T) {
	db, mock := newMock(t)
	store := NewMySQLStore(db)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("WHERE show_id = ? AND state = 'active' AND expires_at <= ?")).
		WithArgs(5, now).
		WillReturnRows(sqlmock.NewRows([]string{"hold_token", "show_id", "user_id", "state", "created_at", "expires_at"}).
			AddRow("old", 5, 2, "active", now.Add(-10*time.Minute), now.Add(-5*time.Minute)))
	mock.ExpectQuery(q("SELECT hold_token, seat_id FROM seat_hold_seats")).
		WithArgs("old").
		WillReturnRows(sqlmock.NewRows([]string{"hold_token", "seat_id"}).AddRow("old", 8))

	got, err := store.ExpiredHoldsByShow(context.Background(), 5, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
	assert.Equal(t, []uint64{8}, got[0].SeatIDs)
}

func TestMySQLStoreExpiredHoldsByShowNone(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("WHERE show_id = ? AND state = 'active'")).
		WithArgs(5, now).
		WillReturnRows(sqlmock.NewRows([]string{"hold_token", "show_id", "user_id", "state", "created_at", "expires_at"}))

	got, err := NewMySQLStore(db).ExpiredHoldsByShow(context.Background(), 5, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}
