package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// BookingRepo provides persistence for bookings and their seats.  Seats
// booked under a booking are stored in booking_seats together with the
// price they were sold at.  All timestamp fields are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, show_id, hold_token, total_amount_cents, payment_status, payment_ref, created_at, updated_at`

// CreateTx inserts a booking and its seats within tx.  Seat prices are
// copied from show_seats so the booking keeps the price it was sold at.
// On success b.ID and the timestamps are populated.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    const q = `INSERT INTO bookings (user_id, show_id, hold_token, total_amount_cents, payment_status, payment_ref)
               VALUES (?, ?, ?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q, b.Owner, b.ShowtimeID, b.HoldID, b.TotalAmountCents, string(b.PaymentStatus), b.PaymentRef)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    if len(b.SeatIDs) > 0 {
        in, args := inClause(b.SeatIDs)
        ins := `INSERT INTO booking_seats (booking_id, show_id, seat_id, price_cents)
                SELECT ?, show_id, seat_id, price_cents FROM show_seats
                WHERE show_id = ? AND seat_id IN (` + in + `)`
        if _, err := tx.ExecContext(ctx, ins, append([]any{b.ID, b.ShowtimeID}, args...)...); err != nil {
            return err
        }
    }
    // Query back the row to populate the timestamps set by the DB.
    created, err := r.get(ctx, tx, b.ID, false)
    if err != nil {
        return err
    }
    *b = created
    return nil
}

// Get loads a booking without locking it.
func (r *BookingRepo) Get(ctx context.Context, id uint64) (model.Booking, error) {
    return r.get(ctx, r.db, id, false)
}

// GetTx loads a booking and locks its row for the rest of tx.
func (r *BookingRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
    return r.get(ctx, tx, id, true)
}

func (r *BookingRepo) get(ctx context.Context, q queryer, id uint64, lock bool) (model.Booking, error) {
    query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
    if lock {
        query += ` FOR UPDATE`
    }
    b, err := scanBooking(q.QueryRowContext(ctx, query, id))
    if err != nil {
        return model.Booking{}, notFound(err)
    }
    seats, err := bookingSeats(ctx, q, []uint64{b.ID})
    if err != nil {
        return model.Booking{}, err
    }
    b.SeatIDs = seats[b.ID]
    return b, nil
}

// UpdatePaymentStatusTx sets the payment status and reference of a booking.
// It returns reservation.ErrNotFound when no row matched.
func (r *BookingRepo) UpdatePaymentStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.PaymentStatus, paymentRef *string) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE bookings SET payment_status = ?, payment_ref = ? WHERE id = ?`,
        string(status), paymentRef, id,
    )
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // MySQL reports 0 affected rows when nothing changed, so tell a
        // missing booking apart from a no-op update.
        var got uint64
        return notFound(tx.QueryRowContext(ctx, `SELECT id FROM bookings WHERE id = ?`, id).Scan(&got))
    }
    return nil
}

// ListByUser returns every booking of a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
        userID,
    )
    if err != nil {
        return nil, err
    }
    out := []model.Booking{}
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            rows.Close()
            return nil, err
        }
        out = append(out, b)
    }
    if err := rows.Close(); err != nil {
        return nil, err
    }
    if len(out) == 0 {
        return out, nil
    }
    ids := make([]uint64, len(out))
    for i, b := range out {
        ids[i] = b.ID
    }
    seats, err := bookingSeats(ctx, r.db, ids)
    if err != nil {
        return nil, err
    }
    for i := range out {
        out[i].SeatIDs = seats[out[i].ID]
    }
    return out, nil
}

func bookingSeats(ctx context.Context, q queryer, bookingIDs []uint64) (map[uint64][]uint64, error) {
    in, args := inClause(bookingIDs)
    rows, err := q.QueryContext(ctx,
        `SELECT booking_id, seat_id FROM booking_seats WHERE booking_id IN (`+in+`) ORDER BY booking_id, seat_id`,
        args...,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make(map[uint64][]uint64, len(bookingIDs))
    for rows.Next() {
        var bid, sid uint64
        if err := rows.Scan(&bid, &sid); err != nil {
            return nil, err
        }
        out[bid] = append(out[bid], sid)
    }
    return out, rows.Err()
}

func scanBooking(s rowScanner) (model.Booking, error) {
    var b model.Booking
    var status string
    var paymentRef sql.NullString
    if err := s.Scan(&b.ID, &b.Owner, &b.ShowtimeID, &b.HoldID, &b.TotalAmountCents, &status, &paymentRef, &b.CreatedAt, &b.UpdatedAt); err != nil {
        return model.Booking{}, err
    }
    b.PaymentStatus = model.PaymentStatus(status)
    if paymentRef.Valid {
        pr := paymentRef.String
        b.PaymentRef = &pr
    }
    b.CreatedAt = b.CreatedAt.UTC()
    b.UpdatedAt = b.UpdatedAt.UTC()
    return b, nil
}
