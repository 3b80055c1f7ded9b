package repository // repository for show seat persistence

import (
    "context"      // context for managing deadlines
    "database/sql" // sql provides DB interfaces
    "fmt"

    "github.com/iliyamo/cinema-seat-coordinator/internal/model"
    "github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

// ShowSeat is the insert shape of a show_seats row: the availability and
// pricing of one hall seat for one show.
type ShowSeat struct {
    ShowID     uint64           // ShowID references the show
    SeatID     uint64           // SeatID references the seat
    Status     model.SeatStatus // Status is available, held or booked
    PriceCents uint32           // PriceCents is the price for this seat
}

// ShowSeatRepo encapsulates database operations for show_seats.  It is the
// MySQL Seat Inventory: every status change goes through TransitionTx.
type ShowSeatRepo struct {
    db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo {
    return &ShowSeatRepo{db: db}
}

// CreateBulk inserts multiple show_seat records in one statement.
func (r *ShowSeatRepo) CreateBulk(ctx context.Context, seats []ShowSeat) error {
    if len(seats) == 0 {
        return nil
    }
    query := `INSERT INTO show_seats (show_id, seat_id, status, price_cents) VALUES `
    args := make([]any, 0, len(seats)*4)
    for i, ss := range seats {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?)"
        status := ss.Status
        if status == "" {
            status = model.SeatAvailable
        }
        args = append(args, ss.ShowID, ss.SeatID, string(status), ss.PriceCents)
    }
    _, err := r.db.ExecContext(ctx, query, args...)
    return err
}

const seatColumns = `ss.show_id, ss.seat_id, se.row_label, se.seat_number, ss.status, ss.price_cents
                     FROM show_seats ss
                     JOIN seats se ON se.id = ss.seat_id`

// ListByShow returns the seat map of a show ordered by row and column.
// It runs without locks and so never waits on a unit of work.
func (r *ShowSeatRepo) ListByShow(ctx context.Context, showID uint64) ([]model.Seat, error) {
    q := `SELECT ` + seatColumns + `
          WHERE ss.show_id = ?
          ORDER BY LENGTH(se.row_label), se.row_label, se.seat_number`
    return scanSeats(r.db.QueryContext(ctx, q, showID))
}

// SeatsByIDTx returns the requested seats of a show, locking their rows.
// Unknown seats are omitted.
func (r *ShowSeatRepo) SeatsByIDTx(ctx context.Context, tx *sql.Tx, showID uint64, seatIDs []uint64) ([]model.Seat, error) {
    if len(seatIDs) == 0 {
        return nil, nil
    }
    in, args := inClause(seatIDs)
    q := `SELECT ` + seatColumns + `
          WHERE ss.show_id = ? AND ss.seat_id IN (` + in + `)
          ORDER BY ss.seat_id
          FOR UPDATE`
    return scanSeats(tx.QueryContext(ctx, q, append([]any{showID}, args...)...))
}

// TransitionTx moves every seat in seatIDs from `from` to `to` inside tx.
// The rows are locked first; if any seat is missing or in another status
// nothing is written and a *reservation.SeatConflictError names them.
func (r *ShowSeatRepo) TransitionTx(ctx context.Context, tx *sql.Tx, showID uint64, seatIDs []uint64, from, to model.SeatStatus) error {
    if len(seatIDs) == 0 {
        return nil
    }
    in, args := inClause(seatIDs)
    q := `SELECT seat_id, status FROM show_seats
          WHERE show_id = ? AND seat_id IN (` + in + `)
          FOR UPDATE`
    rows, err := tx.QueryContext(ctx, q, append([]any{showID}, args...)...)
    if err != nil {
        return err
    }
    current := make(map[uint64]model.SeatStatus, len(seatIDs))
    for rows.Next() {
        var id uint64
        var status string
        if err := rows.Scan(&id, &status); err != nil {
            rows.Close()
            return err
        }
        current[id] = model.SeatStatus(status)
    }
    if err := rows.Close(); err != nil {
        return err
    }
    var offenders []uint64
    for _, id := range seatIDs {
        if st, ok := current[id]; !ok || st != from {
            offenders = append(offenders, id)
        }
    }
    if len(offenders) > 0 {
        return reservation.NewSeatConflict(offenders)
    }

    upd := `UPDATE show_seats SET status = ?, version = version + 1
            WHERE show_id = ? AND status = ? AND seat_id IN (` + in + `)`
    res, err := tx.ExecContext(ctx, upd, append([]any{string(to), showID, string(from)}, args...)...)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n != int64(len(seatIDs)) {
        return fmt.Errorf("%w: updated %d of %d seats", reservation.ErrInconsistent, n, len(seatIDs))
    }
    return nil
}

func scanSeats(rows *sql.Rows, err error) ([]model.Seat, error) {
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Seat{}
    for rows.Next() {
        var s model.Seat
        var status string
        if err := rows.Scan(&s.ShowtimeID, &s.SeatID, &s.Row, &s.Column, &status, &s.PriceCents); err != nil {
            return nil, err
        }
        s.Status = model.SeatStatus(status)
        out = append(out, s)
    }
    return out, rows.Err()
}
