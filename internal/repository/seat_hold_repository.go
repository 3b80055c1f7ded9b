package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// SeatHoldRepo is the MySQL Hold Ledger.  A hold is one seat_holds row
// keyed by its token plus one seat_hold_seats row per held seat.  All
// timestamps are stored and compared in UTC.
type SeatHoldRepo struct {
    db *sql.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sql.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

// CreateTx inserts a hold and its seats within the provided transaction.
// The caller is responsible for committing or rolling back.
func (r *SeatHoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h model.Hold) error {
    const q = `INSERT INTO seat_holds (hold_token, show_id, user_id, state, created_at, expires_at)
               VALUES (?, ?, ?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, q, h.ID, h.ShowtimeID, h.Owner, string(h.State), h.CreatedAt.UTC(), h.ExpiresAt.UTC()); err != nil {
        return err
    }
    if len(h.SeatIDs) == 0 {
        return nil
    }
    query := `INSERT INTO seat_hold_seats (hold_token, seat_id) VALUES `
    args := make([]any, 0, len(h.SeatIDs)*2)
    for i, sid := range h.SeatIDs {
        if i > 0 {
            query += ","
        }
        query += "(?, ?)"
        args = append(args, h.ID, sid)
    }
    _, err := tx.ExecContext(ctx, query, args...)
    return err
}

// Get loads a hold without locking it.
func (r *SeatHoldRepo) Get(ctx context.Context, token string) (model.Hold, error) {
    return r.get(ctx, r.db, token, false)
}

// GetTx loads a hold and locks its row for the rest of tx.
func (r *SeatHoldRepo) GetTx(ctx context.Context, tx *sql.Tx, token string) (model.Hold, error) {
    return r.get(ctx, tx, token, true)
}

func (r *SeatHoldRepo) get(ctx context.Context, q queryer, token string, lock bool) (model.Hold, error) {
    query := `SELECT hold_token, show_id, user_id, state, created_at, expires_at
              FROM seat_holds WHERE hold_token = ?`
    if lock {
        query += ` FOR UPDATE`
    }
    h, err := scanHold(q.QueryRowContext(ctx, query, token))
    if err != nil {
        return model.Hold{}, notFound(err)
    }
    seats, err := r.seatsOf(ctx, q, []string{token})
    if err != nil {
        return model.Hold{}, err
    }
    h.SeatIDs = seats[token]
    return h, nil
}

// SetStateTx moves an active hold to state `to`.  A hold that already left
// the active state is not touched; its current state is returned instead.
func (r *SeatHoldRepo) SetStateTx(ctx context.Context, tx *sql.Tx, token string, to model.HoldState) (model.HoldState, error) {
    res, err := tx.ExecContext(ctx,
        `UPDATE seat_holds SET state = ? WHERE hold_token = ? AND state = 'active'`,
        string(to), token,
    )
    if err != nil {
        return "", err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return "", err
    }
    if n == 1 {
        return to, nil
    }
    var cur string
    if err := tx.QueryRowContext(ctx, `SELECT state FROM seat_holds WHERE hold_token = ?`, token).Scan(&cur); err != nil {
        return "", notFound(err)
    }
    return model.HoldState(cur), nil
}

// ExpiredByShowTx returns and locks the active holds of a show whose
// deadline is at or before now.
func (r *SeatHoldRepo) ExpiredByShowTx(ctx context.Context, tx *sql.Tx, showID uint64, now time.Time) ([]model.Hold, error) {
    const q = `SELECT hold_token, show_id, user_id, state, created_at, expires_at
               FROM seat_holds
               WHERE show_id = ? AND state = 'active' AND expires_at <= ?
               ORDER BY expires_at
               FOR UPDATE`
    return r.list(ctx, tx, q, showID, now.UTC())
}

// ListExpiredByShow returns the lapsed active holds of one show without
// locking them.  Callers re-check each hold inside a unit of work.
func (r *SeatHoldRepo) ListExpiredByShow(ctx context.Context, showID uint64, now time.Time) ([]model.Hold, error) {
    const q = `SELECT hold_token, show_id, user_id, state, created_at, expires_at
               FROM seat_holds
               WHERE show_id = ? AND state = 'active' AND expires_at <= ?
               ORDER BY expires_at`
    return r.list(ctx, r.db, q, showID, now.UTC())
}

// ListExpired returns up to limit lapsed active holds across all shows,
// oldest deadline first.  No locks are taken; each hold is re-checked
// under its showtime lock before being expired.
func (r *SeatHoldRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
    const q = `SELECT hold_token, show_id, user_id, state, created_at, expires_at
               FROM seat_holds
               WHERE state = 'active' AND expires_at <= ?
               ORDER BY expires_at
               LIMIT ?`
    return r.list(ctx, r.db, q, now.UTC(), limit)
}

func (r *SeatHoldRepo) list(ctx context.Context, q queryer, query string, args ...any) ([]model.Hold, error) {
    rows, err := q.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    var holds []model.Hold
    for rows.Next() {
        h, err := scanHold(rows)
        if err != nil {
            rows.Close()
            return nil, err
        }
        holds = append(holds, h)
    }
    if err := rows.Close(); err != nil {
        return nil, err
    }
    if len(holds) == 0 {
        return holds, nil
    }
    tokens := make([]string, len(holds))
    for i, h := range holds {
        tokens[i] = h.ID
    }
    seats, err := r.seatsOf(ctx, q, tokens)
    if err != nil {
        return nil, err
    }
    for i := range holds {
        holds[i].SeatIDs = seats[holds[i].ID]
    }
    return holds, nil
}

func (r *SeatHoldRepo) seatsOf(ctx context.Context, q queryer, tokens []string) (map[string][]uint64, error) {
    args := make([]any, len(tokens))
    marks := ""
    for i, t := range tokens {
        if i > 0 {
            marks += ","
        }
        marks += "?"
        args[i] = t
    }
    rows, err := q.QueryContext(ctx,
        `SELECT hold_token, seat_id FROM seat_hold_seats WHERE hold_token IN (`+marks+`) ORDER BY hold_token, seat_id`,
        args...,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make(map[string][]uint64, len(tokens))
    for rows.Next() {
        var token string
        var sid uint64
        if err := rows.Scan(&token, &sid); err != nil {
            return nil, err
        }
        out[token] = append(out[token], sid)
    }
    return out, rows.Err()
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanHold(s rowScanner) (model.Hold, error) {
    var h model.Hold
    var state string
    if err := s.Scan(&h.ID, &h.ShowtimeID, &h.Owner, &state, &h.CreatedAt, &h.ExpiresAt); err != nil {
        return model.Hold{}, err
    }
    h.State = model.HoldState(state)
    h.CreatedAt = h.CreatedAt.UTC()
    h.ExpiresAt = h.ExpiresAt.UTC()
    return h, nil
}
