// Package repository contains data access logic for Show domain operations.
// A Show represents a scheduled screening of a movie in a hall.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"time"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// Show is the persistence shape of a showtime.  BasePriceCents is the
// default price for seats unless overridden per seat.
type Show struct {
	ID             uint64    // ID is the primary key of the show
	HallID         uint64    // HallID references the hall where the show occurs
	Title          string    // Title is the name of the movie or event
	StartsAt       time.Time // StartsAt is when the show begins (UTC)
	BasePriceCents uint32    // BasePriceCents is the base price for a seat in cents
}

// ShowRepo manages persistence for shows.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo returns a ShowRepo bound to db.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.
func (r *ShowRepo) DB() *sql.DB {
    return r.db
}

// Create inserts a new show and populates its generated ID.
func (r *ShowRepo) Create(ctx context.Context, s *Show) error {
    const q = `INSERT INTO shows (hall_id, title, starts_at, base_price_cents) VALUES (?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, s.HallID, s.Title, s.StartsAt.UTC(), s.BasePriceCents)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    s.ID = uint64(id)
    return nil
}

// GetByID returns the showtime header joined with its hall name.  It
// returns reservation.ErrNotFound when the show does not exist.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (model.Showtime, error) {
    const q = `SELECT s.id, s.title, h.name, s.starts_at, s.base_price_cents
               FROM shows s
               JOIN halls h ON h.id = s.hall_id
               WHERE s.id = ?`
    var st model.Showtime
    err := r.db.QueryRowContext(ctx, q, id).Scan(&st.ID, &st.Title, &st.HallName, &st.StartsAt, &st.BasePriceCents)
    if err != nil {
        return model.Showtime{}, notFound(err)
    }
    st.StartsAt = st.StartsAt.UTC()
    return st, nil
}

// LockTx takes the row lock on a show for the rest of tx.  Every unit of
// work on a showtime starts here, which serialises them per showtime while
// leaving other showtimes free.
func (r *ShowRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) error {
    var got uint64
    err := tx.QueryRowContext(ctx, `SELECT id FROM shows WHERE id = ? FOR UPDATE`, id).Scan(&got)
    return notFound(err)
}
