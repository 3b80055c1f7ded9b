package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives
)

// Hall represents a screening hall.  SeatRows and SeatCols describe the
// seat grid laid out by SeatRepo.CreateGrid.
type Hall struct {
	ID       uint64 // ID is the primary key of the hall
	Name     string // Name is a human readable label for the hall
	SeatRows uint32 // SeatRows is the number of seating rows
	SeatCols uint32 // SeatCols is the number of seats per row
}

// HallRepo provides methods to create and retrieve halls.
type HallRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewHallRepo constructs a HallRepo with the given DB handle.
func NewHallRepo(db *sql.DB) *HallRepo {
	return &HallRepo{db: db}
}

// Create inserts a new hall.  After insert the ID field of the hall is set.
func (r *HallRepo) Create(ctx context.Context, h *Hall) error {
	const q = `INSERT INTO halls (name, seat_rows, seat_cols) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, h.Name, h.SeatRows, h.SeatCols)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// GetByID returns the hall with the given ID or reservation.ErrNotFound.
func (r *HallRepo) GetByID(ctx context.Context, id uint64) (*Hall, error) {
	const q = `SELECT id, name, seat_rows, seat_cols FROM halls WHERE id = ?`
	var h Hall
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.Name, &h.SeatRows, &h.SeatCols); err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}
