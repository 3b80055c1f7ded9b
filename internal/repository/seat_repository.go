package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
)

// Seat represents a physical seat within a hall. RowLabel and
// SeatNumber identify the seat's position.
type Seat struct {
	ID         uint64 // primary key
	HallID     uint64 // FK -> halls.id
	RowLabel   string // e.g. A, B, AA
	SeatNumber uint32 // position in the row (1-based)
}

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// CreateBulk inserts multiple seats in a single statement.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (hall_id, row_label, seat_number) VALUES `
	args := make([]any, 0, len(seats)*3)
	for i, seat := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, seat.HallID, seat.RowLabel, seat.SeatNumber)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// CreateGrid lays out rows x cols seats for a hall.  Rows are labelled
// A, B, ... Z, AA, AB and so on.
func (r *SeatRepo) CreateGrid(ctx context.Context, hallID uint64, rows, cols uint32) error {
	seats := make([]Seat, 0, rows*cols)
	for i := uint32(0); i < rows; i++ {
		label := RowLabel(int(i))
		for n := uint32(1); n <= cols; n++ {
			seats = append(seats, Seat{HallID: hallID, RowLabel: label, SeatNumber: n})
		}
	}
	return r.CreateBulk(ctx, seats)
}

// GetByHall retrieves all seats of a hall ordered by row_label then seat_number.
func (r *SeatRepo) GetByHall(ctx context.Context, hallID uint64) ([]Seat, error) {
	const q = `SELECT id, hall_id, row_label, seat_number
	           FROM seats
	           WHERE hall_id = ?
	           ORDER BY LENGTH(row_label), row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, hallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Seat
	for rows.Next() {
		var s Seat
		if err := rows.Scan(&s.ID, &s.HallID, &s.RowLabel, &s.SeatNumber); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RowLabel converts a zero-based row index to a spreadsheet style label.
func RowLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}
