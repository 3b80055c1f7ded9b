package model

// SeatStatus is the availability of a seat for one showtime.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "available"
    SeatHeld      SeatStatus = "held"
    SeatBooked    SeatStatus = "booked"
)

// Valid reports whether s is one of the known seat statuses.
func (s SeatStatus) Valid() bool {
    switch s {
    case SeatAvailable, SeatHeld, SeatBooked:
        return true
    }
    return false
}

// Seat is a physical seat as sold for one showtime.  There is exactly one
// Seat per (showtime, seat) pair; it is seeded from the hall layout when the
// showtime is created and only ever mutated through the reservation
// coordinator.
//
// Fields:
//  ShowtimeID – showtime the seat belongs to.
//  SeatID     – synthetic seat identifier, unique within the hall.
//  Row        – row label (A, B, ... AA).
//  Column     – seat number within the row.
//  Status     – available, held or booked.
//  PriceCents – price of this seat for this showtime in cents.
type Seat struct {
    ShowtimeID uint64     `json:"-"`      // show_seats.show_id
    SeatID     uint64     `json:"id"`     // show_seats.seat_id
    Row        string     `json:"row"`    // seats.row_label
    Column     uint32     `json:"column"` // seats.seat_number
    Status     SeatStatus `json:"status"` // show_seats.status
    PriceCents uint32     `json:"price"`  // show_seats.price_cents
}
