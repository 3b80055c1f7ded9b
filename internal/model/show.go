package model

import "time"

// Showtime is a scheduled screening of a movie in a hall.  Only the
// fields needed to validate requests and render the seat picker header are
// carried here; scheduling and pricing administration live elsewhere.
type Showtime struct {
    ID             uint64    `json:"id"`               // shows.id
    Title          string    `json:"title"`            // shows.title
    HallName       string    `json:"hall_name"`        // halls.name
    StartsAt       time.Time `json:"starts_at"`        // shows.starts_at
    BasePriceCents uint32    `json:"base_price_cents"` // shows.base_price_cents
}
