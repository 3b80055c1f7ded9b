package repository

import (
	"time"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// Demo layout used by the memory driver and cmd/seed.
const (
	DemoShowtimeID  = 1
	DemoRows        = 6
	DemoCols        = 10
	DemoPriceCents  = 1200
	DemoPremiumRows = 2
)

// DemoShowtime returns a showtime starting a couple of hours after now and
// its seat map.  The last DemoPremiumRows rows cost 25% more.
func DemoShowtime(now time.Time) (model.Showtime, []model.Seat) {
	show := model.Showtime{
		ID:             DemoShowtimeID,
		Title:          "The Matrix",
		HallName:       "Hall 1",
		StartsAt:       now.UTC().Truncate(time.Hour).Add(2 * time.Hour),
		BasePriceCents: DemoPriceCents,
	}
	seats := make([]model.Seat, 0, DemoRows*DemoCols)
	var id uint64
	for r := 0; r < DemoRows; r++ {
		price := uint32(DemoPriceCents)
		if r >= DemoRows-DemoPremiumRows {
			price = DemoPriceCents * 5 / 4
		}
		for c := uint32(1); c <= DemoCols; c++ {
			id++
			seats = append(seats, model.Seat{
				ShowtimeID: show.ID,
				SeatID:     id,
				Row:        RowLabel(r),
				Column:     c,
				Status:     model.SeatAvailable,
				PriceCents: price,
			})
		}
	}
	return show, seats
}
