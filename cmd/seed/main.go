// Command seed creates the demo hall and showtime in MySQL so the API has
// something to sell.  It reads the same DB_* variables as the server and
// prints a customer token signed with JWT_SECRET for trying the API.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/cinema-seat-coordinator/internal/config"
	"github.com/iliyamo/cinema-seat-coordinator/internal/database"
	"github.com/iliyamo/cinema-seat-coordinator/internal/middleware"
	"github.com/iliyamo/cinema-seat-coordinator/internal/repository"
	"github.com/iliyamo/cinema-seat-coordinator/internal/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.StoreDriver != config.StoreMySQL {
		log.Fatalf("seed needs STORE_DRIVER=mysql, got %q", cfg.StoreDriver)
	}

	db, err := database.Open(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	show, demoSeats := repository.DemoShowtime(time.Now())
	price := make(map[string]uint32, len(demoSeats))
	for _, s := range demoSeats {
		price[seatKey(s.Row, s.Column)] = s.PriceCents
	}

	hall := &repository.Hall{Name: show.HallName, SeatRows: repository.DemoRows, SeatCols: repository.DemoCols}
	if err := repository.NewHallRepo(db).Create(ctx, hall); err != nil {
		log.Fatalf("create hall: %v", err)
	}
	seatRepo := repository.NewSeatRepo(db)
	if err := seatRepo.CreateGrid(ctx, hall.ID, hall.SeatRows, hall.SeatCols); err != nil {
		log.Fatalf("create seats: %v", err)
	}
	seats, err := seatRepo.GetByHall(ctx, hall.ID)
	if err != nil {
		log.Fatalf("list seats: %v", err)
	}

	s := &repository.Show{HallID: hall.ID, Title: show.Title, StartsAt: show.StartsAt, BasePriceCents: show.BasePriceCents}
	if err := repository.NewShowRepo(db).Create(ctx, s); err != nil {
		log.Fatalf("create show: %v", err)
	}
	showSeats := make([]repository.ShowSeat, 0, len(seats))
	for _, seat := range seats {
		p, ok := price[seatKey(seat.RowLabel, seat.SeatNumber)]
		if !ok {
			p = show.BasePriceCents
		}
		showSeats = append(showSeats, repository.ShowSeat{ShowID: s.ID, SeatID: seat.ID, PriceCents: p})
	}
	if err := repository.NewShowSeatRepo(db).CreateBulk(ctx, showSeats); err != nil {
		log.Fatalf("create show seats: %v", err)
	}
	log.Printf("seeded show %d (%q) in hall %d with %d seats", s.ID, s.Title, hall.ID, len(showSeats))

	tok, err := utils.NewAccessToken(cfg.JWTSecret, demoCustomerID, middleware.RoleCustomer, 24*time.Hour)
	if err != nil {
		log.Fatalf("sign demo token: %v", err)
	}
	log.Printf("demo customer %d token (expires %s): %s", demoCustomerID, tok.Exp.Format(time.RFC3339), tok.Token)
}

const demoCustomerID = 1

func seatKey(row string, col uint32) string {
	return fmt.Sprintf("%s%d", row, col)
}
