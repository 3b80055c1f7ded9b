package reservation_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/repository"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func TestSweepOnceExpiresLapsedHolds(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	short := make([]model.Hold, 0, 3)
	for i := uint64(1); i <= 3; i++ {
		h, err := f.coord.Hold(ctx, reservation.HoldRequest{ShowtimeID: showID, SeatIDs: []uint64{i}, Owner: i, TTL: time.Minute})
		require.NoError(t, err)
		short = append(short, h)
	}
	long := f.hold(t, 9, 5)

	// Batches of one make the sweep loop over several pages.
	s := reservation.NewSweeper(f.coord, reservation.SweeperConfig{Interval: time.Hour, BatchSize: 1}, quietLogger())

	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing lapsed yet")

	f.clock.Advance(2 * time.Minute)
	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st := f.status(t)
	for _, h := range short {
		got, err := f.store.FindHold(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, model.HoldExpired, got.State)
		assert.Equal(t, model.SeatAvailable, st[h.SeatIDs[0]])
	}
	assert.Equal(t, model.SeatHeld, st[5])
	got, err := f.store.FindHold(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, got.State)
	assert.Len(t, f.sink.expired, 3)

	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep is a no-op")
}

func TestSweepSkipsCommittedHolds(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	h := f.hold(t, 1, 1)
	_, err := f.coord.ConfirmBooking(ctx, reservation.ConfirmRequest{HoldID: h.ID, Owner: 1})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	s := reservation.NewSweeper(f.coord, reservation.SweeperConfig{}, quietLogger())
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.SeatBooked, f.status(t)[1])
}

func TestSweeperLoop(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := f.hold(t, 1, 1)
	f.clock.Advance(10 * time.Minute)

	s := reservation.NewSweeper(f.coord, reservation.SweeperConfig{Interval: 5 * time.Millisecond, BatchSize: 10}, quietLogger())
	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool {
		got, err := f.store.FindHold(context.Background(), h.ID)
		return err == nil && got.State == model.HoldExpired
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.SeatAvailable, f.status(t)[1])

	s.Stop()
	s.Stop()
}

// flakyStore fails every unit of work on one showtime.
type flakyStore struct {
	*repository.MemoryStore
	failShow atomic.Uint64
}

func (s *flakyStore) Begin(ctx context.Context, showtimeID uint64) (reservation.Tx, error) {
	if showtimeID == s.failShow.Load() {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.Begin(ctx, showtimeID)
}

func TestSweepOnceGetsPastFailingHolds(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	store := &flakyStore{MemoryStore: repository.NewMemoryStore()}
	store.SetClock(clock.Now)
	for _, id := range []uint64{1, 2} {
		seats := []model.Seat{{SeatID: 1, Row: "A", Column: 1}, {SeatID: 2, Row: "A", Column: 2}}
		require.NoError(t, store.AddShowtime(model.Showtime{ID: id}, seats))
	}
	coord := reservation.NewCoordinator(store, reservation.Options{Now: clock.Now})
	ctx := context.Background()

	// Two holds on showtime 1 lapse first and will keep failing.
	var stuck []model.Hold
	for _, seat := range []uint64{1, 2} {
		h, err := coord.Hold(ctx, reservation.HoldRequest{ShowtimeID: 1, SeatIDs: []uint64{seat}, Owner: 1, TTL: time.Minute})
		require.NoError(t, err)
		stuck = append(stuck, h)
	}
	later, err := coord.Hold(ctx, reservation.HoldRequest{ShowtimeID: 2, SeatIDs: []uint64{1}, Owner: 2, TTL: 2 * time.Minute})
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	store.failShow.Store(1)

	s := reservation.NewSweeper(coord, reservation.SweeperConfig{Interval: time.Hour, BatchSize: 2}, quietLogger())
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.FindHold(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldExpired, got.State)
	for _, h := range stuck {
		got, err := store.FindHold(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, model.HoldActive, got.State)
	}
}
