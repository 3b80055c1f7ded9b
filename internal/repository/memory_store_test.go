package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-coordinator/internal/model"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

func newDemoStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	show, seats := DemoShowtime(time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC))
	require.NoError(t, s.AddShowtime(show, seats))
	return s
}

func TestDemoShowtimeLayout(t *testing.T) {
	show, seats := DemoShowtime(time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), show.StartsAt)
	require.Len(t, seats, DemoRows*DemoCols)
	assert.Equal(t, "A", seats[0].Row)
	assert.Equal(t, uint32(1), seats[0].Column)
	assert.Equal(t, uint32(DemoPriceCents), seats[0].PriceCents)
	last := seats[len(seats)-1]
	assert.Equal(t, "F", last.Row)
	assert.Equal(t, uint32(1500), last.PriceCents)
}

func TestRowLabel(t *testing.T) {
	assert.Equal(t, "A", RowLabel(0))
	assert.Equal(t, "Z", RowLabel(25))
	assert.Equal(t, "AA", RowLabel(26))
	assert.Equal(t, "AB", RowLabel(27))
}

func TestMemoryTransitionIsAllOrNothing(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx, DemoShowtimeID)
	require.NoError(t, err)
	require.NoError(t, tx.Transition(ctx, []uint64{2}, model.SeatAvailable, model.SeatHeld))
	err = tx.Transition(ctx, []uint64{1, 2, 3, 999}, model.SeatAvailable, model.SeatHeld)
	var conflict *reservation.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []uint64{2, 999}, conflict.SeatIDs)

	got, err := tx.SeatsByID(ctx, []uint64{1, 3})
	require.NoError(t, err)
	for _, seat := range got {
		assert.Equal(t, model.SeatAvailable, seat.Status)
	}
	require.NoError(t, tx.Commit())
}

func TestMemoryRollbackRestoresState(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tx, err := s.Begin(ctx, DemoShowtimeID)
	require.NoError(t, err)
	require.NoError(t, tx.Transition(ctx, []uint64{1, 2}, model.SeatAvailable, model.SeatHeld))
	require.NoError(t, tx.CreateHold(ctx, model.Hold{
		ID: "h1", ShowtimeID: DemoShowtimeID, SeatIDs: []uint64{1, 2}, Owner: 4,
		State: model.HoldActive, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	// Uncommitted work is invisible to the snapshot.
	seats, err := s.ListSeats(ctx, DemoShowtimeID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seats[0].Status)

	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	_, err = s.FindHold(ctx, "h1")
	assert.ErrorIs(t, err, reservation.ErrNotFound)
	seats, err = s.ListSeats(ctx, DemoShowtimeID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seats[0].Status)
	assert.Equal(t, model.SeatAvailable, seats[1].Status)
}

func TestMemoryCommitPublishesSnapshot(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx, DemoShowtimeID)
	require.NoError(t, err)
	require.NoError(t, tx.Transition(ctx, []uint64{3}, model.SeatAvailable, model.SeatBooked))
	b := &model.Booking{HoldID: "h", SeatIDs: []uint64{3}, Owner: 8, PaymentStatus: model.PaymentPending}
	require.NoError(t, tx.CreateBooking(ctx, b))
	require.NoError(t, tx.Commit())
	assert.Equal(t, uint64(1), b.ID)

	seats, err := s.ListSeats(ctx, DemoShowtimeID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatBooked, seats[2].Status)

	got, err := s.FindBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(DemoShowtimeID), got.ShowtimeID)
	list, err := s.BookingsByOwner(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryMarksAreIdempotent(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tx, err := s.Begin(ctx, DemoShowtimeID)
	require.NoError(t, err)
	require.NoError(t, tx.CreateHold(ctx, model.Hold{
		ID: "h2", ShowtimeID: DemoShowtimeID, SeatIDs: []uint64{5}, Owner: 1,
		State: model.HoldActive, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	state, err := tx.MarkReleased(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, state)
	state, err = tx.MarkExpired(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, state, "terminal states absorb")
	_, err = tx.MarkCommitted(ctx, "nope")
	assert.ErrorIs(t, err, reservation.ErrNotFound)
	require.NoError(t, tx.Commit())
}

func TestMemoryBeginWaitsForUnitAndHonoursContext(t *testing.T) {
	s := newDemoStore(t)
	tx, err := s.Begin(context.Background(), DemoShowtimeID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx, DemoShowtimeID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Snapshot reads do not wait on the open unit.
	_, err = s.ListSeats(context.Background(), DemoShowtimeID)
	require.NoError(t, err)

	require.NoError(t, tx.Commit())
	tx2, err := s.Begin(context.Background(), DemoShowtimeID)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())

	_, err = s.Begin(context.Background(), 404)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestMemoryExpiredHolds(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx, DemoShowtimeID)
	require.NoError(t, err)
	for i, ttl := range []time.Duration{3 * time.Minute, time.Minute, 10 * time.Minute} {
		require.NoError(t, tx.CreateHold(ctx, model.Hold{
			ID: string(rune('a' + i)), ShowtimeID: DemoShowtimeID, SeatIDs: []uint64{uint64(i + 1)}, Owner: 1,
			State: model.HoldActive, CreatedAt: base, ExpiresAt: base.Add(ttl),
		}))
	}
	require.NoError(t, tx.Commit())

	got, err := s.ExpiredHolds(ctx, base.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID, "oldest deadline first")
	assert.Equal(t, "a", got[1].ID)

	got, err = s.ExpiredHolds(ctx, base.Add(time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestMemoryExpiredHoldsByShow(t *testing.T) {
	s := newDemoStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx, DemoShowtimeID)
	require.NoError(t, err)
	for i, ttl := range []time.Duration{3 * time.Minute, time.Minute, 10 * time.Minute} {
		require.NoError(t, tx.CreateHold(ctx, model.Hold{
			ID: string(rune('a' + i)), ShowtimeID: DemoShowtimeID, SeatIDs: []uint64{uint64(i + 1)}, Owner: 1,
			State: model.HoldActive, CreatedAt: base, ExpiresAt: base.Add(ttl),
		}))
	}
	require.NoError(t, tx.Commit())

	got, err := s.ExpiredHoldsByShow(ctx, DemoShowtimeID, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	got, err = s.ExpiredHoldsByShow(ctx, DemoShowtimeID, base)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.ExpiredHoldsByShow(ctx, DemoShowtimeID+100, base)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}
