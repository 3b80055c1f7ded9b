package model

import "time"

// HoldState is the lifecycle state of a Hold.  Active is the only
// non-terminal state; committed, released and expired absorb.
type HoldState string

const (
    HoldActive    HoldState = "active"
    HoldCommitted HoldState = "committed"
    HoldReleased  HoldState = "released"
    HoldExpired   HoldState = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s HoldState) Terminal() bool { return s != HoldActive }

// Hold is a time-bounded exclusive claim on a set of seats for one
// showtime.  While a hold is active its seats are in the held status and
// no other active hold may cover any of them.
//
// Fields:
//  ID         – opaque token returned to the client.
//  ShowtimeID – showtime whose seats are held.
//  SeatIDs    – held seats; non-empty, unique and sorted ascending.
//  Owner      – user who placed the hold.
//  State      – active, committed, released or expired.
//  CreatedAt  – when the hold was placed.
//  ExpiresAt  – end of the lease.
type Hold struct {
    ID         string    // seat_holds.hold_token
    ShowtimeID uint64    // seat_holds.show_id
    SeatIDs    []uint64  // seat_hold_seats.seat_id
    Owner      uint64    // seat_holds.user_id
    State      HoldState // seat_holds.state
    CreatedAt  time.Time // seat_holds.created_at
    ExpiresAt  time.Time // seat_holds.expires_at
}

// Lapsed reports whether an active hold's lease has run out at now.  The
// deadline itself counts as lapsed.
func (h Hold) Lapsed(now time.Time) bool {
    return h.State == HoldActive && !now.Before(h.ExpiresAt)
}

// Remaining returns the time left on the lease, never negative.
func (h Hold) Remaining(now time.Time) time.Duration {
    if h.State != HoldActive {
        return 0
    }
    d := h.ExpiresAt.Sub(now)
    if d < 0 {
        return 0
    }
    return d
}
