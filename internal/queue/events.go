// Package queue carries reservation events over RabbitMQ: the Publisher
// turns coordinator notifications into persistent messages and the
// Consumer appends them to the booking log.
package queue

import (
    "time"

    "github.com/iliyamo/cinema-seat-coordinator/internal/model"
)

// Queue names.  Each event type has its own durable queue.
const (
    QueueHoldExpired      = "hold.expired"
    QueueBookingConfirmed = "booking.confirmed"
    QueueBookingCancelled = "booking.cancelled"
)

// Queues lists every queue the publisher and consumer declare.
var Queues = []string{QueueHoldExpired, QueueBookingConfirmed, QueueBookingCancelled}

// HoldExpiredEvent is published when a hold's lease ran out and its seats
// went back to the pool.
type HoldExpiredEvent struct {
    HoldID     string    `json:"hold_id"`
    ShowtimeID uint64    `json:"showtime_id"`
    UserID     uint64    `json:"user_id"`
    SeatIDs    []uint64  `json:"seat_ids"`
    ExpiresAt  time.Time `json:"expires_at"`
}

// BookingEvent is published when a booking is confirmed or cancelled.  It
// contains enough for downstream consumers to log or notify without
// querying the primary database.
type BookingEvent struct {
    BookingID        uint64              `json:"booking_id"`
    HoldID           string              `json:"hold_id"`
    UserID           uint64              `json:"user_id"`
    ShowtimeID       uint64              `json:"showtime_id"`
    SeatIDs          []uint64            `json:"seat_ids"`
    TotalAmountCents uint32              `json:"total_amount_cents"`
    PaymentStatus    model.PaymentStatus `json:"payment_status"`
    OccurredAt       time.Time           `json:"occurred_at"`
}

func holdExpiredEvent(h model.Hold) HoldExpiredEvent {
    return HoldExpiredEvent{
        HoldID:     h.ID,
        ShowtimeID: h.ShowtimeID,
        UserID:     h.Owner,
        SeatIDs:    h.SeatIDs,
        ExpiresAt:  h.ExpiresAt,
    }
}

func bookingEvent(b model.Booking, at time.Time) BookingEvent {
    return BookingEvent{
        BookingID:        b.ID,
        HoldID:           b.HoldID,
        UserID:           b.Owner,
        ShowtimeID:       b.ShowtimeID,
        SeatIDs:          b.SeatIDs,
        TotalAmountCents: b.TotalAmountCents,
        PaymentStatus:    b.PaymentStatus,
        OccurredAt:       at.UTC(),
    }
}
