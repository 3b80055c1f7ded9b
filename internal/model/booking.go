package model

import "time"

// PaymentStatus tracks the settlement of a booking.
type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "pending"
    PaymentPaid      PaymentStatus = "paid"
    PaymentCancelled PaymentStatus = "cancelled"
)

// Booking records the seats a user bought for a showtime.  A booking is
// created only from a committed hold and its seats move to booked in the
// same unit of work.  Cancelling a booking returns its seats to available
// and cannot be undone.
//
// Fields:
//  ID               – primary key identifier.
//  ShowtimeID       – showtime being booked.
//  HoldID           – hold the booking was committed from.
//  SeatIDs          – booked seats, a subset of the hold's seats.
//  Owner            – user who made the booking.
//  TotalAmountCents – sum of the seat prices in cents.
//  PaymentStatus    – pending, paid or cancelled.
//  PaymentRef       – external payment reference, if any.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
    ID               uint64        `json:"id"`                    // bookings.id
    ShowtimeID       uint64        `json:"showtime_id"`           // bookings.show_id
    HoldID           string        `json:"hold_id"`               // bookings.hold_token
    SeatIDs          []uint64      `json:"seat_ids"`              // booking_seats.seat_id
    Owner            uint64        `json:"user_id"`               // bookings.user_id
    TotalAmountCents uint32        `json:"total_amount_cents"`    // bookings.total_amount_cents
    PaymentStatus    PaymentStatus `json:"payment_status"`        // bookings.payment_status
    PaymentRef       *string       `json:"payment_ref,omitempty"` // bookings.payment_ref (nullable)
    CreatedAt        time.Time     `json:"created_at"`            // bookings.created_at
    UpdatedAt        time.Time     `json:"updated_at"`            // bookings.updated_at
}
