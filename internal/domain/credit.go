package domain

import "time"

// CreditBalance is one row per user. Balance never goes negative; the version
// counter increments on every mutation so concurrent writers cannot lose
// updates.
type CreditBalance struct {
	UserID    string
	Balance   int
	Version   int64
	UpdatedAt time.Time
}

// ReservationState enumerates the lifecycle of a credit reservation.
type ReservationState string

const (
	ReservationHeld     ReservationState = "held"
	ReservationSettled  ReservationState = "settled"
	ReservationRefunded ReservationState = "refunded"
)

// Reservation is a provisional credit debit held against a balance until it
// is settled (work delivered) or refunded (work failed or abandoned).
type Reservation struct {
	ID        string
	UserID    string
	Amount    int
	State     ReservationState
	CreatedAt time.Time
}
