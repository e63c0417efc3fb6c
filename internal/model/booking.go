package model

import (
	"net/mail"
	"strings"
	"time"
)

// BookingStatus is the admission state of a booking in the general pool.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingWaitlist  BookingStatus = "WAITLIST"
	// BookingCancelled is reserved for administrative states; the engine never assigns it.
	BookingCancelled BookingStatus = "CANCELLED"
)

// DinnerStatus is the admission state of a booking in the dinner pool.
// The empty value means the booking holds no dinner decision.
type DinnerStatus string

const (
	DinnerNone              DinnerStatus = ""
	DinnerConfirmed         DinnerStatus = "confirmed"
	DinnerWaitlist          DinnerStatus = "waitlist"
	DinnerCocktails         DinnerStatus = "cocktails"
	DinnerCocktailsWaitlist DinnerStatus = "cocktails_waitlist"
)

// Queued reports whether the booking is still waiting for a dinner seat.
func (s DinnerStatus) Queued() bool {
	return s == DinnerWaitlist || s == DinnerCocktailsWaitlist
}

// Booking is one guest's RSVP, standing for the guest and their plus-ones.
type Booking struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`

	PlusOnes  int           `json:"plus_ones"`
	PartySize int           `json:"party_size"`
	Status    BookingStatus `json:"status"`

	WantsDinner     bool         `json:"wants_dinner"`
	DinnerSlot      *time.Time   `json:"dinner_slot,omitempty"`
	DinnerPartySize int          `json:"dinner_party_size"`
	DinnerStatus    DinnerStatus `json:"dinner_status,omitempty"`

	CapacityOverridden bool `json:"capacity_overridden"`

	DinnerArrivedCount   int `json:"dinner_arrived_count"`
	CocktailArrivedCount int `json:"cocktail_arrived_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CocktailHeadcount is the part of the party that attends the general pool only.
// A confirmed dinner seat covers the registrant, so only the plus-ones remain.
func (b *Booking) CocktailHeadcount() int {
	if b.DinnerStatus == DinnerConfirmed {
		return b.PlusOnes
	}
	return b.PartySize
}

// DinnerHeadcount is the number of guests that may check in for dinner.
func (b *Booking) DinnerHeadcount() int {
	if b.DinnerStatus == DinnerConfirmed {
		return b.DinnerPartySize
	}
	return 0
}

// PartySizeFor returns the headcount of a booking with n plus-ones.
func PartySizeFor(plusOnes int) int { return 1 + plusOnes }

// NormalizeEmail trims and lowercases an address for uniqueness comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail does a structural check of an already normalized address.
func ValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// RSVPRequest is the payload for adding a booking to an event.
type RSVPRequest struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PlusOnes        int        `json:"plus_ones"`
	WantsDinner     bool       `json:"wants_dinner"`
	DinnerSlot      *time.Time `json:"dinner_slot,omitempty"`
	DinnerPartySize *int       `json:"dinner_party_size,omitempty"`
}

// RSVPUpdate carries a partial edit; nil fields keep their prior value.
type RSVPUpdate struct {
	Name            *string    `json:"name,omitempty"`
	Email           *string    `json:"email,omitempty"`
	PlusOnes        *int       `json:"plus_ones,omitempty"`
	WantsDinner     *bool      `json:"wants_dinner,omitempty"`
	DinnerSlot      *time.Time `json:"dinner_slot,omitempty"`
	DinnerPartySize *int       `json:"dinner_party_size,omitempty"`
}

// UpdateOptions are administrator controls for an update.
type UpdateOptions struct {
	ForceConfirm bool `json:"force_confirm"`
}

// CheckInRequest holds signed arrival deltas.
type CheckInRequest struct {
	Cocktail int `json:"cocktail"`
	Dinner   int `json:"dinner"`
}
