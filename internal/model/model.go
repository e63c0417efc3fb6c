// Package model defines the core domain types for the event RSVP system.
package model

import "time"

// Counts holds party-size sums split by admission state.
type Counts struct {
	Confirmed int `json:"confirmed"`
	Waitlist  int `json:"waitlist"`
}

// SlotCounts holds dinner party-size sums for one seating slot.
type SlotCounts struct {
	Slot      time.Time `json:"slot"`
	Confirmed int       `json:"confirmed"`
	Waitlist  int       `json:"waitlist"`
	// Remaining is -1 when the slot has no seat limit.
	Remaining int `json:"remaining"`
}

// EventSummary is an advisory snapshot for display; it is read without locking.
type EventSummary struct {
	Event        *Event       `json:"event"`
	Counts       Counts       `json:"counts"`
	Limit        Capacity     `json:"limit"`
	Remaining    int          `json:"remaining"`
	CocktailOnly int          `json:"cocktail_only"`
	DinnerSlots  []SlotCounts `json:"dinner_slots"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// DuplicateResponse is returned when a guest is already on the list.
type DuplicateResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Booking *Booking `json:"booking"`
}

// RSVPResult bundles the event with a booking written to it.
type RSVPResult struct {
	Event   *Event   `json:"event"`
	Booking *Booking `json:"booking"`
}
