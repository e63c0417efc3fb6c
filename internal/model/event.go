package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxPlusOnesLimit is the highest plus-one allowance an event may configure.
const MaxPlusOnesLimit = 3

// Capacity is a headcount limit. The zero value means unlimited.
type Capacity int

// Unlimited is the Capacity that never rejects.
const Unlimited Capacity = 0

// Limited reports whether c imposes a ceiling.
func (c Capacity) Limited() bool { return c > 0 }

// Allows reports whether a total of n fits under c.
func (c Capacity) Allows(n int) bool {
	return !c.Limited() || n <= int(c)
}

// Remaining returns the spots left after used, or -1 when unlimited.
func (c Capacity) Remaining(used int) int {
	if !c.Limited() {
		return -1
	}
	if left := int(c) - used; left > 0 {
		return left
	}
	return 0
}

// Tighter returns the stricter of two limits.
func (c Capacity) Tighter(other Capacity) Capacity {
	switch {
	case !c.Limited():
		return other
	case !other.Limited():
		return c
	case other < c:
		return other
	default:
		return c
	}
}

// OverflowAction is applied when a dinner request does not fit its slot.
type OverflowAction string

const (
	OverflowWaitlist  OverflowAction = "waitlist"
	OverflowCocktails OverflowAction = "cocktails"
	OverflowBoth      OverflowAction = "both"
)

// Valid reports whether a is one of the known actions.
func (a OverflowAction) Valid() bool {
	switch a {
	case OverflowWaitlist, OverflowCocktails, OverflowBoth:
		return true
	}
	return false
}

// UnmarshalText rejects unknown actions so that a decoded config is always closed.
func (a *OverflowAction) UnmarshalText(b []byte) error {
	v := OverflowAction(strings.ToLower(strings.TrimSpace(string(b))))
	if v == "" {
		v = OverflowWaitlist
	}
	if !v.Valid() {
		return fmt.Errorf("unknown overflow action %q", string(b))
	}
	*a = v
	return nil
}

// DefaultSeatingInterval is used when a dinner config carries no usable interval.
const DefaultSeatingInterval = 2 * time.Hour

// DinnerConfig describes the secondary seating pool of an event.
type DinnerConfig struct {
	Enabled              bool           `json:"enabled"`
	WindowStart          *time.Time     `json:"window_start,omitempty"`
	WindowEnd            *time.Time     `json:"window_end,omitempty"`
	SeatingIntervalHours float64        `json:"seating_interval_hours"`
	MaxSeatsPerSlot      Capacity       `json:"max_seats_per_slot"`
	OverflowAction       OverflowAction `json:"overflow_action"`
}

// Interval returns the seating interval, falling back to DefaultSeatingInterval.
func (d *DinnerConfig) Interval() time.Duration {
	if d == nil || d.SeatingIntervalHours <= 0 {
		return DefaultSeatingInterval
	}
	iv := time.Duration(d.SeatingIntervalHours * float64(time.Hour))
	if iv <= 0 {
		return DefaultSeatingInterval
	}
	return iv
}

// Event is a host's published event together with its admission limits.
type Event struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`

	CapacityTotal        Capacity `json:"capacity_total"`
	CapacityCocktailOnly Capacity `json:"capacity_cocktail_only"`
	CapacityDinner       Capacity `json:"capacity_dinner"`
	WaitlistEnabled      bool     `json:"waitlist_enabled"`
	MaxPlusOnesPerGuest  int      `json:"max_plus_ones_per_guest"`

	Dinner *DinnerConfig `json:"dinner,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DinnerEnabled reports whether the event offers dinner seating at all.
func (e *Event) DinnerEnabled() bool {
	return e.Dinner != nil && e.Dinner.Enabled
}

// PrimaryLimit is the ceiling of the general admission pool.
func (e *Event) PrimaryLimit() Capacity {
	return e.CapacityTotal.Tighter(e.CapacityCocktailOnly)
}

// ClampPlusOnes forces n into [0, MaxPlusOnesPerGuest].
func (e *Event) ClampPlusOnes(n int) int {
	if n < 0 {
		return 0
	}
	if n > e.MaxPlusOnesPerGuest {
		return e.MaxPlusOnesPerGuest
	}
	return n
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	StartsAt             *time.Time    `json:"starts_at,omitempty"`
	CapacityTotal        Capacity      `json:"capacity_total"`
	CapacityCocktailOnly Capacity      `json:"capacity_cocktail_only"`
	CapacityDinner       Capacity      `json:"capacity_dinner"`
	WaitlistEnabled      bool          `json:"waitlist_enabled"`
	MaxPlusOnesPerGuest  int           `json:"max_plus_ones_per_guest"`
	Dinner               *DinnerConfig `json:"dinner,omitempty"`
}

// Validate checks the request against the event configuration rules.
func (r *CreateEventRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.CapacityTotal < 0 || r.CapacityCocktailOnly < 0 || r.CapacityDinner < 0 {
		return fmt.Errorf("capacities must be positive or 0 for unlimited")
	}
	if r.MaxPlusOnesPerGuest < 0 || r.MaxPlusOnesPerGuest > MaxPlusOnesLimit {
		return fmt.Errorf("max_plus_ones_per_guest must be between 0 and %d", MaxPlusOnesLimit)
	}
	if d := r.Dinner; d != nil && d.Enabled {
		if d.WindowStart == nil || d.WindowEnd == nil {
			return fmt.Errorf("dinner window_start and window_end are required")
		}
		if d.WindowEnd.Before(*d.WindowStart) {
			return fmt.Errorf("dinner window_end must not be before window_start")
		}
		if d.MaxSeatsPerSlot < 0 {
			return fmt.Errorf("dinner max_seats_per_slot must be positive or 0 for unlimited")
		}
		if d.OverflowAction != "" && !d.OverflowAction.Valid() {
			return fmt.Errorf("unknown dinner overflow_action %q", d.OverflowAction)
		}
	}
	return nil
}

// MarshalDinner encodes a dinner config for storage; nil stays nil.
func MarshalDinner(d *DinnerConfig) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// UnmarshalDinner is the inverse of MarshalDinner.
func UnmarshalDinner(b []byte) (*DinnerConfig, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	d := &DinnerConfig{}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, err
	}
	return d, nil
}
