// Package admission decides whether a booking is confirmed, waitlisted or redirected,
// given an event's limits and the current aggregate counts.
//
// Decide is pure: it reads nothing but its arguments, so callers must hold the event's
// critical section from the moment the aggregates are read until the result is written.
package admission

import (
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/dinner"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
)

// ErrFull is returned when the general pool is over capacity and the event has no waitlist.
var ErrFull = errors.New("event is full")

// Request is a booking's claim on the event's pools.
type Request struct {
	// PlusOnes must already be clamped to the event's allowance.
	PlusOnes    int
	WantsDinner bool
	DinnerSlot  *time.Time
	// DinnerPartySize below 1 defaults to the party size.
	DinnerPartySize int
	// ForceConfirm bypasses every capacity check and flags the result as overridden.
	ForceConfirm bool
	// HoldPlace keeps an already confirmed place in the general pool without
	// re-checking the limit. Set it only when the request does not grow the party.
	HoldPlace bool
	// HoldSeat does the same for an already confirmed dinner seat in the same slot.
	HoldSeat bool
}

// Aggregates are the counts the decision is taken against, with the booking being
// edited already left out.
type Aggregates struct {
	Event model.Counts
	Slots capacity.Slots
}

// Decision is the outcome for one booking.
type Decision struct {
	Status          model.BookingStatus
	PartySize       int
	WantsDinner     bool
	DinnerSlot      *time.Time
	DinnerPartySize int
	DinnerStatus    model.DinnerStatus
	Overridden      bool
}

// Apply copies the decision onto b.
func (d Decision) Apply(b *model.Booking) {
	b.Status = d.Status
	b.PartySize = d.PartySize
	b.WantsDinner = d.WantsDinner
	b.DinnerSlot = d.DinnerSlot
	b.DinnerPartySize = d.DinnerPartySize
	b.DinnerStatus = d.DinnerStatus
	if d.Overridden {
		b.CapacityOverridden = true
	}
}

// Decide runs the admission algorithm for the general pool and, when requested and
// offered, the dinner pool.
func Decide(e *model.Event, req Request, agg Aggregates) (Decision, error) {
	d := Decision{PartySize: model.PartySizeFor(req.PlusOnes)}

	switch {
	case req.ForceConfirm:
		d.Status = model.BookingConfirmed
		d.Overridden = true
	case req.HoldPlace:
		d.Status = model.BookingConfirmed
	case e.PrimaryLimit().Allows(agg.Event.Confirmed + d.PartySize):
		d.Status = model.BookingConfirmed
	case e.WaitlistEnabled:
		d.Status = model.BookingWaitlist
	default:
		return Decision{}, ErrFull
	}

	if !req.WantsDinner || !e.DinnerEnabled() {
		return d, nil
	}

	// No slot to sit in means dinner is dropped for this booking, not an error.
	slot, ok := dinner.Resolve(dinner.ForEvent(e), req.DinnerSlot)
	if !ok {
		return d, nil
	}

	d.WantsDinner = true
	d.DinnerSlot = &slot
	d.DinnerPartySize = req.DinnerPartySize
	if d.DinnerPartySize < 1 {
		d.DinnerPartySize = d.PartySize
	}
	d.DinnerStatus = decideDinner(e, d, agg, req.ForceConfirm || (req.HoldSeat && d.Status == model.BookingConfirmed))
	return d, nil
}

func decideDinner(e *model.Event, d Decision, agg Aggregates, confirm bool) model.DinnerStatus {
	if confirm {
		return model.DinnerConfirmed
	}

	perSlot := e.Dinner.MaxSeatsPerSlot
	total := e.CapacityDinner
	if !perSlot.Limited() && !total.Limited() {
		if d.Status == model.BookingConfirmed {
			return model.DinnerConfirmed
		}
		return model.DinnerWaitlist
	}

	fits := d.Status == model.BookingConfirmed &&
		perSlot.Allows(agg.Slots.Of(*d.DinnerSlot).Confirmed+d.DinnerPartySize) &&
		total.Allows(agg.Slots.ConfirmedTotal()+d.DinnerPartySize)
	if fits {
		return model.DinnerConfirmed
	}

	switch e.Dinner.OverflowAction {
	case model.OverflowCocktails:
		return model.DinnerCocktails
	case model.OverflowBoth:
		return model.DinnerCocktailsWaitlist
	default:
		return model.DinnerWaitlist
	}
}
