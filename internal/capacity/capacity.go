// Package capacity sums the party sizes held by an event's bookings.
//
// Counts are always recomputed from the current set of bookings; nothing here keeps
// derived counters, so a decision can never be taken against a stale total.
package capacity

import (
	"context"
	"sort"
	"time"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
)

// Aggregator is the read side consulted by admission decisions. excludeID, when not
// empty, leaves one booking out of the sums so it can be re-evaluated in place.
type Aggregator interface {
	EventCounts(ctx context.Context, eventID, excludeID string) (model.Counts, error)
	SlotCounts(ctx context.Context, eventID, excludeID string) (Slots, error)
}

// Slots maps a dinner slot (in UTC) to the dinner party sizes booked for it.
type Slots map[time.Time]model.Counts

// Of returns the counts for slot.
func (s Slots) Of(slot time.Time) model.Counts {
	return s[slot.UTC()]
}

// ConfirmedTotal sums confirmed dinner seats over every slot.
func (s Slots) ConfirmedTotal() int {
	total := 0
	for _, c := range s {
		total += c.Confirmed
	}
	return total
}

// Tally sums party sizes of bookings by status, skipping excludeID.
func Tally(bookings []model.Booking, excludeID string) model.Counts {
	var c model.Counts
	for i := range bookings {
		b := &bookings[i]
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		switch b.Status {
		case model.BookingConfirmed:
			c.Confirmed += b.PartySize
		case model.BookingWaitlist:
			c.Waitlist += b.PartySize
		}
	}
	return c
}

// TallySlots sums dinner party sizes per slot, skipping excludeID.
// A booking redirected to cocktails holds no seat and is not counted.
func TallySlots(bookings []model.Booking, excludeID string) Slots {
	out := Slots{}
	for i := range bookings {
		b := &bookings[i]
		if (excludeID != "" && b.ID == excludeID) || b.DinnerSlot == nil {
			continue
		}
		key := b.DinnerSlot.UTC()
		c := out[key]
		switch {
		case b.DinnerStatus == model.DinnerConfirmed:
			c.Confirmed += b.DinnerPartySize
		case b.DinnerStatus.Queued():
			c.Waitlist += b.DinnerPartySize
		default:
			continue
		}
		out[key] = c
	}
	return out
}

// CocktailOnly sums the cocktail-only headcount of confirmed bookings.
func CocktailOnly(bookings []model.Booking) int {
	total := 0
	for i := range bookings {
		if bookings[i].Status == model.BookingConfirmed {
			total += bookings[i].CocktailHeadcount()
		}
	}
	return total
}

// Report lists counts for every generated slot in order, including empty ones.
func Report(slots []time.Time, counts Slots, perSlot model.Capacity) []model.SlotCounts {
	out := make([]model.SlotCounts, 0, len(slots))
	for _, s := range slots {
		c := counts.Of(s)
		out = append(out, model.SlotCounts{
			Slot:      s,
			Confirmed: c.Confirmed,
			Waitlist:  c.Waitlist,
			Remaining: perSlot.Remaining(c.Confirmed),
		})
	}
	return out
}

// Keys returns the slots present in s in chronological order.
func (s Slots) Keys() []time.Time {
	keys := make([]time.Time, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
