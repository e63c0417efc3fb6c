// Package dinner derives the bookable seating slots of an event's dinner window.
package dinner

import (
	"time"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
)

// MaxSlots bounds the enumeration so a tiny interval cannot produce an unbounded list.
const MaxSlots = 288

// Slots returns the ordered seating slots of d: windowStart, windowStart+interval, ...
// up to and including windowEnd. A disabled or incomplete config yields no slots.
func Slots(d *model.DinnerConfig) []time.Time {
	if d == nil || !d.Enabled || d.WindowStart == nil || d.WindowEnd == nil {
		return []time.Time{}
	}

	start := d.WindowStart.UTC()
	end := d.WindowEnd.UTC()
	interval := d.Interval()

	slots := []time.Time{}
	for cur := start; !cur.After(end) && len(slots) < MaxSlots; cur = cur.Add(interval) {
		slots = append(slots, cur)
	}
	return slots
}

// ForEvent is Slots applied to the event's dinner config.
func ForEvent(e *model.Event) []time.Time {
	if e == nil {
		return []time.Time{}
	}
	return Slots(e.Dinner)
}

// Contains reports whether t exactly matches one of slots.
func Contains(slots []time.Time, t time.Time) bool {
	for _, s := range slots {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

// Resolve picks the slot a booking lands in: the requested slot when it is one of
// slots, otherwise the first slot. ok is false when there are no slots at all.
func Resolve(slots []time.Time, requested *time.Time) (slot time.Time, ok bool) {
	if len(slots) == 0 {
		return time.Time{}, false
	}
	if requested != nil {
		for _, s := range slots {
			if s.Equal(*requested) {
				return s, true
			}
		}
	}
	return slots[0], true
}
