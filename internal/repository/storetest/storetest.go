// Package storetest holds the behaviour every repository.Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository"
)

// Factory returns an empty store; it is called once per subtest.
type Factory func(t *testing.T) repository.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("bookings", func(t *testing.T) { testBookings(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("aggregates", func(t *testing.T) { testAggregates(t, newStore(t)) })
	t.Run("serialised", func(t *testing.T) { testSerialised(t, newStore(t)) })
}

var base = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// NewEvent builds a minimal event with a fresh id and slug.
func NewEvent(limit model.Capacity) *model.Event {
	id := uuid.New().String()
	return &model.Event{
		ID:              id,
		Slug:            "party-" + id[:8],
		Title:           "Party",
		CapacityTotal:   limit,
		WaitlistEnabled: true,
		CreatedAt:       base,
	}
}

// NewBooking builds a booking for e with the given email and status.
func NewBooking(e *model.Event, email string, status model.BookingStatus, plusOnes int, at time.Time) *model.Booking {
	return &model.Booking{
		ID:        uuid.New().String(),
		EventID:   e.ID,
		Email:     email,
		PlusOnes:  plusOnes,
		PartySize: model.PartySizeFor(plusOnes),
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func mustCreate(t *testing.T, s repository.Store, e *model.Event) {
	t.Helper()
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
}

func insert(t *testing.T, s repository.Store, b *model.Booking) {
	t.Helper()
	err := s.WithinEvent(context.Background(), b.EventID, func(tx repository.EventTx) error {
		return tx.InsertBooking(context.Background(), b)
	})
	if err != nil {
		t.Fatalf("InsertBooking: %v", err)
	}
}

func testEvents(t *testing.T, s repository.Store) {
	ctx := context.Background()
	start := base.Add(6 * time.Hour)
	end := start.Add(4 * time.Hour)

	e := NewEvent(40)
	e.Dinner = &model.DinnerConfig{
		Enabled:              true,
		WindowStart:          &start,
		WindowEnd:            &end,
		SeatingIntervalHours: 2,
		MaxSeatsPerSlot:      12,
		OverflowAction:       model.OverflowBoth,
	}
	mustCreate(t, s, e)

	got, err := s.GetEventBySlug(ctx, e.Slug)
	if err != nil {
		t.Fatalf("GetEventBySlug: %v", err)
	}
	if got.ID != e.ID || got.CapacityTotal != 40 || !got.WaitlistEnabled {
		t.Fatalf("event = %+v, want %+v", got, e)
	}
	if got.Dinner == nil || got.Dinner.MaxSeatsPerSlot != 12 || got.Dinner.OverflowAction != model.OverflowBoth {
		t.Fatalf("dinner = %+v", got.Dinner)
	}
	if !got.Dinner.WindowStart.Equal(start) || !got.Dinner.WindowEnd.Equal(end) {
		t.Fatalf("dinner window = %v..%v, want %v..%v", got.Dinner.WindowStart, got.Dinner.WindowEnd, start, end)
	}

	if _, err := s.GetEvent(ctx, e.ID); err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if _, err := s.GetEvent(ctx, uuid.New().String()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetEvent(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetEventBySlug(ctx, "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetEventBySlug(unknown) error = %v, want ErrNotFound", err)
	}

	dup := NewEvent(1)
	dup.Slug = e.Slug
	if err := s.CreateEvent(ctx, dup); !errors.Is(err, repository.ErrSlugTaken) {
		t.Fatalf("CreateEvent(dup slug) error = %v, want ErrSlugTaken", err)
	}

	err = s.WithinEvent(ctx, uuid.New().String(), func(repository.EventTx) error { return nil })
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("WithinEvent(unknown) error = %v, want ErrNotFound", err)
	}
}

func testBookings(t *testing.T, s repository.Store) {
	ctx := context.Background()
	e := NewEvent(10)
	mustCreate(t, s, e)

	a := NewBooking(e, "a@example.com", model.BookingConfirmed, 1, base)
	b := NewBooking(e, "b@example.com", model.BookingWaitlist, 0, base.Add(time.Minute))
	insert(t, s, b)
	insert(t, s, a)

	list, err := s.ListBookings(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("ListBookings order = %v, want [a b]", ids(list))
	}

	err = s.WithinEvent(ctx, e.ID, func(tx repository.EventTx) error {
		if tx.Event().ID != e.ID {
			return fmt.Errorf("tx event = %s, want %s", tx.Event().ID, e.ID)
		}
		found, err := tx.FindByEmail(ctx, "a@example.com")
		if err != nil {
			return fmt.Errorf("FindByEmail: %w", err)
		}
		if found.ID != a.ID {
			return fmt.Errorf("FindByEmail = %s, want %s", found.ID, a.ID)
		}
		if _, err := tx.FindByEmail(ctx, "c@example.com"); !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("FindByEmail(unknown) error = %v", err)
		}

		dup := NewBooking(e, "a@example.com", model.BookingConfirmed, 0, base)
		if err := tx.InsertBooking(ctx, dup); !errors.Is(err, repository.ErrEmailTaken) {
			return fmt.Errorf("InsertBooking(dup) error = %v", err)
		}

		moved := *b
		moved.Email = "a@example.com"
		if err := tx.UpdateBooking(ctx, &moved); !errors.Is(err, repository.ErrEmailTaken) {
			return fmt.Errorf("UpdateBooking(taken email) error = %v", err)
		}

		renamed := *b
		renamed.Email = "c@example.com"
		renamed.Status = model.BookingConfirmed
		if err := tx.UpdateBooking(ctx, &renamed); err != nil {
			return fmt.Errorf("UpdateBooking: %w", err)
		}
		return tx.DeleteBooking(ctx, a.ID)
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetBooking(ctx, a.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetBooking(deleted) error = %v, want ErrNotFound", err)
	}
	got, err := s.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Email != "c@example.com" || got.Status != model.BookingConfirmed {
		t.Fatalf("booking = %+v", got)
	}

	// The freed email can be used again, the old one of the renamed booking too.
	insert(t, s, NewBooking(e, "a@example.com", model.BookingConfirmed, 0, base))
	insert(t, s, NewBooking(e, "b@example.com", model.BookingConfirmed, 0, base))

	err = s.WithinEvent(ctx, e.ID, func(tx repository.EventTx) error {
		return tx.DeleteBooking(ctx, a.ID)
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("DeleteBooking(deleted) error = %v, want ErrNotFound", err)
	}
}

func testRollback(t *testing.T, s repository.Store) {
	ctx := context.Background()
	e := NewEvent(10)
	mustCreate(t, s, e)
	kept := NewBooking(e, "kept@example.com", model.BookingConfirmed, 0, base)
	insert(t, s, kept)

	boom := errors.New("boom")
	err := s.WithinEvent(ctx, e.ID, func(tx repository.EventTx) error {
		if err := tx.InsertBooking(ctx, NewBooking(e, "lost@example.com", model.BookingConfirmed, 0, base)); err != nil {
			return err
		}
		if err := tx.DeleteBooking(ctx, kept.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinEvent error = %v, want boom", err)
	}

	list, err := s.ListBookings(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(list) != 1 || list[0].ID != kept.ID {
		t.Fatalf("bookings after rollback = %v, want [%s]", ids(list), kept.ID)
	}
	if _, err := s.GetBooking(ctx, kept.ID); err != nil {
		t.Fatalf("GetBooking(kept) after rollback: %v", err)
	}
}

func testAggregates(t *testing.T, s repository.Store) {
	ctx := context.Background()
	e := NewEvent(10)
	mustCreate(t, s, e)
	slot := base.Add(6 * time.Hour)

	a := NewBooking(e, "a@example.com", model.BookingConfirmed, 2, base)
	a.WantsDinner, a.DinnerSlot, a.DinnerPartySize, a.DinnerStatus = true, &slot, 2, model.DinnerConfirmed
	b := NewBooking(e, "b@example.com", model.BookingWaitlist, 1, base)
	b.WantsDinner, b.DinnerSlot, b.DinnerPartySize, b.DinnerStatus = true, &slot, 4, model.DinnerCocktailsWaitlist
	c := NewBooking(e, "c@example.com", model.BookingConfirmed, 0, base)
	c.WantsDinner, c.DinnerSlot, c.DinnerPartySize, c.DinnerStatus = true, &slot, 1, model.DinnerCocktails
	for _, bk := range []*model.Booking{a, b, c} {
		insert(t, s, bk)
	}

	counts, err := s.EventCounts(ctx, e.ID, "")
	if err != nil {
		t.Fatalf("EventCounts: %v", err)
	}
	if counts != (model.Counts{Confirmed: 4, Waitlist: 2}) {
		t.Fatalf("EventCounts = %+v, want {4 2}", counts)
	}

	slots, err := s.SlotCounts(ctx, e.ID, "")
	if err != nil {
		t.Fatalf("SlotCounts: %v", err)
	}
	if got := slots.Of(slot); got != (model.Counts{Confirmed: 2, Waitlist: 4}) {
		t.Fatalf("SlotCounts = %+v, want {2 4}", got)
	}

	err = s.WithinEvent(ctx, e.ID, func(tx repository.EventTx) error {
		counts, err := tx.EventCounts(ctx, e.ID, a.ID)
		if err != nil {
			return err
		}
		if counts != (model.Counts{Confirmed: 1, Waitlist: 2}) {
			return fmt.Errorf("tx EventCounts excluding a = %+v, want {1 2}", counts)
		}
		slots, err := tx.SlotCounts(ctx, e.ID, a.ID)
		if err != nil {
			return err
		}
		if got := slots.Of(slot); got != (model.Counts{Waitlist: 4}) {
			return fmt.Errorf("tx SlotCounts excluding a = %+v, want {0 4}", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// testSerialised fires concurrent check-then-act transactions at one event and checks
// that none of them observed a stale count.
func testSerialised(t *testing.T, s repository.Store) {
	ctx := context.Background()
	const (
		limit   = 5
		workers = 40
	)
	e := NewEvent(limit)
	mustCreate(t, s, e)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithinEvent(ctx, e.ID, func(tx repository.EventTx) error {
				counts, err := tx.EventCounts(ctx, e.ID, "")
				if err != nil {
					return err
				}
				status := model.BookingWaitlist
				if counts.Confirmed < limit {
					status = model.BookingConfirmed
				}
				return tx.InsertBooking(ctx, NewBooking(e, fmt.Sprintf("guest%d@example.com", i), status, 0, base))
			})
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	counts, err := s.EventCounts(ctx, e.ID, "")
	if err != nil {
		t.Fatalf("EventCounts: %v", err)
	}
	if counts.Confirmed != limit || counts.Waitlist != workers-limit {
		t.Fatalf("counts = %+v, want {%d %d}", counts, limit, workers-limit)
	}
}

func ids(list []model.Booking) []string {
	out := make([]string, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}
