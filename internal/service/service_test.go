package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository/memory"
)

var dinnerStart = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *EventService {
	t.Helper()
	svc := NewEventService(memory.New())
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func mustEvent(t *testing.T, svc *EventService, req model.CreateEventRequest) *model.Event {
	t.Helper()
	if req.Title == "" {
		req.Title = "Garden Party"
	}
	e, err := svc.CreateEvent(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func mustRSVP(t *testing.T, svc *EventService, slug string, req model.RSVPRequest) *model.Booking {
	t.Helper()
	res, err := svc.AddRSVP(context.Background(), slug, req)
	if err != nil {
		t.Fatalf("AddRSVP(%s): %v", req.Email, err)
	}
	return res.Booking
}

func dinnerConfig(maxSeats model.Capacity, overflow model.OverflowAction) *model.DinnerConfig {
	end := dinnerStart.Add(4 * time.Hour)
	start := dinnerStart
	return &model.DinnerConfig{
		Enabled:              true,
		WindowStart:          &start,
		WindowEnd:            &end,
		SeatingIntervalHours: 2,
		MaxSeatsPerSlot:      maxSeats,
		OverflowAction:       overflow,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateEvent(t *testing.T) {
	svc := newTestService(t)

	e := mustEvent(t, svc, model.CreateEventRequest{
		Title:         "  Summer Party!  ",
		CapacityTotal: 10,
		Dinner:        dinnerConfig(4, ""),
	})
	if !strings.HasPrefix(e.Slug, "summer-party-") {
		t.Fatalf("slug = %q, want summer-party- prefix", e.Slug)
	}
	if e.Title != "Summer Party!" {
		t.Fatalf("title = %q", e.Title)
	}
	if e.Dinner.OverflowAction != model.OverflowWaitlist {
		t.Fatalf("overflow = %q, want waitlist", e.Dinner.OverflowAction)
	}

	got, err := svc.GetEvent(context.Background(), e.Slug)
	if err != nil || got.ID != e.ID {
		t.Fatalf("GetEvent = %v, %v", got, err)
	}
	if _, err := svc.GetEventByID(context.Background(), e.ID); err != nil {
		t.Fatalf("GetEventByID: %v", err)
	}
	if _, err := svc.GetEvent(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetEvent(missing) error = %v, want not_found", err)
	}
}

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name string
		req  model.CreateEventRequest
	}{
		{"empty title", model.CreateEventRequest{Title: "   "}},
		{"negative capacity", model.CreateEventRequest{Title: "x", CapacityTotal: -1}},
		{"too many plus ones", model.CreateEventRequest{Title: "x", MaxPlusOnesPerGuest: 4}},
		{"dinner without window", model.CreateEventRequest{Title: "x", Dinner: &model.DinnerConfig{Enabled: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			_, err := svc.CreateEvent(context.Background(), tt.req)
			if KindOf(err) != KindInvalidEvent {
				t.Fatalf("error = %v, want invalid_event", err)
			}
		})
	}
}

func TestAddRSVPClampsPlusOnes(t *testing.T) {
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{MaxPlusOnesPerGuest: 2})

	tests := []struct {
		plusOnes      int
		wantPlusOnes  int
		wantPartySize int
	}{
		{0, 0, 1},
		{2, 2, 3},
		{5, 2, 3},
		{-3, 0, 1},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(tt.plusOnes), func(t *testing.T) {
			b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{
				Email:    fmt.Sprintf("guest%d@example.com", i),
				PlusOnes: tt.plusOnes,
			})
			if b.PlusOnes != tt.wantPlusOnes || b.PartySize != tt.wantPartySize {
				t.Fatalf("plusOnes, partySize = %d, %d, want %d, %d",
					b.PlusOnes, b.PartySize, tt.wantPlusOnes, tt.wantPartySize)
			}
			if b.PartySize != 1+b.PlusOnes {
				t.Fatalf("party size %d != 1 + %d", b.PartySize, b.PlusOnes)
			}
		})
	}
}

func TestAddRSVPInvalidEmail(t *testing.T) {
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{})

	for _, email := range []string{"", "nope", "a@b", "@example.com", "a b@example.com"} {
		_, err := svc.AddRSVP(context.Background(), e.Slug, model.RSVPRequest{Email: email})
		if !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("AddRSVP(%q) error = %v, want invalid_email", email, err)
		}
	}
}

func TestAddRSVPUnknownEvent(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddRSVP(context.Background(), "missing", model.RSVPRequest{Email: "a@example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want not_found", err)
	}
}

func TestCapacityCeiling(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{
		CapacityTotal:       2,
		WaitlistEnabled:     true,
		MaxPlusOnesPerGuest: 1,
	})

	a := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com"})
	if a.Status != model.BookingConfirmed {
		t.Fatalf("A status = %s, want CONFIRMED", a.Status)
	}
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com", PlusOnes: 1})
	if b.Status != model.BookingWaitlist {
		t.Fatalf("B status = %s, want WAITLIST", b.Status)
	}

	counts, err := svc.GetEventCounts(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEventCounts: %v", err)
	}
	if counts != (model.Counts{Confirmed: 1, Waitlist: 2}) {
		t.Fatalf("counts = %+v, want {1 2}", counts)
	}

	if err := svc.DeleteRSVP(ctx, a.ID); err != nil {
		t.Fatalf("DeleteRSVP: %v", err)
	}
	b, err = svc.UpdateRSVP(ctx, b.ID, model.RSVPUpdate{}, model.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateRSVP: %v", err)
	}
	if b.Status != model.BookingConfirmed || b.CapacityOverridden {
		t.Fatalf("B after delete = %s overridden=%v, want CONFIRMED without override", b.Status, b.CapacityOverridden)
	}
	if _, err := svc.GetRSVP(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRSVP(deleted) error = %v, want not_found", err)
	}
}

func TestNoWaitlistRejection(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{CapacityTotal: 2, MaxPlusOnesPerGuest: 1})

	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com"})
	res, err := svc.AddRSVP(ctx, e.Slug, model.RSVPRequest{Email: "b@example.com", PlusOnes: 1})
	if !errors.Is(err, ErrFull) {
		t.Fatalf("error = %v, want full", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}

	list, err := svc.ListRSVPs(ctx, e.Slug)
	if err != nil {
		t.Fatalf("ListRSVPs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("bookings = %d, want 1", len(list))
	}
}

func TestCocktailOnlyLimit(t *testing.T) {
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{
		CapacityTotal:        10,
		CapacityCocktailOnly: 1,
		WaitlistEnabled:      true,
	})

	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com"})
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com"})
	if b.Status != model.BookingWaitlist {
		t.Fatalf("status = %s, want WAITLIST under the tighter limit", b.Status)
	}
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{MaxPlusOnesPerGuest: 3})

	first := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Name: "Ada", Email: "ada@example.com"})

	res, err := svc.AddRSVP(ctx, e.Slug, model.RSVPRequest{Name: "Other", Email: "  ADA@Example.com ", PlusOnes: 3})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("error = %v, want duplicate", err)
	}
	if res == nil || res.Booking == nil || res.Booking.ID != first.ID {
		t.Fatalf("result = %+v, want existing booking %s", res, first.ID)
	}
	if res.Booking.Name != "Ada" || res.Booking.PlusOnes != 0 {
		t.Fatalf("existing booking changed: %+v", res.Booking)
	}

	list, err := svc.ListRSVPs(ctx, e.Slug)
	if err != nil {
		t.Fatalf("ListRSVPs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("bookings = %d, want 1", len(list))
	}
}

func TestOverflowRouting(t *testing.T) {
	tests := []struct {
		overflow model.OverflowAction
		want     model.DinnerStatus
	}{
		{model.OverflowWaitlist, model.DinnerWaitlist},
		{model.OverflowCocktails, model.DinnerCocktails},
		{model.OverflowBoth, model.DinnerCocktailsWaitlist},
	}
	for _, tt := range tests {
		t.Run(string(tt.overflow), func(t *testing.T) {
			svc := newTestService(t)
			e := mustEvent(t, svc, model.CreateEventRequest{Dinner: dinnerConfig(1, tt.overflow)})
			slot := dinnerStart.Add(2 * time.Hour)

			first := mustRSVP(t, svc, e.Slug, model.RSVPRequest{
				Email: "a@example.com", WantsDinner: true, DinnerSlot: &slot, DinnerPartySize: ptr(1),
			})
			if first.DinnerStatus != model.DinnerConfirmed {
				t.Fatalf("first dinner status = %q, want confirmed", first.DinnerStatus)
			}
			if !first.DinnerSlot.Equal(slot) {
				t.Fatalf("first slot = %v, want %v", first.DinnerSlot, slot)
			}

			second := mustRSVP(t, svc, e.Slug, model.RSVPRequest{
				Email: "b@example.com", WantsDinner: true, DinnerSlot: &slot, DinnerPartySize: ptr(1),
			})
			if second.DinnerStatus != tt.want {
				t.Fatalf("second dinner status = %q, want %q", second.DinnerStatus, tt.want)
			}
			if second.Status != model.BookingConfirmed {
				t.Fatalf("second status = %s, want CONFIRMED", second.Status)
			}

			slots, err := svc.GetDinnerSlotCounts(context.Background(), e.ID)
			if err != nil {
				t.Fatalf("GetDinnerSlotCounts: %v", err)
			}
			if got := slots.Of(slot).Confirmed; got != 1 {
				t.Fatalf("slot confirmed = %d, want 1", got)
			}
		})
	}
}

func TestDinnerSlotResolution(t *testing.T) {
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{MaxPlusOnesPerGuest: 2, Dinner: dinnerConfig(0, "")})

	bogus := dinnerStart.Add(time.Hour)
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{
		Email: "a@example.com", PlusOnes: 2, WantsDinner: true, DinnerSlot: &bogus,
	})
	if b.DinnerSlot == nil || !b.DinnerSlot.Equal(dinnerStart) {
		t.Fatalf("slot = %v, want first slot %v", b.DinnerSlot, dinnerStart)
	}
	if b.DinnerPartySize != 3 {
		t.Fatalf("dinner party size = %d, want party size 3", b.DinnerPartySize)
	}
	if b.DinnerStatus != model.DinnerConfirmed {
		t.Fatalf("dinner status = %q, want confirmed", b.DinnerStatus)
	}

	z := mustRSVP(t, svc, e.Slug, model.RSVPRequest{
		Email: "z@example.com", WantsDinner: true, DinnerPartySize: ptr(0),
	})
	if z.DinnerPartySize != 1 {
		t.Fatalf("dinner party size = %d, want 1", z.DinnerPartySize)
	}

	got := svc.GenerateDinnerSlots(e)
	want := []time.Time{dinnerStart, dinnerStart.Add(2 * time.Hour), dinnerStart.Add(4 * time.Hour)}
	if len(got) != len(want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("slots[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDinnerUnavailable(t *testing.T) {
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{})

	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com", WantsDinner: true})
	if b.WantsDinner || b.DinnerSlot != nil || b.DinnerStatus != model.DinnerNone || b.DinnerPartySize != 0 {
		t.Fatalf("booking carries dinner state without dinner: %+v", b)
	}
}

func TestOverrideAuditTrail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{
		CapacityTotal:       1,
		WaitlistEnabled:     true,
		MaxPlusOnesPerGuest: 1,
		Dinner:              dinnerConfig(1, model.OverflowCocktails),
	})

	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com", WantsDinner: true})
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com", WantsDinner: true})
	if b.Status != model.BookingWaitlist {
		t.Fatalf("status = %s, want WAITLIST", b.Status)
	}

	b, err := svc.UpdateRSVP(ctx, b.ID, model.RSVPUpdate{}, model.UpdateOptions{ForceConfirm: true})
	if err != nil {
		t.Fatalf("forced UpdateRSVP: %v", err)
	}
	if b.Status != model.BookingConfirmed || b.DinnerStatus != model.DinnerConfirmed || !b.CapacityOverridden {
		t.Fatalf("forced booking = %s/%s overridden=%v, want CONFIRMED/confirmed overridden", b.Status, b.DinnerStatus, b.CapacityOverridden)
	}

	b, err = svc.UpdateRSVP(ctx, b.ID, model.RSVPUpdate{Name: ptr("Bea")}, model.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateRSVP: %v", err)
	}
	if b.Name != "Bea" || b.Status != model.BookingConfirmed || b.DinnerStatus != model.DinnerConfirmed || !b.CapacityOverridden {
		t.Fatalf("after plain edit = %+v, want unchanged admission", b)
	}

	// Growing the claim re-runs admission but the flag stays.
	b, err = svc.UpdateRSVP(ctx, b.ID, model.RSVPUpdate{PlusOnes: ptr(1)}, model.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateRSVP: %v", err)
	}
	if b.Status != model.BookingWaitlist || !b.CapacityOverridden {
		t.Fatalf("after growing = %s overridden=%v, want WAITLIST overridden", b.Status, b.CapacityOverridden)
	}
}

func TestUpdateRejectsWhenFull(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{CapacityTotal: 2, MaxPlusOnesPerGuest: 1})

	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com"})
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com"})

	if _, err := svc.UpdateRSVP(ctx, b.ID, model.RSVPUpdate{PlusOnes: ptr(1)}, model.UpdateOptions{}); !errors.Is(err, ErrFull) {
		t.Fatalf("error = %v, want full", err)
	}
	got, err := svc.GetRSVP(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetRSVP: %v", err)
	}
	if got.PlusOnes != 0 || got.Status != model.BookingConfirmed {
		t.Fatalf("booking changed after rejected update: %+v", got)
	}
}

func TestUpdateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{Dinner: dinnerConfig(0, "")})

	a := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com"})
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com"})

	bogus := dinnerStart.Add(30 * time.Minute)
	if _, err := svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{WantsDinner: ptr(true), DinnerSlot: &bogus}, model.UpdateOptions{}); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("bogus slot error = %v, want invalid_slot", err)
	}
	if _, err := svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{Email: ptr("broken")}, model.UpdateOptions{}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("bad email error = %v, want invalid_email", err)
	}

	other, err := svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{Email: ptr("B@example.com")}, model.UpdateOptions{})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("taken email error = %v, want duplicate", err)
	}
	if other == nil || other.ID != b.ID {
		t.Fatalf("duplicate returned %+v, want booking %s", other, b.ID)
	}

	if _, err := svc.UpdateRSVP(ctx, "missing", model.RSVPUpdate{}, model.UpdateOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing booking error = %v, want not_found", err)
	}

	slot := dinnerStart.Add(4 * time.Hour)
	a, err = svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{
		Email:       ptr("A2@Example.com"),
		WantsDinner: ptr(true),
		DinnerSlot:  &slot,
	}, model.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateRSVP: %v", err)
	}
	if a.Email != "a2@example.com" || !a.DinnerSlot.Equal(slot) || a.DinnerStatus != model.DinnerConfirmed {
		t.Fatalf("updated booking = %+v", a)
	}

	a, err = svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{WantsDinner: ptr(false)}, model.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateRSVP: %v", err)
	}
	if a.WantsDinner || a.DinnerSlot != nil || a.DinnerStatus != model.DinnerNone {
		t.Fatalf("dinner not cleared: %+v", a)
	}
}

func TestWaitlistPromotion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{Dinner: dinnerConfig(2, model.OverflowBoth)})

	a := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com", WantsDinner: true, DinnerPartySize: ptr(2)})
	b := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com", WantsDinner: true, DinnerPartySize: ptr(1)})
	if b.DinnerStatus != model.DinnerCocktailsWaitlist {
		t.Fatalf("b dinner status = %q, want cocktails_waitlist", b.DinnerStatus)
	}

	if _, err := svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{DinnerPartySize: ptr(1)}, model.UpdateOptions{}); err != nil {
		t.Fatalf("UpdateRSVP(a): %v", err)
	}
	b, err := svc.UpdateRSVP(ctx, b.ID, model.RSVPUpdate{}, model.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateRSVP(b): %v", err)
	}
	if b.DinnerStatus != model.DinnerConfirmed {
		t.Fatalf("b dinner status = %q, want confirmed", b.DinnerStatus)
	}
}

func TestCheckInBound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{MaxPlusOnesPerGuest: 3, Dinner: dinnerConfig(0, "")})

	diner := mustRSVP(t, svc, e.Slug, model.RSVPRequest{
		Email: "a@example.com", PlusOnes: 2, WantsDinner: true, DinnerPartySize: ptr(2),
	})
	plain := mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com", PlusOnes: 1})

	tests := []struct {
		name         string
		id           string
		req          model.CheckInRequest
		wantCocktail int
		wantDinner   int
	}{
		{"diner arrives", diner.ID, model.CheckInRequest{Cocktail: 1, Dinner: 1}, 1, 1},
		{"diner overshoots", diner.ID, model.CheckInRequest{Cocktail: 10, Dinner: 10}, 2, 2},
		{"diner undo", diner.ID, model.CheckInRequest{Cocktail: -1, Dinner: -5}, 1, 0},
		{"plain overshoots", plain.ID, model.CheckInRequest{Cocktail: 5, Dinner: 5}, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := svc.CheckIn(ctx, tt.id, tt.req)
			if err != nil {
				t.Fatalf("CheckIn: %v", err)
			}
			if b.CocktailArrivedCount != tt.wantCocktail || b.DinnerArrivedCount != tt.wantDinner {
				t.Fatalf("arrived = %d/%d, want %d/%d", b.CocktailArrivedCount, b.DinnerArrivedCount, tt.wantCocktail, tt.wantDinner)
			}
			if b.Status != model.BookingConfirmed {
				t.Fatalf("status = %s, want CONFIRMED", b.Status)
			}
		})
	}

	if _, err := svc.CheckIn(ctx, "missing", model.CheckInRequest{Cocktail: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CheckIn(missing) error = %v, want not_found", err)
	}
}

func TestEventSummary(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{
		CapacityTotal:       5,
		WaitlistEnabled:     true,
		MaxPlusOnesPerGuest: 2,
		Dinner:              dinnerConfig(3, model.OverflowWaitlist),
	})

	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com", PlusOnes: 2, WantsDinner: true})
	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "b@example.com", PlusOnes: 1})
	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "c@example.com", PlusOnes: 1})

	sum, err := svc.GetEventSummary(ctx, e.Slug)
	if err != nil {
		t.Fatalf("GetEventSummary: %v", err)
	}
	if sum.Counts != (model.Counts{Confirmed: 5, Waitlist: 2}) {
		t.Fatalf("counts = %+v, want {5 2}", sum.Counts)
	}
	if sum.Limit != 5 || sum.Remaining != 0 {
		t.Fatalf("limit, remaining = %d, %d, want 5, 0", sum.Limit, sum.Remaining)
	}
	// a: dinner confirmed, so only the two plus-ones; b: whole party.
	if sum.CocktailOnly != 4 {
		t.Fatalf("cocktail only = %d, want 4", sum.CocktailOnly)
	}
	if len(sum.DinnerSlots) != 3 {
		t.Fatalf("dinner slots = %d, want 3", len(sum.DinnerSlots))
	}
	if first := sum.DinnerSlots[0]; first.Confirmed != 3 || first.Remaining != 0 {
		t.Fatalf("first slot = %+v, want 3 confirmed, 0 remaining", first)
	}
	if last := sum.DinnerSlots[2]; last.Confirmed != 0 || last.Remaining != 3 {
		t.Fatalf("last slot = %+v, want empty", last)
	}
}

func TestConcurrentAdmissions(t *testing.T) {
	const (
		limit   = 10
		workers = 60
	)
	ctx := context.Background()
	svc := newTestService(t)
	e := mustEvent(t, svc, model.CreateEventRequest{CapacityTotal: limit})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddRSVP(ctx, e.Slug, model.RSVPRequest{Email: fmt.Sprintf("guest%d@example.com", i)})
			switch {
			case errors.Is(err, ErrFull):
				mu.Lock()
				full++
				mu.Unlock()
			case err != nil:
				t.Errorf("AddRSVP: %v", err)
			}
		}(i)
	}
	wg.Wait()

	counts, err := svc.GetEventCounts(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEventCounts: %v", err)
	}
	if counts.Confirmed != limit {
		t.Fatalf("confirmed = %d, want %d", counts.Confirmed, limit)
	}
	if full != workers-limit {
		t.Fatalf("rejected = %d, want %d", full, workers-limit)
	}
}

func TestErrorKinds(t *testing.T) {
	err := error(&Error{Kind: KindFull, Message: "event is full"})
	if !errors.Is(err, ErrFull) || errors.Is(err, ErrDuplicate) {
		t.Fatalf("errors.Is mismatch for %v", err)
	}
	if KindOf(fmt.Errorf("wrapped: %w", err)) != KindFull {
		t.Fatalf("KindOf(wrapped) = %s, want full", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindStorage {
		t.Fatal("untagged errors should be storage errors")
	}
}

func TestPlainEditKeepsConfirmedPlace(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		event      model.CreateEventRequest
		first      model.RSVPRequest
		second     model.RSVPRequest
		force      model.RSVPUpdate
		wantDinner model.DinnerStatus
	}{
		{
			name:   "waitlist on",
			event:  model.CreateEventRequest{CapacityTotal: 2, MaxPlusOnesPerGuest: 1, WaitlistEnabled: true},
			first:  model.RSVPRequest{Email: "a@example.com", PlusOnes: 1},
			second: model.RSVPRequest{Email: "b@example.com"},
		},
		{
			name:   "no waitlist",
			event:  model.CreateEventRequest{CapacityTotal: 2, MaxPlusOnesPerGuest: 1},
			first:  model.RSVPRequest{Email: "a@example.com"},
			second: model.RSVPRequest{Email: "b@example.com"},
			force:  model.RSVPUpdate{PlusOnes: ptr(1)},
		},
		{
			name: "dinner seat",
			event: model.CreateEventRequest{
				CapacityTotal: 2,
				Dinner:        dinnerConfig(1, model.OverflowCocktails),
			},
			first:      model.RSVPRequest{Email: "a@example.com", WantsDinner: true, DinnerSlot: &dinnerStart},
			second:     model.RSVPRequest{Email: "b@example.com", WantsDinner: true, DinnerSlot: &dinnerStart},
			wantDinner: model.DinnerConfirmed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			e := mustEvent(t, svc, tt.event)
			a := mustRSVP(t, svc, e.Slug, tt.first)
			b := mustRSVP(t, svc, e.Slug, tt.second)
			if a.Status != model.BookingConfirmed || a.DinnerStatus != tt.wantDinner {
				t.Fatalf("first booking = %s/%q, want CONFIRMED/%q", a.Status, a.DinnerStatus, tt.wantDinner)
			}

			if _, err := svc.UpdateRSVP(ctx, b.ID, tt.force, model.UpdateOptions{ForceConfirm: true}); err != nil {
				t.Fatalf("forced UpdateRSVP: %v", err)
			}

			got, err := svc.UpdateRSVP(ctx, a.ID, model.RSVPUpdate{Name: ptr("Ann")}, model.UpdateOptions{})
			if err != nil {
				t.Fatalf("UpdateRSVP: %v", err)
			}
			if got.Name != "Ann" || got.Status != model.BookingConfirmed || got.DinnerStatus != tt.wantDinner {
				t.Fatalf("after rename = %q %s/%q, want Ann CONFIRMED/%q", got.Name, got.Status, got.DinnerStatus, tt.wantDinner)
			}
			if got.CapacityOverridden {
				t.Fatalf("renamed booking flagged as overridden")
			}
		})
	}
}

func TestUpdateReclampsArrivals(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		event        model.CreateEventRequest
		rsvp         model.RSVPRequest
		checkIn      model.CheckInRequest
		upd          model.RSVPUpdate
		wantCocktail int
		wantDinner   int
	}{
		{
			name:         "party shrinks",
			event:        model.CreateEventRequest{MaxPlusOnesPerGuest: 3},
			rsvp:         model.RSVPRequest{Email: "a@example.com", PlusOnes: 3},
			checkIn:      model.CheckInRequest{Cocktail: 4},
			upd:          model.RSVPUpdate{PlusOnes: ptr(0)},
			wantCocktail: 1,
		},
		{
			name:         "dinner confirmed",
			event:        model.CreateEventRequest{MaxPlusOnesPerGuest: 1, Dinner: dinnerConfig(0, "")},
			rsvp:         model.RSVPRequest{Email: "a@example.com", PlusOnes: 1},
			checkIn:      model.CheckInRequest{Cocktail: 2},
			upd:          model.RSVPUpdate{WantsDinner: ptr(true)},
			wantCocktail: 1,
		},
		{
			name:  "dinner party shrinks",
			event: model.CreateEventRequest{MaxPlusOnesPerGuest: 2, Dinner: dinnerConfig(0, "")},
			rsvp: model.RSVPRequest{
				Email: "a@example.com", PlusOnes: 2, WantsDinner: true, DinnerPartySize: ptr(3),
			},
			checkIn:    model.CheckInRequest{Dinner: 3},
			upd:        model.RSVPUpdate{DinnerPartySize: ptr(1)},
			wantDinner: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			e := mustEvent(t, svc, tt.event)
			b := mustRSVP(t, svc, e.Slug, tt.rsvp)
			if _, err := svc.CheckIn(ctx, b.ID, tt.checkIn); err != nil {
				t.Fatalf("CheckIn: %v", err)
			}

			got, err := svc.UpdateRSVP(ctx, b.ID, tt.upd, model.UpdateOptions{})
			if err != nil {
				t.Fatalf("UpdateRSVP: %v", err)
			}
			if got.CocktailArrivedCount != tt.wantCocktail || got.DinnerArrivedCount != tt.wantDinner {
				t.Fatalf("arrived = %d/%d, want %d/%d", got.CocktailArrivedCount, got.DinnerArrivedCount, tt.wantCocktail, tt.wantDinner)
			}
			if got.CocktailArrivedCount > got.CocktailHeadcount() || got.DinnerArrivedCount > got.DinnerHeadcount() {
				t.Fatalf("arrived %d/%d exceeds headcount %d/%d",
					got.CocktailArrivedCount, got.DinnerArrivedCount, got.CocktailHeadcount(), got.DinnerHeadcount())
			}
		})
	}
}

func TestDinnerWindowTruncatedToSecond(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	cfg := dinnerConfig(2, "")
	start := dinnerStart.Add(123456789 * time.Nanosecond)
	end := dinnerStart.Add(4*time.Hour + 999*time.Nanosecond)
	cfg.WindowStart, cfg.WindowEnd = &start, &end
	e := mustEvent(t, svc, model.CreateEventRequest{Dinner: cfg})

	if !e.Dinner.WindowStart.Equal(dinnerStart) || !e.Dinner.WindowEnd.Equal(dinnerStart.Add(4*time.Hour)) {
		t.Fatalf("window = %v..%v, want whole seconds", e.Dinner.WindowStart, e.Dinner.WindowEnd)
	}
	slots := svc.GenerateDinnerSlots(e)
	if len(slots) != 3 {
		t.Fatalf("slots = %v, want 3", slots)
	}
	for _, s := range slots {
		if s.Nanosecond() != 0 {
			t.Fatalf("slot %v has sub-second part", s)
		}
	}

	mustRSVP(t, svc, e.Slug, model.RSVPRequest{Email: "a@example.com", WantsDinner: true, DinnerSlot: &slots[1]})
	counts, err := svc.GetDinnerSlotCounts(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetDinnerSlotCounts: %v", err)
	}
	if got := counts.Of(slots[1]).Confirmed; got != 1 {
		t.Fatalf("slot confirmed = %d, want 1", got)
	}
}
