// Package service implements the booking mutation engine: validation, duplicate
// detection and orchestration between the transport layer, the admission controller
// and the repository layer.
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/admission"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/dinner"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository"
)

var tracer = otel.GetTracerProvider().Tracer("github.com/Shivanand-hulikatti/event-rsvp/internal/service")

// slugAttempts bounds the retries when a generated slug collides.
const slugAttempts = 3

// EventService orchestrates event and RSVP operations.
type EventService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewEventService constructs an EventService on store.
func NewEventService(store repository.Store) *EventService {
	return &EventService{
		store:  store,
		logger: slog.Default().WithGroup("service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent validates the request and stores a new event under a fresh slug.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "CreateEvent")
	defer span.End()

	req.Title = strings.TrimSpace(req.Title)
	if err := req.Validate(); err != nil {
		return nil, s.fail(ctx, span, &Error{Kind: KindInvalidEvent, Message: err.Error()})
	}

	event := &model.Event{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          strings.TrimSpace(req.Description),
		StartsAt:             utcPtr(req.StartsAt),
		CapacityTotal:        req.CapacityTotal,
		CapacityCocktailOnly: req.CapacityCocktailOnly,
		CapacityDinner:       req.CapacityDinner,
		WaitlistEnabled:      req.WaitlistEnabled,
		MaxPlusOnesPerGuest:  req.MaxPlusOnesPerGuest,
		Dinner:               normalizeDinner(req.Dinner),
		CreatedAt:            s.now(),
	}

	var err error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		event.Slug = newSlug(event.Title)
		if err = s.store.CreateEvent(ctx, event); !errors.Is(err, repository.ErrSlugTaken) {
			break
		}
	}
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	span.SetAttributes(attribute.String("event.id", event.ID), attribute.String("event.slug", event.Slug))
	s.logger.InfoContext(ctx, "event created", "event_id", event.ID, "slug", event.Slug,
		"limit", int(event.PrimaryLimit()), "dinner", event.DinnerEnabled())
	return event, nil
}

// GetEvent returns an event by slug.
func (s *EventService) GetEvent(ctx context.Context, slug string) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "GetEvent")
	defer span.End()

	e, err := s.store.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return e, nil
}

// GetEventByID returns an event by id.
func (s *EventService) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "GetEventByID")
	defer span.End()

	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return e, nil
}

// GenerateDinnerSlots returns the event's ordered seating slots.
func (s *EventService) GenerateDinnerSlots(e *model.Event) []time.Time {
	return dinner.ForEvent(e)
}

// GetEventCounts sums confirmed and waitlisted party sizes. The result is advisory.
func (s *EventService) GetEventCounts(ctx context.Context, eventID string) (model.Counts, error) {
	ctx, span := tracer.Start(ctx, "GetEventCounts")
	defer span.End()

	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return model.Counts{}, s.fail(ctx, span, err)
	}
	c, err := s.store.EventCounts(ctx, eventID, "")
	if err != nil {
		return model.Counts{}, s.fail(ctx, span, err)
	}
	return c, nil
}

// GetDinnerSlotCounts sums dinner party sizes per slot. The result is advisory.
func (s *EventService) GetDinnerSlotCounts(ctx context.Context, eventID string) (capacity.Slots, error) {
	ctx, span := tracer.Start(ctx, "GetDinnerSlotCounts")
	defer span.End()

	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, s.fail(ctx, span, err)
	}
	slots, err := s.store.SlotCounts(ctx, eventID, "")
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return slots, nil
}

// GetEventSummary reports counts, remaining spots and per-slot seating for display.
func (s *EventService) GetEventSummary(ctx context.Context, slug string) (*model.EventSummary, error) {
	ctx, span := tracer.Start(ctx, "GetEventSummary")
	defer span.End()

	e, err := s.store.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	bookings, err := s.store.ListBookings(ctx, e.ID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	counts := capacity.Tally(bookings, "")
	limit := e.PrimaryLimit()
	summary := &model.EventSummary{
		Event:        e,
		Counts:       counts,
		Limit:        limit,
		Remaining:    limit.Remaining(counts.Confirmed),
		CocktailOnly: capacity.CocktailOnly(bookings),
		DinnerSlots:  []model.SlotCounts{},
	}
	if e.DinnerEnabled() {
		summary.DinnerSlots = capacity.Report(dinner.ForEvent(e), capacity.TallySlots(bookings, ""), e.Dinner.MaxSeatsPerSlot)
	}
	return summary, nil
}

// ─── RSVPs ────────────────────────────────────────────────────────────────────

// GetRSVP returns a single booking.
func (s *EventService) GetRSVP(ctx context.Context, id string) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "GetRSVP")
	defer span.End()

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return b, nil
}

// ListRSVPs returns an event's bookings in the order they were created.
func (s *EventService) ListRSVPs(ctx context.Context, slug string) ([]model.Booking, error) {
	ctx, span := tracer.Start(ctx, "ListRSVPs")
	defer span.End()

	e, err := s.store.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	bookings, err := s.store.ListBookings(ctx, e.ID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	return bookings, nil
}

// AddRSVP admits a new booking to the event identified by slug.
//
// When the email already holds a booking the error is ErrDuplicate and the returned
// result carries that existing booking, unchanged.
func (s *EventService) AddRSVP(ctx context.Context, slug string, req model.RSVPRequest) (*model.RSVPResult, error) {
	ctx, span := tracer.Start(ctx, "AddRSVP")
	defer span.End()

	email := model.NormalizeEmail(req.Email)
	if !model.ValidEmail(email) {
		return nil, s.fail(ctx, span, newError(KindInvalidEmail, "%q is not a valid email address", req.Email))
	}

	event, err := s.store.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.String("event.id", event.ID))

	var booking, existing *model.Booking
	err = s.store.WithinEvent(ctx, event.ID, func(tx repository.EventTx) error {
		e := tx.Event()
		event = e

		prev, err := tx.FindByEmail(ctx, email)
		switch {
		case err == nil:
			existing = prev
			return newError(KindDuplicate, "%s is already on the list", email)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		plusOnes := e.ClampPlusOnes(req.PlusOnes)
		agg, err := aggregates(ctx, tx, e.ID, "")
		if err != nil {
			return err
		}

		d, err := admission.Decide(e, admission.Request{
			PlusOnes:        plusOnes,
			WantsDinner:     req.WantsDinner,
			DinnerSlot:      req.DinnerSlot,
			DinnerPartySize: dinnerPartySize(req.DinnerPartySize, 0),
		}, agg)
		if err != nil {
			return admissionError(err)
		}

		now := s.now()
		b := &model.Booking{
			ID:        uuid.NewString(),
			EventID:   e.ID,
			Email:     email,
			Name:      strings.TrimSpace(req.Name),
			PlusOnes:  plusOnes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.Apply(b)
		if err := tx.InsertBooking(ctx, b); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				return newError(KindDuplicate, "%s is already on the list", email)
			}
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		if existing != nil {
			return &model.RSVPResult{Event: event, Booking: existing}, s.fail(ctx, span, err)
		}
		return nil, s.fail(ctx, span, err)
	}

	s.logDecision(ctx, "rsvp added", booking)
	return &model.RSVPResult{Event: event, Booking: booking}, nil
}

// UpdateRSVP applies a partial edit and re-runs admission for the booking.
//
// With opts.ForceConfirm every capacity check is skipped and the booking is flagged as
// overridden for good. A confirmed place or dinner seat is kept on an edit that does not
// grow it; anything else is decided again, which is how waitlisted guests get promoted.
// When the email moves onto another booking of the event the error is ErrDuplicate and
// that other booking is returned.
func (s *EventService) UpdateRSVP(ctx context.Context, id string, upd model.RSVPUpdate, opts model.UpdateOptions) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "UpdateRSVP", trace.WithAttributes(
		attribute.String("rsvp.id", id),
		attribute.Bool("rsvp.force_confirm", opts.ForceConfirm),
	))
	defer span.End()

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	var updated, other *model.Booking
	err = s.store.WithinEvent(ctx, current.EventID, func(tx repository.EventTx) error {
		e := tx.Event()
		prev, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		b := *prev

		if upd.Name != nil {
			b.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Email != nil {
			email := model.NormalizeEmail(*upd.Email)
			if !model.ValidEmail(email) {
				return newError(KindInvalidEmail, "%q is not a valid email address", *upd.Email)
			}
			if email != prev.Email {
				taken, err := tx.FindByEmail(ctx, email)
				switch {
				case err == nil:
					other = taken
					return newError(KindDuplicate, "%s is already on the list", email)
				case !errors.Is(err, repository.ErrNotFound):
					return err
				}
			}
			b.Email = email
		}

		plusOnes := e.ClampPlusOnes(prev.PlusOnes)
		if upd.PlusOnes != nil {
			plusOnes = e.ClampPlusOnes(*upd.PlusOnes)
		}
		wants := prev.WantsDinner
		if upd.WantsDinner != nil {
			wants = *upd.WantsDinner
		}
		slot := prev.DinnerSlot
		if upd.DinnerSlot != nil {
			if !dinner.Contains(dinner.ForEvent(e), *upd.DinnerSlot) {
				return newError(KindInvalidSlot, "%s is not a dinner slot of this event", upd.DinnerSlot.UTC().Format(time.RFC3339))
			}
			slot = utcPtr(upd.DinnerSlot)
		}
		dps := dinnerPartySize(upd.DinnerPartySize, prev.DinnerPartySize)

		req := admission.Request{
			PlusOnes:        plusOnes,
			WantsDinner:     wants,
			DinnerSlot:      slot,
			DinnerPartySize: dps,
			ForceConfirm:    opts.ForceConfirm,
		}
		req.HoldPlace, req.HoldSeat = holds(prev, req)

		agg, err := aggregates(ctx, tx, e.ID, id)
		if err != nil {
			return err
		}
		d, err := admission.Decide(e, req, agg)
		if err != nil {
			return admissionError(err)
		}
		b.PlusOnes = plusOnes
		d.Apply(&b)

		// A smaller party or a newly confirmed dinner seat lowers the arrival bounds.
		b.CocktailArrivedCount = clamp(b.CocktailArrivedCount, b.CocktailHeadcount())
		b.DinnerArrivedCount = clamp(b.DinnerArrivedCount, b.DinnerHeadcount())
		b.UpdatedAt = s.now()
		if err := tx.UpdateBooking(ctx, &b); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				return newError(KindDuplicate, "%s is already on the list", b.Email)
			}
			return err
		}
		updated = &b
		return nil
	})
	if err != nil {
		if other != nil {
			return other, s.fail(ctx, span, err)
		}
		return nil, s.fail(ctx, span, err)
	}

	s.logDecision(ctx, "rsvp updated", updated)
	return updated, nil
}

// DeleteRSVP removes a booking, freeing its capacity for the next decision.
func (s *EventService) DeleteRSVP(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "DeleteRSVP", trace.WithAttributes(attribute.String("rsvp.id", id)))
	defer span.End()

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return s.fail(ctx, span, err)
	}
	err = s.store.WithinEvent(ctx, current.EventID, func(tx repository.EventTx) error {
		return tx.DeleteBooking(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, span, err)
	}

	s.logger.InfoContext(ctx, "rsvp deleted", "event_id", current.EventID, "booking_id", id)
	return nil
}

// CheckIn records arrivals. Deltas may be negative to undo a check-in; the resulting
// counts stay within [0, headcount] and admission state is left untouched.
func (s *EventService) CheckIn(ctx context.Context, id string, req model.CheckInRequest) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "CheckIn", trace.WithAttributes(attribute.String("rsvp.id", id)))
	defer span.End()

	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	var updated *model.Booking
	err = s.store.WithinEvent(ctx, current.EventID, func(tx repository.EventTx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		b.CocktailArrivedCount = clamp(b.CocktailArrivedCount+req.Cocktail, b.CocktailHeadcount())
		b.DinnerArrivedCount = clamp(b.DinnerArrivedCount+req.Dinner, b.DinnerHeadcount())
		b.UpdatedAt = s.now()
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	s.logger.DebugContext(ctx, "rsvp checked in", "booking_id", id,
		"cocktail_arrived", updated.CocktailArrivedCount, "dinner_arrived", updated.DinnerArrivedCount)
	return updated, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func aggregates(ctx context.Context, agg capacity.Aggregator, eventID, excludeID string) (admission.Aggregates, error) {
	counts, err := agg.EventCounts(ctx, eventID, excludeID)
	if err != nil {
		return admission.Aggregates{}, err
	}
	slots, err := agg.SlotCounts(ctx, eventID, excludeID)
	if err != nil {
		return admission.Aggregates{}, err
	}
	return admission.Aggregates{Event: counts, Slots: slots}, nil
}

func admissionError(err error) error {
	if errors.Is(err, admission.ErrFull) {
		return &Error{Kind: KindFull, Message: "event is full and has no waitlist", Err: err}
	}
	return err
}

// holds reports which of prev's confirmed places req keeps without re-checking limits:
// the general place when the party does not grow, the dinner seat when the slot stays
// and the dinner party does not grow.
func holds(prev *model.Booking, req admission.Request) (place, seat bool) {
	if req.ForceConfirm || prev.Status != model.BookingConfirmed {
		return false, false
	}
	place = model.PartySizeFor(req.PlusOnes) <= prev.PartySize
	seat = place && req.WantsDinner &&
		prev.DinnerStatus == model.DinnerConfirmed &&
		prev.DinnerSlot != nil && req.DinnerSlot != nil &&
		prev.DinnerSlot.Equal(*req.DinnerSlot) &&
		req.DinnerPartySize <= prev.DinnerPartySize
	return place, seat
}

// dinnerPartySize returns the supplied size raised to at least 1, or fallback.
func dinnerPartySize(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return max(*v, 1)
}

func clamp(n, upper int) int {
	return max(0, min(n, upper))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// windowBound drops sub-second precision so generated slots survive a round trip
// through stores that keep less than nanoseconds.
func windowBound(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Second)
	return &u
}

func normalizeDinner(d *model.DinnerConfig) *model.DinnerConfig {
	if d == nil {
		return nil
	}
	cp := *d
	cp.WindowStart = windowBound(d.WindowStart)
	cp.WindowEnd = windowBound(d.WindowEnd)
	if cp.OverflowAction == "" {
		cp.OverflowAction = model.OverflowWaitlist
	}
	return &cp
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// newSlug derives a URL-safe slug from title plus a short random suffix.
func newSlug(title string) string {
	base := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(base) > 48 {
		base = strings.TrimRight(base[:48], "-")
	}
	if base == "" {
		base = "event"
	}
	return base + "-" + uuid.NewString()[:8]
}

func (s *EventService) logDecision(ctx context.Context, msg string, b *model.Booking) {
	s.logger.InfoContext(ctx, msg,
		"event_id", b.EventID,
		"booking_id", b.ID,
		"party_size", b.PartySize,
		"status", b.Status,
		"dinner_status", b.DinnerStatus,
		"overridden", b.CapacityOverridden,
	)
}

// fail tags err for the caller and records it on span. Anything that is not already
// a tagged error is a storage failure.
func (s *EventService) fail(ctx context.Context, span trace.Span, err error) error {
	var tagged *Error
	switch {
	case errors.As(err, &tagged):
	case errors.Is(err, repository.ErrNotFound):
		tagged = &Error{Kind: KindNotFound, Message: "not found", Err: err}
	default:
		tagged = &Error{Kind: KindStorage, Message: "storage failure", Err: err}
	}

	span.SetAttributes(attribute.String("error.kind", string(tagged.Kind)))
	if tagged.Kind == KindStorage {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "storage failure", "error", err)
	}
	return tagged
}
