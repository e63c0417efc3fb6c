// Package kvdb implements repository.Store on an embedded bbolt database.
//
// bbolt allows a single writer at a time, so one db.Update per decision is the event's
// critical section; a failed decision rolls the whole transaction back.
package kvdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository"
)

var tracer = otel.GetTracerProvider().Tracer("github.com/Shivanand-hulikatti/event-rsvp/internal/repository/kvdb")

const (
	bucketEvents = "event_store"
	bucketSlugs  = "event_slugs"
	// bucketRSVPs holds one nested bucket per event: booking id -> booking.
	bucketRSVPs = "rsvp_store"
	// bucketEmails holds one nested bucket per event: email -> booking id.
	bucketEmails = "rsvp_emails"
	bucketOwners = "rsvp_owners"
)

var buckets = []string{bucketEvents, bucketSlugs, bucketRSVPs, bucketEmails, bucketOwners}

func NewStore(db *bolt.DB) (*Store, error) {
	return &Store{db: db, logger: slog.Default().WithGroup("kvdb")}, db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	var span trace.Span
	_, span = tracer.Start(ctx, "CreateEvent")
	defer span.End()

	j, err := json.Marshal(e)
	if err != nil {
		return fail(span, err)
	}

	span.AddEvent("Update bucket")
	return fail(span, s.db.Update(func(tx *bolt.Tx) error {
		slugs := tx.Bucket([]byte(bucketSlugs))
		if slugs.Get([]byte(e.Slug)) != nil {
			return repository.ErrSlugTaken
		}
		if err := slugs.Put([]byte(e.Slug), []byte(e.ID)); err != nil {
			return err
		}
		if _, err := tx.Bucket([]byte(bucketRSVPs)).CreateBucketIfNotExists([]byte(e.ID)); err != nil {
			return err
		}
		if _, err := tx.Bucket([]byte(bucketEmails)).CreateBucketIfNotExists([]byte(e.ID)); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketEvents)).Put([]byte(e.ID), j)
	}))
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "GetEvent")
	defer span.End()

	span.AddEvent("View bucket")
	var e *model.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		e, err = getEvent(tx, id)
		return err
	})
	return e, fail(span, err)
}

func (s *Store) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "GetEventBySlug")
	defer span.End()

	span.AddEvent("View bucket")
	var e *model.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket([]byte(bucketSlugs)).Get([]byte(slug))
		if id == nil {
			return repository.ErrNotFound
		}
		var err error
		e, err = getEvent(tx, string(id))
		return err
	})
	return e, fail(span, err)
}

func (s *Store) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "GetBooking")
	defer span.End()

	var b *model.Booking
	err := s.db.View(func(tx *bolt.Tx) error {
		eventID := tx.Bucket([]byte(bucketOwners)).Get([]byte(id))
		if eventID == nil {
			return repository.ErrNotFound
		}
		var err error
		b, err = getBooking(rsvpBucket(tx, string(eventID)), id)
		return err
	})
	return b, fail(span, err)
}

func (s *Store) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "ListBookings")
	defer span.End()

	var bookings []model.Booking
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		bookings, err = listBookings(rsvpBucket(tx, eventID))
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	return bookings, nil
}

func (s *Store) EventCounts(ctx context.Context, eventID, excludeID string) (model.Counts, error) {
	bookings, err := s.ListBookings(ctx, eventID)
	if err != nil {
		return model.Counts{}, err
	}
	return capacity.Tally(bookings, excludeID), nil
}

func (s *Store) SlotCounts(ctx context.Context, eventID, excludeID string) (capacity.Slots, error) {
	bookings, err := s.ListBookings(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return capacity.TallySlots(bookings, excludeID), nil
}

func (s *Store) WithinEvent(ctx context.Context, eventID string, fn func(repository.EventTx) error) error {
	var span trace.Span
	ctx, span = tracer.Start(ctx, "WithinEvent", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fail(span, err)
	}

	span.AddEvent("Update bucket")
	return s.db.Update(func(tx *bolt.Tx) error {
		e, err := getEvent(tx, eventID)
		if err != nil {
			return err
		}
		return fn(&eventTx{tx: tx, event: e})
	})
}

func (s *Store) Close() error {
	s.logger.Debug("closing bolt database", "path", s.db.Path())
	return s.db.Close()
}

type eventTx struct {
	tx    *bolt.Tx
	event *model.Event
}

func (t *eventTx) Event() *model.Event { return t.event }

func (t *eventTx) rsvps() *bolt.Bucket  { return rsvpBucket(t.tx, t.event.ID) }
func (t *eventTx) emails() *bolt.Bucket { return emailBucket(t.tx, t.event.ID) }

func (t *eventTx) EventCounts(_ context.Context, _, excludeID string) (model.Counts, error) {
	bookings, err := listBookings(t.rsvps())
	if err != nil {
		return model.Counts{}, err
	}
	return capacity.Tally(bookings, excludeID), nil
}

func (t *eventTx) SlotCounts(_ context.Context, _, excludeID string) (capacity.Slots, error) {
	bookings, err := listBookings(t.rsvps())
	if err != nil {
		return nil, err
	}
	return capacity.TallySlots(bookings, excludeID), nil
}

func (t *eventTx) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	return getBooking(t.rsvps(), id)
}

func (t *eventTx) FindByEmail(_ context.Context, email string) (*model.Booking, error) {
	id := t.emails().Get([]byte(email))
	if id == nil {
		return nil, repository.ErrNotFound
	}
	return getBooking(t.rsvps(), string(id))
}

func (t *eventTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if t.emails().Get([]byte(b.Email)) != nil {
		return repository.ErrEmailTaken
	}
	if err := t.put(b); err != nil {
		return err
	}
	return t.tx.Bucket([]byte(bucketOwners)).Put([]byte(b.ID), []byte(b.EventID))
}

func (t *eventTx) UpdateBooking(_ context.Context, b *model.Booking) error {
	prev, err := getBooking(t.rsvps(), b.ID)
	if err != nil {
		return err
	}
	if prev.Email != b.Email {
		if t.emails().Get([]byte(b.Email)) != nil {
			return repository.ErrEmailTaken
		}
		if err := t.emails().Delete([]byte(prev.Email)); err != nil {
			return err
		}
	}
	return t.put(b)
}

func (t *eventTx) DeleteBooking(_ context.Context, id string) error {
	prev, err := getBooking(t.rsvps(), id)
	if err != nil {
		return err
	}
	if err := t.emails().Delete([]byte(prev.Email)); err != nil {
		return err
	}
	if err := t.tx.Bucket([]byte(bucketOwners)).Delete([]byte(id)); err != nil {
		return err
	}
	return t.rsvps().Delete([]byte(id))
}

func (t *eventTx) put(b *model.Booking) error {
	j, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := t.emails().Put([]byte(b.Email), []byte(b.ID)); err != nil {
		return err
	}
	return t.rsvps().Put([]byte(b.ID), j)
}

func getEvent(tx *bolt.Tx, id string) (*model.Event, error) {
	res := tx.Bucket([]byte(bucketEvents)).Get([]byte(id))
	if res == nil {
		return nil, repository.ErrNotFound
	}
	e := &model.Event{}
	if err := json.Unmarshal(res, e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

func getBooking(bucket *bolt.Bucket, id string) (*model.Booking, error) {
	if bucket == nil {
		return nil, repository.ErrNotFound
	}
	res := bucket.Get([]byte(id))
	if res == nil {
		return nil, repository.ErrNotFound
	}
	b := &model.Booking{}
	if err := json.Unmarshal(res, b); err != nil {
		return nil, fmt.Errorf("decode booking: %w", err)
	}
	return b, nil
}

func listBookings(bucket *bolt.Bucket) ([]model.Booking, error) {
	var bookings []model.Booking
	if bucket == nil {
		return bookings, nil
	}
	err := bucket.ForEach(func(_, v []byte) error {
		var b model.Booking
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("decode booking: %w", err)
		}
		bookings = append(bookings, b)
		return nil
	})
	return bookings, err
}

func rsvpBucket(tx *bolt.Tx, eventID string) *bolt.Bucket {
	return tx.Bucket([]byte(bucketRSVPs)).Bucket([]byte(eventID))
}

func emailBucket(tx *bolt.Tx, eventID string) *bolt.Bucket {
	return tx.Bucket([]byte(bucketEmails)).Bucket([]byte(eventID))
}

func fail(span trace.Span, err error) error {
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
