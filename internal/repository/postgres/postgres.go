// Package postgres implements repository.Store on PostgreSQL using pgx directly (no ORM).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository"
)

var tracer = otel.GetTracerProvider().Tracer("github.com/Shivanand-hulikatti/event-rsvp/internal/repository/postgres")

// uniqueViolation is the SQLSTATE PostgreSQL reports for a unique index conflict.
const uniqueViolation = "23505"

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pool is what Store needs from *pgxpool.Pool.
type pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store handles persistence for events and bookings.
type Store struct {
	db pool
}

// New constructs a Store on an existing pool. The pool is owned by the caller.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const eventColumns = `id, slug, title, description, starts_at,
	capacity_total, capacity_cocktail_only, capacity_dinner,
	waitlist_enabled, max_plus_ones, dinner, created_at`

const bookingColumns = `id, event_id, email, name, plus_ones, party_size, status,
	wants_dinner, dinner_slot, dinner_party_size, dinner_status,
	capacity_overridden, dinner_arrived_count, cocktail_arrived_count,
	created_at, updated_at`

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	ctx, span := tracer.Start(ctx, "CreateEvent")
	defer span.End()

	dinnerJSON, err := model.MarshalDinner(e.Dinner)
	if err != nil {
		return fail(span, fmt.Errorf("encode dinner config: %w", err))
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Slug, e.Title, e.Description, e.StartsAt,
		int(e.CapacityTotal), int(e.CapacityCocktailOnly), int(e.CapacityDinner),
		e.WaitlistEnabled, e.MaxPlusOnesPerGuest, dinnerJSON, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fail(span, repository.ErrSlugTaken)
		}
		return fail(span, fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// GetEvent returns a single event or repository.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "GetEvent")
	defer span.End()

	e, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, fail(span, err)
	}
	return e, nil
}

// GetEventBySlug returns a single event or repository.ErrNotFound.
func (s *Store) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "GetEventBySlug")
	defer span.End()

	e, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE slug = $1`, slug))
	if err != nil {
		return nil, fail(span, err)
	}
	return e, nil
}

// GetBooking returns a single booking or repository.ErrNotFound.
func (s *Store) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "GetBooking")
	defer span.End()

	b, err := getBooking(ctx, s.db, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return b, nil
}

// ListBookings returns all bookings for a given event.
func (s *Store) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	ctx, span := tracer.Start(ctx, "ListBookings")
	defer span.End()

	rows, err := s.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM rsvps
		 WHERE event_id = $1
		 ORDER BY created_at ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list bookings: %w", err))
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("list bookings: %w", err))
	}
	return bookings, nil
}

// EventCounts sums party sizes by status without taking the event lock.
func (s *Store) EventCounts(ctx context.Context, eventID, excludeID string) (model.Counts, error) {
	return eventCounts(ctx, s.db, eventID, excludeID)
}

// SlotCounts sums dinner party sizes per slot without taking the event lock.
func (s *Store) SlotCounts(ctx context.Context, eventID, excludeID string) (capacity.Slots, error) {
	return slotCounts(ctx, s.db, eventID, excludeID)
}

// WithinEvent performs fn inside a transaction holding the event row lock.
//
// SELECT … FOR UPDATE takes an exclusive row-level lock on the event the moment it
// runs. Any other transaction asking for the same lock blocks until this one commits or
// rolls back, so concurrent admissions for one event are decided one after another and
// each sees the bookings written by the previous one.
func (s *Store) WithinEvent(ctx context.Context, eventID string, fn func(repository.EventTx) error) (err error) {
	ctx, span := tracer.Start(ctx, "WithinEvent", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	e, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	))
	if err != nil {
		return fail(span, err)
	}

	if err = fn(&eventTx{tx: tx, event: e}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Close is a no-op; the pool belongs to whoever created it.
func (s *Store) Close() error { return nil }

type eventTx struct {
	tx    pgx.Tx
	event *model.Event
}

func (t *eventTx) Event() *model.Event { return t.event }

func (t *eventTx) EventCounts(ctx context.Context, eventID, excludeID string) (model.Counts, error) {
	return eventCounts(ctx, t.tx, eventID, excludeID)
}

func (t *eventTx) SlotCounts(ctx context.Context, eventID, excludeID string) (capacity.Slots, error) {
	return slotCounts(ctx, t.tx, eventID, excludeID)
}

func (t *eventTx) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := getBooking(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	if b.EventID != t.event.ID {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (t *eventTx) FindByEmail(ctx context.Context, email string) (*model.Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM rsvps WHERE event_id = $1 AND email = $2`,
		t.event.ID, email,
	))
}

func (t *eventTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.exec(ctx,
		`INSERT INTO rsvps (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.EventID, b.Email, b.Name, b.PlusOnes, b.PartySize, string(b.Status),
		b.WantsDinner, b.DinnerSlot, b.DinnerPartySize, string(b.DinnerStatus),
		b.CapacityOverridden, b.DinnerArrivedCount, b.CocktailArrivedCount,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrEmailTaken
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *eventTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	tag, err := t.exec(ctx,
		`UPDATE rsvps SET
			email = $3, name = $4, plus_ones = $5, party_size = $6, status = $7,
			wants_dinner = $8, dinner_slot = $9, dinner_party_size = $10, dinner_status = $11,
			capacity_overridden = $12, dinner_arrived_count = $13, cocktail_arrived_count = $14,
			updated_at = $15
		 WHERE id = $1 AND event_id = $2`,
		b.ID, b.EventID, b.Email, b.Name, b.PlusOnes, b.PartySize, string(b.Status),
		b.WantsDinner, b.DinnerSlot, b.DinnerPartySize, string(b.DinnerStatus),
		b.CapacityOverridden, b.DinnerArrivedCount, b.CocktailArrivedCount,
		b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrEmailTaken
		}
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *eventTx) DeleteBooking(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM rsvps WHERE id = $1 AND event_id = $2`, id, t.event.ID)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// exec runs a write under a savepoint so that a constraint violation leaves the outer
// transaction usable.
func (t *eventTx) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("savepoint: %w", err)
	}
	tag, err := sp.Exec(ctx, sql, args...)
	if err != nil {
		_ = sp.Rollback(ctx)
		return tag, err
	}
	return tag, sp.Commit(ctx)
}

// ─── Aggregates ──────────────────────────────────────────────────────────────

func eventCounts(ctx context.Context, q querier, eventID, excludeID string) (model.Counts, error) {
	var c model.Counts
	err := q.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(party_size) FILTER (WHERE status = 'CONFIRMED'), 0),
			COALESCE(SUM(party_size) FILTER (WHERE status = 'WAITLIST'), 0)
		 FROM rsvps
		 WHERE event_id = $1 AND id <> $2`,
		eventID, excludeID,
	).Scan(&c.Confirmed, &c.Waitlist)
	if err != nil {
		return model.Counts{}, fmt.Errorf("sum party sizes: %w", err)
	}
	return c, nil
}

func slotCounts(ctx context.Context, q querier, eventID, excludeID string) (capacity.Slots, error) {
	rows, err := q.Query(ctx,
		`SELECT dinner_slot,
			COALESCE(SUM(dinner_party_size) FILTER (WHERE dinner_status = 'confirmed'), 0),
			COALESCE(SUM(dinner_party_size) FILTER (WHERE dinner_status IN ('waitlist', 'cocktails_waitlist')), 0)
		 FROM rsvps
		 WHERE event_id = $1 AND id <> $2 AND dinner_slot IS NOT NULL
		 GROUP BY dinner_slot`,
		eventID, excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("sum dinner party sizes: %w", err)
	}
	defer rows.Close()

	out := capacity.Slots{}
	for rows.Next() {
		var (
			slot time.Time
			c    model.Counts
		)
		if err := rows.Scan(&slot, &c.Confirmed, &c.Waitlist); err != nil {
			return nil, fmt.Errorf("scan slot counts: %w", err)
		}
		if c.Confirmed == 0 && c.Waitlist == 0 {
			continue
		}
		out[slot.UTC()] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sum dinner party sizes: %w", err)
	}
	return out, nil
}

// ─── Scanning ────────────────────────────────────────────────────────────────

func getBooking(ctx context.Context, q querier, id string) (*model.Booking, error) {
	return scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM rsvps WHERE id = $1`, id))
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e                      model.Event
		total, cocktail, seats int
		dinnerJSON             []byte
	)
	err := row.Scan(
		&e.ID, &e.Slug, &e.Title, &e.Description, &e.StartsAt,
		&total, &cocktail, &seats,
		&e.WaitlistEnabled, &e.MaxPlusOnesPerGuest, &dinnerJSON, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.CapacityTotal = model.Capacity(total)
	e.CapacityCocktailOnly = model.Capacity(cocktail)
	e.CapacityDinner = model.Capacity(seats)
	if e.Dinner, err = model.UnmarshalDinner(dinnerJSON); err != nil {
		return nil, fmt.Errorf("decode dinner config: %w", err)
	}
	return &e, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b                    model.Booking
		status, dinnerStatus string
	)
	err := row.Scan(
		&b.ID, &b.EventID, &b.Email, &b.Name, &b.PlusOnes, &b.PartySize, &status,
		&b.WantsDinner, &b.DinnerSlot, &b.DinnerPartySize, &dinnerStatus,
		&b.CapacityOverridden, &b.DinnerArrivedCount, &b.CocktailArrivedCount,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = model.BookingStatus(status)
	b.DinnerStatus = model.DinnerStatus(dinnerStatus)
	if b.DinnerSlot != nil {
		slot := b.DinnerSlot.UTC()
		b.DinnerSlot = &slot
	}
	return &b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func fail(span trace.Span, err error) error {
	if !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
