// Package repository defines the storage boundary of the RSVP engine.
//
// Implementations live in the postgres, kvdb and memory subpackages. Every mutation of
// an event's bookings goes through Store.WithinEvent, which serialises callers per event
// so that "read aggregates, decide, write" can never interleave for the same event.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when a second booking would share an event+email pair.
var ErrEmailTaken = errors.New("email already registered for this event")

// ErrSlugTaken is returned when an event slug collides with an existing one.
var ErrSlugTaken = errors.New("event slug already exists")

// Store is the persistence contract for events and their bookings.
//
// The read methods and the capacity.Aggregator methods run without the event lock and
// are advisory; decisions must use the EventTx handed to WithinEvent.
type Store interface {
	capacity.Aggregator

	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)

	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	// ListBookings returns an event's bookings ordered by creation time.
	ListBookings(ctx context.Context, eventID string) ([]model.Booking, error)

	// WithinEvent runs fn inside the event's critical section. Writes made through tx
	// become visible atomically when fn returns nil and are discarded otherwise.
	WithinEvent(ctx context.Context, eventID string, fn func(tx EventTx) error) error

	Close() error
}

// EventTx is a locked view of one event and its bookings.
type EventTx interface {
	capacity.Aggregator

	// Event is the configuration snapshot read when the lock was taken.
	Event() *model.Event

	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	// FindByEmail looks up a booking by normalized email; ErrNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*model.Booking, error)

	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b *model.Booking) error
	DeleteBooking(ctx context.Context, id string) error
}
