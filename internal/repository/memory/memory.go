// Package memory implements repository.Store in process memory.
//
// Each event has its own mutex guarding the critical section. A transaction works on a
// private copy of the event's bookings which replaces the shared copy only on success.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/capacity"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/model"
	"github.com/Shivanand-hulikatti/event-rsvp/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	events   map[string]*model.Event
	slugs    map[string]string
	bookings map[string]map[string]model.Booking // event id -> booking id -> booking
	owners   map[string]string                   // booking id -> event id

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		events:   make(map[string]*model.Event),
		slugs:    make(map[string]string),
		bookings: make(map[string]map[string]model.Booking),
		owners:   make(map[string]string),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slugs[e.Slug]; ok {
		return repository.ErrSlugTaken
	}
	cp := *e
	s.events[e.ID] = &cp
	s.slugs[e.Slug] = e.ID
	s.bookings[e.ID] = make(map[string]model.Booking)
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	s.mu.RLock()
	id, ok := s.slugs[slug]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[s.owners[id]][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBookings(_ context.Context, eventID string) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sorted(s.bookings[eventID]), nil
}

func (s *Store) EventCounts(_ context.Context, eventID, excludeID string) (model.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return capacity.Tally(values(s.bookings[eventID]), excludeID), nil
}

func (s *Store) SlotCounts(_ context.Context, eventID, excludeID string) (capacity.Slots, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return capacity.TallySlots(values(s.bookings[eventID]), excludeID), nil
}

func (s *Store) WithinEvent(ctx context.Context, eventID string, fn func(repository.EventTx) error) error {
	lock := s.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	e, ok := s.events[eventID]
	if !ok {
		s.mu.RUnlock()
		return repository.ErrNotFound
	}
	event := *e
	working := make(map[string]model.Booking, len(s.bookings[eventID]))
	for id, b := range s.bookings[eventID] {
		working[id] = b
	}
	s.mu.RUnlock()

	tx := &eventTx{event: &event, bookings: working, deleted: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[eventID] = tx.bookings
	for id := range tx.bookings {
		s.owners[id] = eventID
	}
	for id := range tx.deleted {
		delete(s.owners, id)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) eventLock(eventID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[eventID] = l
	}
	return l
}

type eventTx struct {
	event    *model.Event
	bookings map[string]model.Booking
	deleted  map[string]bool
}

func (t *eventTx) Event() *model.Event { return t.event }

func (t *eventTx) EventCounts(_ context.Context, _, excludeID string) (model.Counts, error) {
	return capacity.Tally(values(t.bookings), excludeID), nil
}

func (t *eventTx) SlotCounts(_ context.Context, _, excludeID string) (capacity.Slots, error) {
	return capacity.TallySlots(values(t.bookings), excludeID), nil
}

func (t *eventTx) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	b, ok := t.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (t *eventTx) FindByEmail(_ context.Context, email string) (*model.Booking, error) {
	for _, b := range t.bookings {
		if b.Email == email {
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *eventTx) InsertBooking(_ context.Context, b *model.Booking) error {
	for _, other := range t.bookings {
		if other.Email == b.Email {
			return repository.ErrEmailTaken
		}
	}
	t.bookings[b.ID] = *b
	delete(t.deleted, b.ID)
	return nil
}

func (t *eventTx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.bookings[b.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, other := range t.bookings {
		if id != b.ID && other.Email == b.Email {
			return repository.ErrEmailTaken
		}
	}
	t.bookings[b.ID] = *b
	return nil
}

func (t *eventTx) DeleteBooking(_ context.Context, id string) error {
	if _, ok := t.bookings[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.bookings, id)
	t.deleted[id] = true
	return nil
}

func values(m map[string]model.Booking) []model.Booking {
	out := make([]model.Booking, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	return out
}

func sorted(m map[string]model.Booking) []model.Booking {
	out := values(m)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
