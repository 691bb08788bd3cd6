// Package memory is an in-process reservation store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"
	"github.com/google/uuid"
)

// Store keeps every record behind one mutex, so reading the scope maximum and
// inserting the next number happen atomically.
type Store struct {
	mu            sync.Mutex
	reservations  map[string]models.Reservation
	events        map[string][]store.ReservationEvent
	statuses      []models.StatusEntry
	notifications []store.NotificationRecord
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		reservations: make(map[string]models.Reservation),
		events:       make(map[string][]store.ReservationEvent),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for defaulted timestamps and event times.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) CreateReservation(ctx context.Context, input store.CreateReservationInput) (models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return models.Reservation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scopeID := input.Scope.ID()
	queueNo := input.QueueNo
	if queueNo <= 0 {
		queueNo = s.maxQueueNumberLocked(scopeID, input.Day) + 1
	} else if s.queueNumberTakenLocked(scopeID, input.Day, queueNo) {
		return models.Reservation{}, store.ErrQueueNumberTaken
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.reservations[id]; exists {
		return models.Reservation{}, fmt.Errorf("%w: duplicate reservation id %s", store.ErrValidation, id)
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	r := models.Reservation{
		ID:        id,
		QueueNo:   queueNo,
		Name:      input.Name,
		MobileNo:  input.MobileNo,
		Pax:       input.Pax,
		Status:    models.StatusWaiting,
		QueueID:   input.Scope.QueueID,
		StoreID:   input.Scope.StoreID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	payload, err := store.CreatedPayload(r)
	if err != nil {
		return models.Reservation{}, err
	}
	s.reservations[id] = r
	s.appendEventLocked(id, store.EventReservationCreated, payload)
	return clone(r), nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return models.Reservation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return models.Reservation{}, store.ErrReservationNotFound
	}
	return clone(r), nil
}

func (s *Store) UpdateStatus(ctx context.Context, input store.UpdateStatusInput) (models.Reservation, store.Transition, error) {
	if err := ctx.Err(); err != nil {
		return models.Reservation{}, store.Transition{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reservations[input.ID]
	if !ok {
		return models.Reservation{}, store.Transition{}, store.ErrReservationNotFound
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	updated, tr := store.ApplyStatus(clone(current), input.Status, occurredAt)
	payload, err := store.StatusChangedPayload(updated, tr)
	if err != nil {
		return models.Reservation{}, store.Transition{}, err
	}
	s.reservations[input.ID] = updated
	s.appendEventLocked(input.ID, store.EventStatusChanged, payload)
	return clone(updated), tr, nil
}

func (s *Store) ListByStatus(ctx context.Context, scopeID string, statuses []string, day store.Day) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Reservation{}
	for _, r := range s.reservations {
		if r.Scope().ID() != scopeID || !day.Contains(r.CreatedAt) {
			continue
		}
		if _, ok := wanted[r.Status]; !ok {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out, nil
}

func (s *Store) ListRecentCompleted(ctx context.Context, scopeID string, day store.Day, limit int) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Reservation{}
	for _, r := range s.reservations {
		if r.Scope().ID() != scopeID || !day.Contains(r.CreatedAt) || !store.IsCompleted(r.Status) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return before(out[j], out[i]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MaxQueueNumber(ctx context.Context, scopeID string, day store.Day) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxQueueNumberLocked(scopeID, day), nil
}

func (s *Store) ListReservationEvents(ctx context.Context, id string) ([]store.ReservationEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[id]
	if !ok {
		return nil, store.ErrReservationNotFound
	}
	out := make([]store.ReservationEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *Store) ListStatuses(ctx context.Context) ([]models.StatusEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.StatusEntry, len(s.statuses))
	copy(out, s.statuses)
	return out, nil
}

// SeedStatuses upserts entries by key, keeping first-seen order.
func (s *Store) SeedStatuses(ctx context.Context, entries []models.StatusEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		replaced := false
		for i := range s.statuses {
			if s.statuses[i].Key == entry.Key {
				s.statuses[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			s.statuses = append(s.statuses, entry)
		}
	}
	return nil
}

func (s *Store) RecordNotification(ctx context.Context, record store.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.NotificationID == "" {
		record.NotificationID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.notifications = append(s.notifications, record)
	return nil
}

// Notifications returns the recorded notification outcomes in insertion order.
func (s *Store) Notifications() []store.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.NotificationRecord, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Store) maxQueueNumberLocked(scopeID string, day store.Day) int {
	highest := 0
	for _, r := range s.reservations {
		if r.Scope().ID() == scopeID && day.Contains(r.CreatedAt) && r.QueueNo > highest {
			highest = r.QueueNo
		}
	}
	return highest
}

func (s *Store) queueNumberTakenLocked(scopeID string, day store.Day, queueNo int) bool {
	for _, r := range s.reservations {
		if r.Scope().ID() == scopeID && day.Contains(r.CreatedAt) && r.QueueNo == queueNo {
			return true
		}
	}
	return false
}

func (s *Store) appendEventLocked(id, eventType string, payload []byte) {
	events := s.events[id]
	prev := ""
	if len(events) > 0 {
		prev = events[len(events)-1].Hash
	}
	seq := len(events) + 1
	createdAt := s.now()
	s.events[id] = append(events, store.ReservationEvent{
		ReservationID: id,
		Seq:           seq,
		Type:          eventType,
		Payload:       payload,
		CreatedAt:     createdAt,
		PrevHash:      prev,
		Hash:          store.ComputeEventHash(prev, id, eventType, payload, createdAt, seq),
	})
}

func before(a, b models.Reservation) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.QueueNo < b.QueueNo
}

func clone(r models.Reservation) models.Reservation {
	if r.CalledAt != nil {
		calledAt := *r.CalledAt
		r.CalledAt = &calledAt
	}
	return r
}
