// Package reservation runs the reservation lifecycle: joining a queue,
// advancing status and reading queue state for a scope.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/notify"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/sequence"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/vocabulary"

	"github.com/google/uuid"
)

const (
	DefaultWaitSampleSize        = 5
	DefaultMaxAllocationAttempts = 5
)

// Notifier sends a customer notification. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message)
}

type Options struct {
	Location              *time.Location
	WaitSampleSize        int
	MaxAllocationAttempts int
	NotifyOnJoin          bool
	NotifyOnRepeatCall    bool
	// Allocator hands out queue numbers ahead of the insert. When nil the store
	// allocates inside its own transaction.
	Allocator sequence.Allocator
	Clock     func() time.Time
}

type CreateInput struct {
	StoreID  string
	QueueID  string
	Name     string
	MobileNo string
	Pax      int
}

type Service struct {
	store      store.ReservationStore
	vocabulary *vocabulary.Vocabulary
	notifier   Notifier
	logger     *log.Logger
	opts       Options
}

func NewService(st store.ReservationStore, vocab *vocabulary.Vocabulary, notifier Notifier, logger *log.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WaitSampleSize <= 0 {
		opts.WaitSampleSize = DefaultWaitSampleSize
	}
	if opts.MaxAllocationAttempts <= 0 {
		opts.MaxAllocationAttempts = DefaultMaxAllocationAttempts
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{store: st, vocabulary: vocab, notifier: notifier, logger: logger, opts: opts}
}

// Create validates the customer details and stores a Waiting reservation with
// the next queue number of its scope for today.
func (s *Service) Create(ctx context.Context, input CreateInput) (models.Reservation, error) {
	input, err := normalizeCreate(input)
	if err != nil {
		return models.Reservation{}, err
	}

	scope := models.QueueScope(input.StoreID, input.QueueID)
	createdAt := s.opts.Clock()
	storeInput := store.CreateReservationInput{
		ID:        uuid.NewString(),
		Scope:     scope,
		Name:      input.Name,
		MobileNo:  input.MobileNo,
		Pax:       input.Pax,
		Day:       store.DayOf(createdAt, s.opts.Location),
		CreatedAt: createdAt,
	}

	var created models.Reservation
	for attempt := 1; attempt <= s.opts.MaxAllocationAttempts; attempt++ {
		if s.opts.Allocator != nil {
			next, err := s.opts.Allocator.Next(ctx, scope.ID(), storeInput.Day)
			if err != nil {
				return models.Reservation{}, err
			}
			storeInput.QueueNo = next
		}
		created, err = s.store.CreateReservation(ctx, storeInput)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrQueueNumberTaken) {
			return models.Reservation{}, err
		}
		s.logger.Printf("reservation allocation conflict scope_id=%s attempt=%d/%d", scope.ID(), attempt, s.opts.MaxAllocationAttempts)
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("%w: scope %s", store.ErrConflictRetryExhausted, scope.ID())
	}

	s.logger.Printf("reservation created id=%s scope_id=%s queue_no=%d", created.ID, scope.ID(), created.QueueNo)
	if s.opts.NotifyOnJoin && s.notifier != nil {
		s.notifier.Notify(ctx, notify.NewMessage(notify.KindConfirmed, created))
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Reservation, error) {
	return s.store.GetReservation(ctx, strings.TrimSpace(id))
}

// SetStatus applies a vocabulary status. Entering Called notifies the customer
// after the change is committed; the update stands whatever the delivery outcome.
func (s *Service) SetStatus(ctx context.Context, id, status string) (models.Reservation, error) {
	status = strings.TrimSpace(status)
	if !s.vocabulary.Contains(status) {
		return models.Reservation{}, fmt.Errorf("%w: unknown status %q", store.ErrValidation, status)
	}

	updated, tr, err := s.store.UpdateStatus(ctx, store.UpdateStatusInput{
		ID:         strings.TrimSpace(id),
		Status:     status,
		OccurredAt: s.opts.Clock(),
	})
	if err != nil {
		return models.Reservation{}, err
	}
	s.logger.Printf("reservation status changed id=%s from=%s to=%s", updated.ID, tr.From, tr.To)

	if s.shouldNotifyCall(tr) && s.notifier != nil {
		s.notifier.Notify(ctx, notify.NewMessage(notify.KindCalled, updated))
	}
	return updated, nil
}

func (s *Service) shouldNotifyCall(tr store.Transition) bool {
	if tr.To != models.StatusCalled {
		return false
	}
	return tr.EnteredCalled || s.opts.NotifyOnRepeatCall
}

// ListByStatus returns today's reservations of a scope in any of statuses,
// earliest first. An empty filter means Waiting.
func (s *Service) ListByStatus(ctx context.Context, scope models.Scope, statuses []string) ([]models.Reservation, error) {
	scope, err := requireScope(scope)
	if err != nil {
		return nil, err
	}
	filter := normalizeStatuses(statuses)
	if len(filter) == 0 {
		filter = []string{models.StatusWaiting}
	}
	return s.store.ListByStatus(ctx, scope.ID(), filter, s.today())
}

// ListRecentCompleted returns up to limit of today's completed reservations,
// most recent first.
func (s *Service) ListRecentCompleted(ctx context.Context, scope models.Scope, limit int) ([]models.Reservation, error) {
	scope, err := requireScope(scope)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.WaitSampleSize
	}
	return s.store.ListRecentCompleted(ctx, scope.ID(), s.today(), limit)
}

func (s *Service) History(ctx context.Context, id string) ([]store.ReservationEvent, error) {
	return s.store.ListReservationEvents(ctx, strings.TrimSpace(id))
}

func (s *Service) Statuses() []models.StatusEntry {
	return s.vocabulary.Entries()
}

func (s *Service) today() store.Day {
	return store.DayOf(s.opts.Clock(), s.opts.Location)
}

// ParseStatusFilter splits a comma separated status query.
func ParseStatusFilter(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return normalizeStatuses(strings.Split(raw, ","))
}

func normalizeStatuses(statuses []string) []string {
	seen := make(map[string]struct{}, len(statuses))
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		status = strings.TrimSpace(status)
		if status == "" {
			continue
		}
		if _, dup := seen[status]; dup {
			continue
		}
		seen[status] = struct{}{}
		out = append(out, status)
	}
	return out
}

func requireScope(scope models.Scope) (models.Scope, error) {
	scope = scope.Normalize()
	if scope.StoreID == "" {
		return scope, fmt.Errorf("%w: store id is required", store.ErrValidation)
	}
	return scope, nil
}

func normalizeCreate(input CreateInput) (CreateInput, error) {
	input.StoreID = strings.TrimSpace(input.StoreID)
	input.QueueID = strings.TrimSpace(input.QueueID)
	input.Name = strings.TrimSpace(input.Name)
	input.MobileNo = strings.TrimSpace(input.MobileNo)

	switch {
	case input.StoreID == "":
		return input, fmt.Errorf("%w: store_id is required", store.ErrValidation)
	case input.Name == "":
		return input, fmt.Errorf("%w: name is required", store.ErrValidation)
	case !isValidMobile(input.MobileNo):
		return input, fmt.Errorf("%w: mobile_no must be 8 to 15 digits", store.ErrValidation)
	case input.Pax < 1:
		return input, fmt.Errorf("%w: pax must be at least 1", store.ErrValidation)
	}
	return input, nil
}

// isValidMobile accepts 8 to 15 ASCII digits with an optional leading +.
func isValidMobile(value string) bool {
	value = strings.TrimPrefix(value, "+")
	if len(value) < 8 || len(value) > 15 {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
