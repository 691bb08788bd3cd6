package store

import (
	"context"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
)

type CreateReservationInput struct {
	ID        string
	Scope     models.Scope
	Name      string
	MobileNo  string
	Pax       int
	Day       Day
	CreatedAt time.Time
	// QueueNo is allocated by the store inside the insert transaction when zero.
	QueueNo int
}

type UpdateStatusInput struct {
	ID         string
	Status     string
	OccurredAt time.Time
}

type ReservationStore interface {
	CreateReservation(ctx context.Context, input CreateReservationInput) (models.Reservation, error)
	GetReservation(ctx context.Context, id string) (models.Reservation, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (models.Reservation, Transition, error)
	ListByStatus(ctx context.Context, scopeID string, statuses []string, day Day) ([]models.Reservation, error)
	ListRecentCompleted(ctx context.Context, scopeID string, day Day, limit int) ([]models.Reservation, error)
	MaxQueueNumber(ctx context.Context, scopeID string, day Day) (int, error)
	ListReservationEvents(ctx context.Context, id string) ([]ReservationEvent, error)
}

type StatusStore interface {
	ListStatuses(ctx context.Context) ([]models.StatusEntry, error)
	SeedStatuses(ctx context.Context, entries []models.StatusEntry) error
}

type NotificationLog interface {
	RecordNotification(ctx context.Context, record NotificationRecord) error
}

type NotificationRecord struct {
	NotificationID string    `json:"notification_id"`
	ReservationID  string    `json:"reservation_id"`
	Kind           string    `json:"kind"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	NotificationSent      = "sent"
	NotificationFailed    = "failed"
	NotificationCancelled = "cancelled"
)
