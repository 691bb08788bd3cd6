package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
)

const (
	EventReservationCreated = "reservation.created"
	EventStatusChanged      = "reservation.status_changed"
)

type ReservationEvent struct {
	ReservationID string          `json:"reservation_id"`
	Seq           int             `json:"seq"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	PrevHash      string          `json:"prev_hash"`
	Hash          string          `json:"hash"`
}

type eventPayload struct {
	ReservationID string     `json:"reservation_id"`
	QueueNo       int        `json:"queue_no,omitempty"`
	Name          string     `json:"name,omitempty"`
	MobileNo      string     `json:"mobile_no,omitempty"`
	Pax           int        `json:"pax,omitempty"`
	StoreID       string     `json:"store_id,omitempty"`
	QueueID       string     `json:"queue_id,omitempty"`
	FromStatus    string     `json:"from_status,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
}

// CreatedPayload captures the full record as first persisted.
func CreatedPayload(r models.Reservation) ([]byte, error) {
	createdAt := r.CreatedAt
	updatedAt := r.UpdatedAt
	return json.Marshal(eventPayload{
		ReservationID: r.ID,
		QueueNo:       r.QueueNo,
		Name:          r.Name,
		MobileNo:      r.MobileNo,
		Pax:           r.Pax,
		StoreID:       r.StoreID,
		QueueID:       r.QueueID,
		Status:        r.Status,
		CreatedAt:     &createdAt,
		UpdatedAt:     &updatedAt,
	})
}

// StatusChangedPayload captures only the fields a transition mutates.
func StatusChangedPayload(r models.Reservation, tr Transition) ([]byte, error) {
	updatedAt := r.UpdatedAt
	return json.Marshal(eventPayload{
		ReservationID: r.ID,
		FromStatus:    tr.From,
		Status:        r.Status,
		UpdatedAt:     &updatedAt,
		CalledAt:      r.CalledAt,
	})
}

func ComputeEventHash(prevHash, reservationID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, reservationID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyChain checks sequence numbers and hash links of a reservation's events.
func VerifyChain(events []ReservationEvent) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("event %d: sequence %d out of order", i, event.Seq)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("event %d: prev hash mismatch", event.Seq)
		}
		want := ComputeEventHash(event.PrevHash, event.ReservationID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != want {
			return fmt.Errorf("event %d: hash mismatch", event.Seq)
		}
		prev = event.Hash
	}
	return nil
}

func RehydrateReservation(events []ReservationEvent) (models.Reservation, error) {
	var r models.Reservation
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Reservation{}, err
		}
		if payload.ReservationID != "" {
			r.ID = payload.ReservationID
		}
		if payload.QueueNo != 0 {
			r.QueueNo = payload.QueueNo
		}
		if payload.Name != "" {
			r.Name = payload.Name
		}
		if payload.MobileNo != "" {
			r.MobileNo = payload.MobileNo
		}
		if payload.Pax != 0 {
			r.Pax = payload.Pax
		}
		if payload.StoreID != "" {
			r.StoreID = payload.StoreID
		}
		if payload.QueueID != "" {
			r.QueueID = payload.QueueID
		}
		if payload.Status != "" {
			r.Status = payload.Status
		}
		if payload.CreatedAt != nil {
			r.CreatedAt = *payload.CreatedAt
		}
		if payload.UpdatedAt != nil {
			r.UpdatedAt = *payload.UpdatedAt
		}
		if payload.CalledAt != nil {
			calledAt := *payload.CalledAt
			r.CalledAt = &calledAt
		}
	}
	return r, nil
}
