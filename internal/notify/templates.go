package notify

import (
	"strconv"
	"strings"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
)

const (
	KindConfirmed = "confirmed"
	KindCalled    = "called"
)

// Message is one notification addressed to a customer contact.
type Message struct {
	ReservationID string
	Kind          string
	Recipient     string
	Body          string
}

func defaultTemplate(kind string) string {
	switch kind {
	case KindConfirmed:
		return "Hi {name}, you are in the queue at {store_id}. Your number is {queue_no}."
	case KindCalled:
		return "Hi {name}, it's your turn! Number {queue_no} is now being called at {store_id}."
	}
	return ""
}

func renderTemplate(template string, r models.Reservation) string {
	return strings.NewReplacer(
		"{queue_no}", strconv.Itoa(r.QueueNo),
		"{name}", r.Name,
		"{store_id}", r.StoreID,
	).Replace(template)
}

// NewMessage renders the template for kind against a reservation.
func NewMessage(kind string, r models.Reservation) Message {
	return Message{
		ReservationID: r.ID,
		Kind:          kind,
		Recipient:     r.MobileNo,
		Body:          renderTemplate(defaultTemplate(kind), r),
	}
}
