package store

import (
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
)

// Transition describes what a status change did to a reservation.
type Transition struct {
	From string
	To   string
	// EnteredCalled is set when the reservation moved into Called from another status.
	EnteredCalled bool
	// FirstCall is set when this transition stamped calledAt.
	FirstCall bool
}

// Repeat reports a transition to the status the reservation already had.
func (t Transition) Repeat() bool {
	return t.From == t.To
}

// ApplyStatus moves a reservation to status at the given instant. Any status may
// follow any other; vocabulary membership is checked by the caller.
func ApplyStatus(r models.Reservation, status string, at time.Time) (models.Reservation, Transition) {
	if at.Before(r.CreatedAt) {
		at = r.CreatedAt
	}
	tr := Transition{From: r.Status, To: status}
	r.Status = status
	r.UpdatedAt = at
	if status == models.StatusCalled {
		tr.EnteredCalled = tr.From != models.StatusCalled
		if r.CalledAt == nil {
			calledAt := at
			r.CalledAt = &calledAt
			tr.FirstCall = true
		}
	}
	return r, tr
}

// notCompleted lists the statuses that never count as completed for wait estimates.
var notCompleted = []string{models.StatusWaiting, models.StatusCancelled}

func NotCompletedStatuses() []string {
	out := make([]string, len(notCompleted))
	copy(out, notCompleted)
	return out
}

func IsCompleted(status string) bool {
	for _, s := range notCompleted {
		if s == status {
			return false
		}
	}
	return true
}
