package reservation

import (
	"context"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
)

// EstimateWait is the mean time in seconds from joining to being called over
// the most recent completed reservations of a scope today. It is 0 without history.
func (s *Service) EstimateWait(ctx context.Context, scope models.Scope) (float64, error) {
	recent, err := s.ListRecentCompleted(ctx, scope, s.opts.WaitSampleSize)
	if err != nil {
		return 0, err
	}
	return AverageWaitSeconds(recent), nil
}

// AverageWaitSeconds skips records never called or called before they were created.
func AverageWaitSeconds(reservations []models.Reservation) float64 {
	var total float64
	count := 0
	for _, r := range reservations {
		if r.CalledAt == nil {
			continue
		}
		wait := r.CalledAt.Sub(r.CreatedAt)
		if wait < 0 {
			continue
		}
		total += wait.Seconds()
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
