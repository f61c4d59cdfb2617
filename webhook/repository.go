package webhook

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a queue item does not exist
	ErrNotFound = errors.New("queue item not found")
	// ErrInvalidTransition is returned when an item is not in the state a transition requires
	ErrInvalidTransition = errors.New("invalid queue item transition")
)

// StaleClaimError is the error history entry written when a stuck claim is recovered
const StaleClaimError = "processing timed out: claim recovered by stale sweep"

// Recovered is one stuck claim put back by RecoverStale
type Recovered struct {
	ID            string
	IntegrationID string
	TenantID      string
	Attempts      int
	// Terminal is true when the sweep exhausted the item's attempts and marked it Failed
	Terminal bool
}

/* Small, focused interfaces
 * Each backend (postgres, redis, memory) implements the composed Queue
 */

// Enqueuer accepts new work on the ingest critical path
type Enqueuer interface {
	/* Enqueue stores the item as Pending, eligible now, and returns its ID
	 * Must be a single write
	 */
	Enqueue(ctx context.Context, item QueueItem) (string, error)
}

// Claimer selects and claims work
type Claimer interface {
	/* ClaimBatch returns up to limit Pending items whose next attempt time has passed,
	 * oldest first. It does not change their status.
	 */
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]QueueItem, error)
	/* Claim moves one item from Pending to Processing with a single conditional write
	 * The item must still be Pending and due at now. Returns the item as stored
	 * after the claim, or false when another worker got there first or re-armed it
	 */
	Claim(ctx context.Context, id string, now time.Time) (QueueItem, bool, error)
}

// Transitioner finishes claimed work
type Transitioner interface {
	Complete(ctx context.Context, id string, processingTime time.Duration, now time.Time) error
	// Retry re-arms a Processing item as Pending with the given attempt count and eligibility time
	Retry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, entry ErrorEntry) error
	// Fail marks a Processing item as terminally Failed
	Fail(ctx context.Context, id string, attempts int, entry ErrorEntry) error
}

// QueueStats counts items by status
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// Add increments the counter for status and the total
func (s *QueueStats) Add(status Status, n int64) {
	switch status {
	case Pending:
		s.Pending += n
	case Processing:
		s.Processing += n
	case Completed:
		s.Completed += n
	case Failed:
		s.Failed += n
	default:
		return
	}
	s.Total += n
}

// Maintainer provides operational reads and sweeps
type Maintainer interface {
	Get(ctx context.Context, id string) (QueueItem, error)
	// Stats counts items created at or after since
	Stats(ctx context.Context, since time.Time) (QueueStats, error)
	// PendingRetries counts Pending items of an integration that already failed at least once
	PendingRetries(ctx context.Context, integrationID string) (int64, error)
	// CleanupCompleted deletes Completed items finished before the horizon
	CleanupCompleted(ctx context.Context, before time.Time) (int64, error)
	/* RecoverStale handles items stuck in Processing since before claimedBefore
	 * They count as a failed attempt: back to Pending, or Failed once attempts are exhausted
	 */
	RecoverStale(ctx context.Context, claimedBefore time.Time, now time.Time) ([]Recovered, error)
}

/* Interface composition - combining small interfaces into larger ones
 */
type Queue interface {
	Enqueuer
	Claimer
	Transitioner
	Maintainer
	Close(ctx context.Context) error
}
