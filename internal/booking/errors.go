package booking

import (
	"errors"
	"fmt"

	"github.com/example/ride-pooling/internal/models"
)

// Outcome taxonomy. Business outcomes (NoCapacity, AlreadyProcessed) are
// distinguished result variants, not infrastructure failures; only the
// timeout/failed classes are true errors from the caller's point of view.
var (
	// ErrNotFound: the referenced request/trip/cab does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoCapacity: no candidate trip had room. The request stays pending;
	// the caller may resubmit later.
	ErrNoCapacity = errors.New("no candidate trip has capacity")

	// ErrLockTimeout: a row lock could not be acquired within budget.
	ErrLockTimeout = errors.New("lock wait exceeded budget")

	// ErrBookingTimeout: the booking attempt exceeded its time budget.
	ErrBookingTimeout = errors.New("booking timed out")

	// ErrCapacityExceeded: the integrity guard tripped; a reserve would
	// have pushed a trip past capacity despite holding the row lock.
	// Observed outside a race window this is a bug, not a retry case.
	ErrCapacityExceeded = errors.New("capacity invariant violated")

	// ErrBookingFailed: unrecoverable failure after retries exhausted.
	ErrBookingFailed = errors.New("booking failed")

	// ErrTxConflict: transient serialization/deadlock conflict raised by
	// the store. Retried locally by the coordinator, never surfaced as-is.
	ErrTxConflict = errors.New("transient transaction conflict")

	// ErrCabUnavailable: the cab cannot host a new trip.
	ErrCabUnavailable = errors.New("cab is not available")
)

// AlreadyProcessedError reports that a request left the pending state before
// this call. It carries the prior outcome so a duplicate Book is an
// idempotent replay rather than an error.
type AlreadyProcessedError struct {
	RequestID int64
	Status    models.RequestStatus
	TripID    *int64
	CabID     int64
}

func (e *AlreadyProcessedError) Error() string {
	if e.TripID != nil {
		return fmt.Sprintf("request %d already processed: status=%s trip=%d", e.RequestID, e.Status, *e.TripID)
	}
	return fmt.Sprintf("request %d already processed: status=%s", e.RequestID, e.Status)
}

// IsRetryable reports whether a booking attempt that failed with err should
// be retried from the top of the transaction. Both timeout classes qualify:
// a fresh attempt gets fresh lock and statement budgets. The coordinator
// still stops early when the caller's own context has expired.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTxConflict) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrBookingTimeout)
}
