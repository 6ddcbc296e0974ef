package dispatch

import (
	"errors"
	"testing"

	"github.com/example/ride-pooling/internal/models"
)

func TestAssignWithoutSession(t *testing.T) {
	r := NewRegistry()
	err := r.Assign(7, models.BookingResult{RequestID: 1, TripID: 2})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestRemoveUnknownDriverIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Remove(7, nil)
	if err := r.Assign(7, models.BookingResult{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}
