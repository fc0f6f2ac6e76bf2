package app

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"repute-go/internal/ledger"
)

func TestNewOperation(t *testing.T) {
	start := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	op := NewOperation("SubmitRating", start)

	if op.ID != "20240615T143045Z" {
		t.Errorf("ID = %q, want %q", op.ID, "20240615T143045Z")
	}
	if op.Name != "SubmitRating" {
		t.Errorf("Name = %q, want %q", op.Name, "SubmitRating")
	}
	if op.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
	}
	if op.Caller != "" {
		t.Errorf("Caller = %q, want empty", op.Caller)
	}
}

func TestOperation_Fail(t *testing.T) {
	fault := errors.New("disk full")

	tests := []struct {
		name string
		errs []error
		want string
	}{
		{name: "nil error keeps success", errs: []error{nil}, want: StatusSuccess},
		{name: "rejection", errs: []error{ledger.ErrAlreadyRated}, want: StatusRejected},
		{name: "wrapped rejection", errs: []error{fmt.Errorf("rating: %w", ledger.ErrCannotRateSelf)}, want: StatusRejected},
		{name: "fault", errs: []error{fault}, want: StatusError},
		{name: "fault then rejection", errs: []error{fault, ledger.ErrProfileNotFound}, want: StatusError},
		{name: "rejection then fault", errs: []error{ledger.ErrProfileNotFound, fault}, want: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Test", time.Now())
			for _, err := range tt.errs {
				op.Fail(err)
			}
			if op.Status != tt.want {
				t.Errorf("Status = %q, want %q", op.Status, tt.want)
			}
		})
	}
}
