package app

import (
	"time"

	"repute-go/internal/ledger"
)

// Operation statuses.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Operation tracks one CLI invocation. Its ID prefixes every log line the
// invocation writes, and its Status is logged when the app closes.
type Operation struct {
	ID        string
	Name      string
	Caller    string
	StartedAt time.Time
	Status    string
}

// NewOperation creates an operation that has not failed yet.
func NewOperation(name string, startedAt time.Time) *Operation {
	return &Operation{
		ID:        startedAt.UTC().Format("20060102T150405Z"),
		Name:      name,
		StartedAt: startedAt,
		Status:    StatusSuccess,
	}
}

// Fail records err as the outcome. Ledger rejections are distinguished from
// faults, and a fault is never downgraded to a rejection.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	if ledger.IsRejection(err) {
		if op.Status == StatusSuccess {
			op.Status = StatusRejected
		}
		return
	}
	op.Status = StatusError
}
