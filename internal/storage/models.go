package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunPending = "pending"
	RunReady   = "ready"
	RunExpired = "expired"
)

// Run is an analysis run started from this machine.
type Run struct {
	RunID     string
	Date      string
	Status    string // "pending", "ready", "expired"
	Attempts  int
	NextCheck time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	LastError string
}

// ScheduleRecord is a schedule submission as sent to the service.
type ScheduleRecord struct {
	ID          string
	Date        string
	Frequency   string
	StatusCode  int // 0 when the request never got a response
	SubmittedAt time.Time
}
