// Package store provides the record store behind the case workflow and the
// custody ledger. Backends must give the append path real serialization:
// AppendEvent holds a per-case critical section across read-tip, payload
// build and insert, so two concurrent appends can never extend the same tip.
package store

import (
	"context"
	"errors"

	"github.com/dnafasttrack/custody-server/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique field (case number, email)
	// already exists.
	ErrDuplicate = errors.New("record already exists")

	// ErrLockTimeout is returned when the append critical section could not
	// be entered within the caller's deadline. Retryable.
	ErrLockTimeout = errors.New("append lock wait timed out")
)

// AppendBuilder constructs the event to append given the chain's current tip
// hash ("" for an empty chain) and the next append sequence number. It runs
// inside the store's per-case critical section and must not block on other
// store operations.
type AppendBuilder func(prevHash string, seq int64) (models.CustodyEvent, error)

// Store is the persistence contract shared by the postgres, sqlite and
// in-memory backends. All mutations assign ids and creation timestamps.
type Store interface {
	// Cases
	CreateCase(ctx context.Context, c *models.Case) error
	FindCase(ctx context.Context, caseNumber string) (*models.Case, error)
	ListCases(ctx context.Context) ([]models.Case, error)
	UpdateCaseStatus(ctx context.Context, caseNumber, status string, labAssigned *string) error

	// Samples
	CreateSample(ctx context.Context, s *models.Sample) error
	SamplesByCase(ctx context.Context, caseNumber string) ([]models.Sample, error)

	// Custody events. AppendEvent persists the built event and returns it
	// with its id set; EventsByCase returns events in append (seq) order.
	AppendEvent(ctx context.Context, caseNumber string, build AppendBuilder) (*models.CustodyEvent, error)
	EventsByCase(ctx context.Context, caseNumber string) ([]models.CustodyEvent, error)

	// Lab results
	CreateLabResult(ctx context.Context, r *models.LabResult) error
	LabResultsByCase(ctx context.Context, caseNumber string) ([]models.LabResult, error)

	// Users and labs
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByAPIToken(ctx context.Context, token string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	CreateLab(ctx context.Context, l *models.Lab) error
	ListLabs(ctx context.Context) ([]models.Lab, error)

	// Ping reports whether the backend is reachable (readiness probe).
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close()
}
