package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"laundry-session-backend/internal/model"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrActiveSessionExists = errors.New("machine already has an active session")
	ErrMachineBroken       = errors.New("machine is out of service")
	ErrAlreadyPickedUp     = errors.New("session already picked up")
	ErrVerificationCodeSet = errors.New("verification code already set")
)

// NewSession carries the validated fields of a session about to be created.
type NewSession struct {
	MachineID        string
	FirstName        string
	LastName         string
	Phone            string
	TimeIn           time.Time
	ExpectedEnd      time.Time
	VerificationCode string
}

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Machine registry
	EnsureMachine(ctx context.Context, id string) error
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	SetOccupied(ctx context.Context, id string) error
	SetVacant(ctx context.Context, id string) error
	UpdateCondition(ctx context.Context, id string, target model.Condition, reason string, now time.Time) (*model.Machine, error)

	// Session ledger
	CreateSession(ctx context.Context, ns NewSession) (*model.Session, error)
	StartSession(ctx context.Context, ns NewSession) (*model.Session, error)
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	GetActiveSession(ctx context.Context, machineID string) (*model.Session, error)
	SetVerificationCode(ctx context.Context, id int64, code string) error
	RecordFinishNotification(ctx context.Context, id int64, status string, sentAt time.Time) error
	MarkPickedUp(ctx context.Context, id int64, timeOut time.Time, delayMinutes int) (*model.Session, error)
	CompletePickup(ctx context.Context, id int64, timeOut time.Time, delayMinutes int) (*model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for handlers that own simple CRUD.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation recognises duplicate-key errors from both postgres and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
