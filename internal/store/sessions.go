package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"laundry-session-backend/internal/model"
)

// CreateSession inserts an active session without checking preconditions. Use StartSession
// for the guarded path.
func (s *gormStore) CreateSession(ctx context.Context, ns NewSession) (*model.Session, error) {
	return createSession(s.db.WithContext(ctx), ns)
}

func createSession(tx *gorm.DB, ns NewSession) (*model.Session, error) {
	session := model.Session{
		MachineID:   ns.MachineID,
		FirstName:   ns.FirstName,
		LastName:    ns.LastName,
		Phone:       ns.Phone,
		TimeIn:      ns.TimeIn,
		ExpectedEnd: ns.ExpectedEnd,
		Status:      model.SessionActive,
	}
	if err := tx.Create(&session).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("machine %s: %w", ns.MachineID, ErrActiveSessionExists)
		}
		return nil, fmt.Errorf("failed to create session for machine %s: %w", ns.MachineID, err)
	}
	return &session, nil
}

// StartSession is the atomic check-and-insert: the machine is created if needed, must not be
// broken and must not have an active session. The session row, its verification code and the
// machine's occupancy commit together.
func (s *gormStore) StartSession(ctx context.Context, ns NewSession) (*model.Session, error) {
	var created *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureMachine(tx, ns.MachineID); err != nil {
			return err
		}
		m, err := getMachine(tx, ns.MachineID)
		if err != nil {
			return err
		}
		if m.Condition == model.ConditionBroken {
			return fmt.Errorf("machine %s: %w", ns.MachineID, ErrMachineBroken)
		}

		_, err = getActiveSession(tx, ns.MachineID)
		switch {
		case err == nil:
			return fmt.Errorf("machine %s: %w", ns.MachineID, ErrActiveSessionExists)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		created, err = createSession(tx, ns)
		if err != nil {
			return err
		}
		if err := setVerificationCode(tx, created.ID, ns.VerificationCode); err != nil {
			return err
		}
		created.VerificationCode = ns.VerificationCode
		return applyOccupancy(tx, ns.MachineID, model.EventSessionCreated)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetSession returns the session or ErrNotFound.
func (s *gormStore) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return getSession(s.db.WithContext(ctx), id)
}

func getSession(tx *gorm.DB, id int64) (*model.Session, error) {
	var session model.Session
	if err := tx.First(&session, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// GetActiveSession returns the most recent active session of a machine, or ErrNotFound.
func (s *gormStore) GetActiveSession(ctx context.Context, machineID string) (*model.Session, error) {
	return getActiveSession(s.db.WithContext(ctx), machineID)
}

func getActiveSession(tx *gorm.DB, machineID string) (*model.Session, error) {
	var session model.Session
	err := tx.Where("machine_id = ? AND status = ?", machineID, model.SessionActive).
		Order("id DESC").
		Take(&session).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// SetVerificationCode writes the code once; a second write fails with ErrVerificationCodeSet.
func (s *gormStore) SetVerificationCode(ctx context.Context, id int64, code string) error {
	return setVerificationCode(s.db.WithContext(ctx), id, code)
}

func setVerificationCode(tx *gorm.DB, id int64, code string) error {
	res := tx.Model(&model.Session{}).
		Where("id = ? AND verification_code = ?", id, "").
		Update("verification_code", code)
	if res.Error != nil {
		return fmt.Errorf("failed to set verification code of session %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := getSession(tx, id); err != nil {
			return fmt.Errorf("session %d: %w", id, err)
		}
		return fmt.Errorf("session %d: %w", id, ErrVerificationCodeSet)
	}
	return nil
}

// RecordFinishNotification overwrites the notification status and timestamp.
func (s *gormStore) RecordFinishNotification(ctx context.Context, id int64, status string, sentAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"finish_notify_status":  status,
			"finish_notify_sent_at": sentAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record finish notification of session %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkPickedUp is the terminal transition of a session. It never rewrites a picked-up session.
func (s *gormStore) MarkPickedUp(ctx context.Context, id int64, timeOut time.Time, delayMinutes int) (*model.Session, error) {
	var updated *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = markPickedUp(tx, id, timeOut, delayMinutes)
		return err
	})
	return updated, err
}

// CompletePickup marks the session picked up and frees its machine in one transaction.
func (s *gormStore) CompletePickup(ctx context.Context, id int64, timeOut time.Time, delayMinutes int) (*model.Session, error) {
	var updated *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = markPickedUp(tx, id, timeOut, delayMinutes)
		if err != nil {
			return err
		}
		return applyOccupancy(tx, updated.MachineID, model.EventPickupConfirmed)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func markPickedUp(tx *gorm.DB, id int64, timeOut time.Time, delayMinutes int) (*model.Session, error) {
	session, err := getSession(tx, id)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}
	next, err := session.Status.Apply(model.EventPickupConfirmed)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, ErrAlreadyPickedUp)
	}

	res := tx.Model(&model.Session{}).
		Where("id = ? AND status = ?", id, model.SessionActive).
		Updates(map[string]any{
			"status":        next,
			"time_out":      timeOut,
			"delay_minutes": delayMinutes,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark session %d picked up: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("session %d: %w", id, ErrAlreadyPickedUp)
	}

	session.Status = next
	session.TimeOut = &timeOut
	session.DelayMinutes = &delayMinutes
	return session, nil
}

// ListSessions returns the full session history in creation order.
func (s *gormStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).Order("id").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
