package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-session-backend/internal/model"
)

// EnsureMachine creates a vacant, normal machine unless one already exists.
func (s *gormStore) EnsureMachine(ctx context.Context, id string) error {
	return ensureMachine(s.db.WithContext(ctx), id)
}

func ensureMachine(tx *gorm.DB, id string) error {
	m := model.NewMachine(id)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to ensure machine %s: %w", id, err)
	}
	return nil
}

// GetMachine returns the machine or ErrNotFound if it was never scanned.
func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	return getMachine(s.db.WithContext(ctx), id)
}

func getMachine(tx *gorm.DB, id string) (*model.Machine, error) {
	var m model.Machine
	if err := tx.Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListMachines returns every known machine ordered by identifier.
func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// SetOccupied marks the machine occupied; it must currently be vacant.
func (s *gormStore) SetOccupied(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyOccupancy(tx, id, model.EventSessionCreated)
	})
}

// SetVacant marks the machine vacant; it must currently be occupied.
func (s *gormStore) SetVacant(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyOccupancy(tx, id, model.EventPickupConfirmed)
	})
}

// applyOccupancy runs the occupancy state machine and writes the result only if no other
// writer changed the row in between.
func applyOccupancy(tx *gorm.DB, id string, ev model.Event) error {
	m, err := getMachine(tx, id)
	if err != nil {
		return fmt.Errorf("machine %s: %w", id, err)
	}
	next, err := m.Occupancy.Apply(ev)
	if err != nil {
		return fmt.Errorf("machine %s: %w", id, err)
	}
	res := tx.Model(&model.Machine{}).
		Where("id = ? AND occupancy = ?", id, m.Occupancy).
		Update("occupancy", next)
	if res.Error != nil {
		return fmt.Errorf("failed to update occupancy of machine %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("machine %s changed concurrently: %w", id, model.ErrInvalidTransition)
	}
	return nil
}

// UpdateCondition moves the machine between normal and broken and stamps the audit fields.
// Reporting a problem clears the previous resolution; resolving keeps the report time so
// that repair duration stays computable.
func (s *gormStore) UpdateCondition(ctx context.Context, id string, target model.Condition, reason string, now time.Time) (*model.Machine, error) {
	var updated *model.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := getMachine(tx, id)
		if err != nil {
			return fmt.Errorf("machine %s: %w", id, err)
		}
		next, err := m.Condition.Apply(target)
		if err != nil {
			return fmt.Errorf("machine %s: %w", id, err)
		}

		changes := map[string]any{
			"condition_status":     next,
			"condition_updated_at": now,
			"condition_reason":     reason,
		}
		if next == model.ConditionBroken {
			changes["problem_reported_at"] = now
			changes["problem_resolved_at"] = nil
		} else {
			changes["problem_resolved_at"] = now
		}

		res := tx.Model(&model.Machine{}).
			Where("id = ? AND condition_status = ?", id, m.Condition).
			Updates(changes)
		if res.Error != nil {
			return fmt.Errorf("failed to update condition of machine %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("machine %s changed concurrently: %w", id, model.ErrInvalidTransition)
		}

		updated, err = getMachine(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
