package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a state change is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Occupancy tells whether a machine currently has an active session.
type Occupancy string

const (
	OccupancyVacant   Occupancy = "vacant"
	OccupancyOccupied Occupancy = "occupied"
)

// Event drives the occupancy and session state machines.
type Event int

const (
	EventSessionCreated Event = iota
	EventPickupConfirmed
)

func (e Event) String() string {
	switch e {
	case EventSessionCreated:
		return "session created"
	case EventPickupConfirmed:
		return "pickup confirmed"
	}
	return fmt.Sprintf("event %d", int(e))
}

// Apply returns the occupancy after ev, or ErrInvalidTransition.
func (o Occupancy) Apply(ev Event) (Occupancy, error) {
	switch {
	case o == OccupancyVacant && ev == EventSessionCreated:
		return OccupancyOccupied, nil
	case o == OccupancyOccupied && ev == EventPickupConfirmed:
		return OccupancyVacant, nil
	}
	return o, fmt.Errorf("%w: %s on %s machine", ErrInvalidTransition, ev, o)
}

// Condition tells whether a machine is operable.
type Condition string

const (
	ConditionNormal Condition = "normal"
	ConditionBroken Condition = "broken"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	return c == ConditionNormal || c == ConditionBroken
}

// Apply returns the condition after a change request to target, or ErrInvalidTransition.
func (c Condition) Apply(target Condition) (Condition, error) {
	switch {
	case c == ConditionNormal && target == ConditionBroken:
		return ConditionBroken, nil
	case c == ConditionBroken && target == ConditionNormal:
		return ConditionNormal, nil
	}
	return c, fmt.Errorf("%w: %s machine cannot become %s", ErrInvalidTransition, c, target)
}

// Machine is a washer or dryer addressed by its QR identifier, e.g. "MA3".
type Machine struct {
	ID                 string     `gorm:"primaryKey;size:3" json:"id"`
	Occupancy          Occupancy  `gorm:"size:16;not null" json:"occupancy"`
	Condition          Condition  `gorm:"column:condition_status;size:16;not null" json:"condition"`
	ConditionUpdatedAt *time.Time `json:"conditionUpdatedAt,omitempty"`
	ConditionReason    string     `gorm:"size:512" json:"conditionReason,omitempty"`
	ProblemReportedAt  *time.Time `json:"problemReportedAt,omitempty"`
	ProblemResolvedAt  *time.Time `json:"problemResolvedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// NewMachine returns a vacant machine in normal condition.
func NewMachine(id string) Machine {
	return Machine{ID: id, Occupancy: OccupancyVacant, Condition: ConditionNormal}
}

// RepairMinutes is resolved minus reported in whole minutes, if the machine was repaired
// after its last reported problem.
func (m Machine) RepairMinutes() (int, bool) {
	if m.ProblemReportedAt == nil || m.ProblemResolvedAt == nil {
		return 0, false
	}
	d := m.ProblemResolvedAt.Sub(*m.ProblemReportedAt)
	if d < 0 {
		return 0, false
	}
	return int(d / time.Minute), true
}
