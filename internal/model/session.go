package model

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a laundry session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionPickedUp SessionStatus = "picked_up"
)

// Apply returns the status after a pickup, or ErrInvalidTransition when already picked up.
func (s SessionStatus) Apply(ev Event) (SessionStatus, error) {
	if s == SessionActive && ev == EventPickupConfirmed {
		return SessionPickedUp, nil
	}
	return s, fmt.Errorf("%w: %s on %s session", ErrInvalidTransition, ev, s)
}

const (
	notifySentPrefix   = "SENT"
	notifyFailedPrefix = "FAILED"
)

// SentStatus is the stored finish-notification status of a delivered message.
func SentStatus(messageID string) string {
	return notifySentPrefix + ":" + messageID
}

// FailedStatus is the stored finish-notification status of a failed attempt.
func FailedStatus(kind string) string {
	return notifyFailedPrefix + ":" + kind
}

// Session is one load in one machine, from registration to pickup.
type Session struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID          string        `gorm:"size:3;not null;index" json:"machineId"`
	FirstName          string        `gorm:"size:128;not null" json:"firstName"`
	LastName           string        `gorm:"size:128;not null" json:"lastName"`
	Phone              string        `gorm:"size:10;not null" json:"phone"`
	TimeIn             time.Time     `gorm:"not null" json:"timeIn"`
	ExpectedEnd        time.Time     `gorm:"not null" json:"expectedEnd"`
	Status             SessionStatus `gorm:"size:16;not null;index" json:"status"`
	VerificationCode   string        `gorm:"size:6;not null;default:''" json:"-"`
	TimeOut            *time.Time    `json:"timeOut,omitempty"`
	DelayMinutes       *int          `json:"delayMinutes,omitempty"`
	FinishNotifyStatus string        `gorm:"size:255;not null;default:''" json:"finishNotifyStatus,omitempty"`
	FinishNotifySentAt *time.Time    `json:"finishNotifySentAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// NotificationSent reports whether a finish notification was already delivered.
func (s Session) NotificationSent() bool {
	return strings.HasPrefix(s.FinishNotifyStatus, notifySentPrefix)
}

// SentMessageID returns the provider id recorded in a SENT status.
func (s Session) SentMessageID() string {
	return strings.TrimPrefix(strings.TrimPrefix(s.FinishNotifyStatus, notifySentPrefix), ":")
}
