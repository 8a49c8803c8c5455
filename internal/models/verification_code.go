package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationChannel string

const (
	VerificationChannelEmail VerificationChannel = "email"
	VerificationChannelSMS   VerificationChannel = "sms"
)

func (c VerificationChannel) Valid() bool {
	return c == VerificationChannelEmail || c == VerificationChannelSMS
}

// VerificationCode is a one-time 6-digit challenge delivered over email or SMS.
// Rows are never deleted: issuing a new code leaves older rows in place, and the
// redeem path always selects the newest row for a (user, channel) pair. A row is
// spent by flipping is_verified exactly once.
type VerificationCode struct {
	BaseModel
	UserID     uuid.UUID           `json:"userID" gorm:"type:uuid;not null;index:idx_codes_user_channel"`
	Channel    VerificationChannel `json:"channel" gorm:"type:varchar(10);not null;index:idx_codes_user_channel"`
	Code       string              `json:"-" gorm:"type:varchar(6);not null"`
	ExpiresAt  time.Time           `json:"expiresAt" gorm:"not null"`
	IsVerified bool                `json:"isVerified" gorm:"not null;default:false"`
	User       User                `json:"-" gorm:"foreignKey:UserID"`
}

func (VerificationCode) TableName() string {
	return "verification_codes"
}
