package models

import "time"

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type MembershipTier string

const (
	MembershipTierFree MembershipTier = "free"
	MembershipTierGold MembershipTier = "gold"
)

type User struct {
	BaseModel
	Username            string         `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Email               string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash        string         `json:"-" gorm:"type:text;not null"`
	FullName            string         `json:"fullName" gorm:"type:varchar(200);not null"`
	PhoneNumber         *string        `json:"phoneNumber,omitempty" gorm:"type:varchar(20)"`
	IsEmailVerified     bool           `json:"isEmailVerified" gorm:"not null;default:false"`
	IsPhoneVerified     bool           `json:"isPhoneVerified" gorm:"not null;default:false"`
	MFAEnabled          bool           `json:"mfaEnabled" gorm:"not null;default:false"`
	Role                UserRole       `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	MembershipTier      MembershipTier `json:"membershipTier" gorm:"type:varchar(20);not null;default:'free'"`
	MembershipExpiresAt *time.Time     `json:"membershipExpiresAt,omitempty"`
	LastLoginAt         *time.Time     `json:"lastLoginAt,omitempty"`
}

// HasActiveMembership reports whether the user currently holds the given tier.
// A tier with no expiry set never lapses.
func (u *User) HasActiveMembership(tier MembershipTier) bool {
	if u.MembershipTier != tier {
		return false
	}
	if u.MembershipExpiresAt == nil {
		return true
	}
	return u.MembershipExpiresAt.After(time.Now())
}
