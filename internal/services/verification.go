package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Rekwane/RJFinancial-sub000/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const codeTTL = 10 * time.Minute

var (
	ErrCodeNotFound    = errors.New("no verification code on record")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrCodeAlreadyUsed = errors.New("verification code already used")
)

// VerificationService is the one-time-code ledger. Codes live for ten minutes,
// are redeemable exactly once, and are never deleted — spent and expired rows
// stay behind as part of the audit trail.
type VerificationService struct {
	DB *gorm.DB
}

func NewVerificationService(db *gorm.DB) *VerificationService {
	return &VerificationService{DB: db}
}

// Issue mints a fresh 6-digit code for the user on the given channel. Earlier
// unexpired codes are deliberately left valid; Redeem only ever looks at the
// newest row.
func (s *VerificationService) Issue(ctx context.Context, userID uuid.UUID, channel models.VerificationChannel) (*models.VerificationCode, error) {
	code, err := randomCode()
	if err != nil {
		return nil, err
	}

	row := models.VerificationCode{
		UserID:    userID,
		Channel:   channel,
		Code:      code,
		ExpiresAt: time.Now().Add(codeTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}

	return &row, nil
}

// Redeem spends the newest code for (user, channel). Exactly one of two
// concurrent redeems of the same row can win: the row is consumed with a
// conditional update on is_verified rather than a read-then-write.
func (s *VerificationService) Redeem(ctx context.Context, userID uuid.UUID, code string, channel models.VerificationChannel) error {
	var row models.VerificationCode
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND channel = ?", userID, channel).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeNotFound
		}
		return err
	}

	if time.Now().After(row.ExpiresAt) {
		return ErrCodeExpired
	}
	if row.Code != code {
		return ErrCodeMismatch
	}
	if row.IsVerified {
		return ErrCodeAlreadyUsed
	}

	result := s.DB.WithContext(ctx).
		Model(&models.VerificationCode{}).
		Where("id = ? AND is_verified = ?", row.ID, false).
		Update("is_verified", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}

	return nil
}

// MarkChannelVerified flips the user flag matching a successfully redeemed
// channel. The ledger owns the code row; the caller owns this side effect.
func (s *VerificationService) MarkChannelVerified(ctx context.Context, userID uuid.UUID, channel models.VerificationChannel) error {
	column := "is_email_verified"
	if channel == models.VerificationChannelSMS {
		column = "is_phone_verified"
	}
	return s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update(column, true).Error
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
