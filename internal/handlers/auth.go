package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/Rekwane/RJFinancial-sub000/internal/middleware"
	"github.com/Rekwane/RJFinancial-sub000/internal/models"
	"github.com/Rekwane/RJFinancial-sub000/internal/services"
	"github.com/Rekwane/RJFinancial-sub000/pkg/logger"
	"github.com/Rekwane/RJFinancial-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Generic rejection messages. Credential and code failures deliberately do not
// say which check failed, and the identity conflict does not say which field
// collided.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidCode        = "invalid or expired verification code"
	msgDuplicateIdentity  = "an account with that username or email already exists"
)

type AuthHandler struct {
	DB       *gorm.DB
	Audit    *services.AuditService
	Sessions *services.SessionService
	Codes    *services.VerificationService
	Dispatch services.CodeDispatcher

	// SecureCookies marks the session cookie Secure; set in production.
	SecureCookies bool
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService, sessions *services.SessionService, codes *services.VerificationService, dispatch services.CodeDispatcher) *AuthHandler {
	return &AuthHandler{
		DB:       db,
		Audit:    audit,
		Sessions: sessions,
		Codes:    codes,
		Dispatch: dispatch,
	}
}

type registerRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FullName    string  `json:"fullName"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	if req.Username == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username is required")
	}
	if !isValidEmail(req.Email) {
		return utils.Error(c, fiber.StatusBadRequest, "a valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.FullName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "fullName is required")
	}

	var phone *string
	if req.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*req.PhoneNumber)
		if trimmed != "" {
			phone = &trimmed
		}
	}

	var existing int64
	if err := h.DB.Model(&models.User{}).
		Where("username = ? OR email = ?", req.Username, req.Email).
		Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing accounts")
	}
	if existing > 0 {
		return utils.Error(c, fiber.StatusBadRequest, msgDuplicateIdentity)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		PhoneNumber:  phone,
		Role:         models.UserRoleUser,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		// The OR-count above races with a concurrent register; the unique
		// indexes are the authority.
		return utils.Error(c, fiber.StatusBadRequest, msgDuplicateIdentity)
	}

	// Verification codes ride along on registration best-effort: a provider
	// outage must not cost us the signup.
	h.issueAndDispatch(c, &user, models.VerificationChannelEmail)
	if user.PhoneNumber != nil {
		h.issueAndDispatch(c, &user, models.VerificationChannelSMS)
	}

	h.Audit.LogAsync(newAuditEntry(c, &user.ID, models.AuditActionUserRegistered, map[string]interface{}{
		"username": user.Username,
	}))

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"username": user.Username,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"user": user, "token": token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusUnauthorized, msgInvalidCredentials)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_password_mismatch", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, msgInvalidCredentials)
	}

	if user.MFAEnabled {
		// Credentials checked but not yet authenticated: no session, no
		// token until the second factor clears.
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"requiresMfa": true,
			"userId":      user.ID,
		})
	}

	return h.completeLogin(c, &user, models.AuditActionLogin, nil)
}

type verifyMFARequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
	Type   string `json:"type"`
}

func (h *AuthHandler) VerifyMFA(c *fiber.Ctx) error {
	var req verifyMFARequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	channel := models.VerificationChannel(strings.ToLower(strings.TrimSpace(req.Type)))
	if !channel.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "type must be email or sms")
	}

	userID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Same rejection as a bad code so the endpoint cannot be used to
			// probe for account ids.
			return utils.Error(c, fiber.StatusBadRequest, msgInvalidCode)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	if err := h.Codes.Redeem(c.Context(), user.ID, strings.TrimSpace(req.Code), channel); err != nil {
		switch {
		case errors.Is(err, services.ErrCodeNotFound),
			errors.Is(err, services.ErrCodeExpired),
			errors.Is(err, services.ErrCodeMismatch),
			errors.Is(err, services.ErrCodeAlreadyUsed):
			logger.Warn("mfa_code_rejected", map[string]interface{}{
				"user_id": user.ID.String(),
				"channel": string(channel),
				"reason":  err.Error(),
			})
			return utils.Error(c, fiber.StatusBadRequest, msgInvalidCode)
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed verifying code")
		}
	}

	if err := h.Codes.MarkChannelVerified(c.Context(), user.ID, channel); err != nil {
		logger.Error("mfa_flag_update_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
			"channel": string(channel),
		})
	} else if channel == models.VerificationChannelEmail {
		user.IsEmailVerified = true
	} else {
		user.IsPhoneVerified = true
	}

	return h.completeLogin(c, &user, models.AuditActionMFAVerified, map[string]interface{}{
		"channel": string(channel),
	})
}

// completeLogin is the single place a fully authenticated identity becomes a
// session + bearer token.
func (h *AuthHandler) completeLogin(c *fiber.Ctx, user *models.User, action string, details map[string]interface{}) error {
	now := time.Now()
	if err := h.DB.Model(user).Update("last_login_at", now).Error; err != nil {
		logger.Error("last_login_update_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}
	user.LastLoginAt = &now

	sessionID, err := h.Sessions.Create(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating session")
	}
	h.setSessionCookie(c, sessionID)

	token, err := utils.GenerateToken(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	h.Audit.LogAsync(newAuditEntry(c, &user.ID, action, details))

	logger.InfoWithUser(user.ID.String(), "user_authenticated", map[string]interface{}{
		"action": action,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"user": user, "token": token})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user != nil {
		h.Audit.LogAsync(newAuditEntry(c, &user.ID, models.AuditActionLogout, nil))
	}

	if sessionID := middleware.GetSessionID(c); sessionID != "" {
		if err := h.Sessions.Destroy(c.Context(), sessionID); err != nil {
			logger.Error("session_destroy_failed", err, nil)
		}
	} else if cookie := c.Cookies(middleware.SessionCookieName); cookie != "" {
		if err := h.Sessions.Destroy(c.Context(), cookie); err != nil {
			logger.Error("session_destroy_failed", err, nil)
		}
	}

	h.clearSessionCookie(c)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type updateMeRequest struct {
	FullName    *string `json:"fullName"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		value := strings.TrimSpace(*req.FullName)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "fullName cannot be empty")
		}
		updates["full_name"] = value
	}
	if req.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*req.PhoneNumber)
		if trimmed == "" {
			updates["phone_number"] = nil
		} else {
			updates["phone_number"] = trimmed
		}
		// A new number has not been proven yet.
		updates["is_phone_verified"] = false
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(user).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	var fresh models.User
	if err := h.DB.First(&fresh, "id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated profile")
	}

	return utils.Success(c, fiber.StatusOK, fresh)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusUnauthorized, "current password is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(user).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	h.Audit.LogAsync(newAuditEntry(c, &user.ID, models.AuditActionPasswordChanged, nil))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

func (h *AuthHandler) RequestEmailVerification(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if user.Email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "no email on file")
	}
	return h.requestVerification(c, user, models.VerificationChannelEmail)
}

func (h *AuthHandler) RequestSMSVerification(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if user.PhoneNumber == nil || *user.PhoneNumber == "" {
		return utils.Error(c, fiber.StatusBadRequest, "no phone number on file")
	}
	return h.requestVerification(c, user, models.VerificationChannelSMS)
}

// requestVerification is the explicit "send me a code" path: here dispatch
// failure IS the failure mode, unlike the best-effort sends on registration.
func (h *AuthHandler) requestVerification(c *fiber.Ctx, user *models.User, channel models.VerificationChannel) error {
	code, err := h.Codes.Issue(c.Context(), user.ID, channel)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing verification code")
	}

	if err := h.Dispatch.SendCode(c.Context(), user, channel, code.Code); err != nil {
		logger.Error("verification_dispatch_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
			"channel": string(channel),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed sending verification code")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "verification code sent",
	})
}

type verifyChannelRequest struct {
	Code string `json:"code"`
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	return h.verifyChannel(c, models.VerificationChannelEmail, models.AuditActionEmailVerified)
}

func (h *AuthHandler) VerifySMS(c *fiber.Ctx) error {
	return h.verifyChannel(c, models.VerificationChannelSMS, models.AuditActionPhoneVerified)
}

func (h *AuthHandler) verifyChannel(c *fiber.Ctx, channel models.VerificationChannel, action string) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	if err := h.Codes.Redeem(c.Context(), user.ID, strings.TrimSpace(req.Code), channel); err != nil {
		switch {
		case errors.Is(err, services.ErrCodeNotFound),
			errors.Is(err, services.ErrCodeExpired),
			errors.Is(err, services.ErrCodeMismatch),
			errors.Is(err, services.ErrCodeAlreadyUsed):
			return utils.Error(c, fiber.StatusBadRequest, msgInvalidCode)
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed verifying code")
		}
	}

	if err := h.Codes.MarkChannelVerified(c.Context(), user.ID, channel); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating verification status")
	}

	h.Audit.LogAsync(newAuditEntry(c, &user.ID, action, map[string]interface{}{
		"channel": string(channel),
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "verified"})
}

func (h *AuthHandler) issueAndDispatch(c *fiber.Ctx, user *models.User, channel models.VerificationChannel) {
	code, err := h.Codes.Issue(c.Context(), user.ID, channel)
	if err != nil {
		logger.Error("verification_issue_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
			"channel": string(channel),
		})
		return
	}

	if err := h.Dispatch.SendCode(c.Context(), user, channel, code.Code); err != nil {
		logger.Warn("verification_dispatch_skipped", map[string]interface{}{
			"user_id": user.ID.String(),
			"channel": string(channel),
			"error":   err.Error(),
		})
	}
}

func (h *AuthHandler) setSessionCookie(c *fiber.Ctx, sessionID string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		HTTPOnly: true,
		Secure:   h.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		Path:     "/",
	})
}

func (h *AuthHandler) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		HTTPOnly: true,
		Secure:   h.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   -1,
		Path:     "/",
	})
}
