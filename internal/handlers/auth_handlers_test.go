package handlers

import (
	"net/http"
	"testing"

	"github.com/Rekwane/RJFinancial-sub000/internal/middleware"
	"github.com/Rekwane/RJFinancial-sub000/internal/models"
	"github.com/Rekwane/RJFinancial-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "alice",
		"email":    "Alice@Example.com",
		"password": "password123",
		"fullName": "Alice Smith",
	}, nil)
	assertStatus(t, resp, fiber.StatusCreated)

	body := decodeJSONMap(t, resp)
	data, _ := body["data"].(map[string]any)
	if data == nil {
		t.Fatalf("expected data envelope, got %+v", body)
	}
	if token, _ := data["token"].(string); token == "" {
		t.Fatal("expected a token in the register response")
	}

	userPayload, _ := data["user"].(map[string]any)
	if userPayload == nil {
		t.Fatalf("expected user in register response, got %+v", data)
	}
	if userPayload["email"] != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %v", userPayload["email"])
	}
	if _, leaked := userPayload["passwordHash"]; leaked {
		t.Fatal("password hash must never appear in responses")
	}
	if _, leaked := userPayload["password_hash"]; leaked {
		t.Fatal("password hash must never appear in responses")
	}

	var user models.User
	if err := env.db.First(&user, "email = ?", "alice@example.com").Error; err != nil {
		t.Fatalf("expected persisted user: %v", err)
	}
	if user.PasswordHash == "password123" {
		t.Fatal("password must be stored hashed")
	}
	if !utils.CheckPassword("password123", user.PasswordHash) {
		t.Fatal("stored hash does not verify the original password")
	}

	// An email code goes out on signup.
	sent := env.dispatch.lastSent(t)
	if sent.Channel != models.VerificationChannelEmail {
		t.Fatalf("expected email verification code, got %s", sent.Channel)
	}
	if len(sent.Code) != 6 {
		t.Fatalf("expected a 6-digit code, got %q", sent.Code)
	}

	waitForAuditRows(t, env.db, user.ID, models.AuditActionUserRegistered, 1)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, fiber.StatusOK)

	if sessionCookie(resp) == nil {
		t.Fatal("expected a session cookie on login")
	}

	body = decodeJSONMap(t, resp)
	data, _ = body["data"].(map[string]any)
	if data["token"] == nil || data["token"] == "" {
		t.Fatal("expected a token on login")
	}
	if _, mfa := data["requiresMfa"]; mfa {
		t.Fatal("did not expect an MFA challenge for a user without MFA")
	}

	waitForAuditRows(t, env.db, user.ID, models.AuditActionLogin, 1)
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)

	cases := []struct {
		name    string
		payload map[string]any
		message string
	}{
		{
			name:    "missing username",
			payload: map[string]any{"email": "a@b.com", "password": "password123", "fullName": "A"},
			message: "username is required",
		},
		{
			name:    "bad email",
			payload: map[string]any{"username": "a", "email": "not-an-email", "password": "password123", "fullName": "A"},
			message: "a valid email is required",
		},
		{
			name:    "short password",
			payload: map[string]any{"username": "a", "email": "a@b.com", "password": "short", "fullName": "A"},
			message: "password must be at least 8 characters",
		},
		{
			name:    "missing full name",
			payload: map[string]any{"username": "a", "email": "a@b.com", "password": "password123"},
			message: "fullName is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", tc.payload, nil)
			assertStatus(t, resp, fiber.StatusBadRequest)
			assertEnvelopeError(t, decodeJSONMap(t, resp), tc.message)
		})
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "taken", "taken@example.com", "password123", models.UserRoleUser)

	for _, payload := range []map[string]any{
		{"username": "taken", "email": "fresh@example.com", "password": "password123", "fullName": "X"},
		{"username": "fresh", "email": "taken@example.com", "password": "password123", "fullName": "X"},
	} {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", payload, nil)
		assertStatus(t, resp, fiber.StatusBadRequest)
		assertEnvelopeError(t, decodeJSONMap(t, resp), msgDuplicateIdentity)
	}

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected no new users after duplicate registers, got %d", count)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "bob", "bob@example.com", "password123", models.UserRoleUser)

	// Unknown account and wrong password read identically to the caller.
	for _, payload := range []map[string]any{
		{"email": "nobody@example.com", "password": "password123"},
		{"email": "bob@example.com", "password": "wrong-password"},
	} {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", payload, nil)
		assertStatus(t, resp, fiber.StatusUnauthorized)
		assertEnvelopeError(t, decodeJSONMap(t, resp), msgInvalidCredentials)
	}
}

func TestSessionCookieAuthenticates(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "carol", "carol@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "carol@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, fiber.StatusOK)

	cookie := sessionCookie(resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HTTPOnly")
	}
	if len(cookie.Value) != 32 {
		t.Fatalf("expected a 32-hex session id, got %q", cookie.Value)
	}

	resp = performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, map[string]string{
		"Cookie": middleware.SessionCookieName + "=" + cookie.Value,
	})
	assertStatus(t, resp, fiber.StatusOK)

	body := decodeJSONMap(t, resp)
	data, _ := body["data"].(map[string]any)
	if data["email"] != "carol@example.com" {
		t.Fatalf("expected carol's profile, got %+v", data)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "dave", "dave@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "dave@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, fiber.StatusOK)
	cookie := sessionCookie(resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	cookieHeader := map[string]string{
		"Cookie": middleware.SessionCookieName + "=" + cookie.Value,
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/logout", nil, cookieHeader)
	assertStatus(t, resp, fiber.StatusOK)
	waitForAuditRows(t, env.db, user.ID, models.AuditActionLogout, 1)

	// Session is gone; the cookie no longer authenticates.
	resp = performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, cookieHeader)
	assertStatus(t, resp, fiber.StatusUnauthorized)

	// Logging out again with the dead cookie still succeeds.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/logout", nil, cookieHeader)
	assertStatus(t, resp, fiber.StatusOK)

	// And with no credentials at all.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/logout", nil, nil)
	assertStatus(t, resp, fiber.StatusOK)
}

func TestMeRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
	assertStatus(t, resp, fiber.StatusUnauthorized)
}

func TestUpdateMeResetsPhoneVerification(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "erin", "erin@example.com", "password123", models.UserRoleUser)

	phone := "+15551230000"
	env.db.Model(user).Updates(map[string]interface{}{
		"phone_number":      phone,
		"is_phone_verified": true,
	})

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
		"phoneNumber": "+15559990000",
	}, authHeaders(token))
	assertStatus(t, resp, fiber.StatusOK)

	var fresh models.User
	if err := env.db.First(&fresh, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	if fresh.PhoneNumber == nil || *fresh.PhoneNumber != "+15559990000" {
		t.Fatalf("expected updated phone number, got %v", fresh.PhoneNumber)
	}
	if fresh.IsPhoneVerified {
		t.Fatal("changing the phone number must reset its verified flag")
	}
}

func TestChangePassword(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "frank", "frank@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
		"currentPassword": "wrong",
		"newPassword":     "newpassword123",
	}, authHeaders(token))
	assertStatus(t, resp, fiber.StatusUnauthorized)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
		"currentPassword": "password123",
		"newPassword":     "newpassword123",
	}, authHeaders(token))
	assertStatus(t, resp, fiber.StatusOK)

	var fresh models.User
	env.db.First(&fresh, "id = ?", user.ID)
	if !utils.CheckPassword("newpassword123", fresh.PasswordHash) {
		t.Fatal("new password does not verify after change")
	}

	waitForAuditRows(t, env.db, user.ID, models.AuditActionPasswordChanged, 1)
}
