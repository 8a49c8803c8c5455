package middleware

import (
	"strings"

	"github.com/Rekwane/RJFinancial-sub000/internal/models"
	"github.com/Rekwane/RJFinancial-sub000/internal/services"
	"github.com/Rekwane/RJFinancial-sub000/pkg/logger"
	"github.com/Rekwane/RJFinancial-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

const (
	currentUserKey = "currentUser"
	sessionIDKey   = "sessionID"

	// SessionCookieName is the HTTP-only cookie carrying the server-side
	// session identifier for browser flows.
	SessionCookieName = "rjf_session"
)

type AuthMiddleware struct {
	DB       *gorm.DB
	Sessions *services.SessionService
}

func NewAuthMiddleware(db *gorm.DB, sessions *services.SessionService) *AuthMiddleware {
	return &AuthMiddleware{DB: db, Sessions: sessions}
}

func CORS(frontendURL string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     frontendURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
	})
}

// RequireAuth authenticates a request from either a bearer token or the
// session cookie, in that order, and stashes the loaded user on the context.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	user, ok := a.resolveUser(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(currentUserKey, user)
	return c.Next()
}

// OptionalAuth attaches the user when valid credentials are present but never
// rejects the request.
func (a *AuthMiddleware) OptionalAuth(c *fiber.Ctx) error {
	if user, ok := a.resolveUser(c); ok {
		c.Locals(currentUserKey, user)
	}
	return c.Next()
}

func (a *AuthMiddleware) resolveUser(c *fiber.Ctx) (*models.User, bool) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if tokenString == authHeader || tokenString == "" {
			logger.Warn("jwt_invalid_format", map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return nil, false
		}

		claims, err := utils.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("jwt_validation_failed", map[string]interface{}{
				"ip":    c.IP(),
				"path":  c.Path(),
				"error": err.Error(),
			})
			return nil, false
		}

		return a.loadUser(c, claims.UserID.String())
	}

	if sessionID := c.Cookies(SessionCookieName); sessionID != "" && a.Sessions != nil {
		userID, err := a.Sessions.Lookup(c.Context(), sessionID)
		if err != nil {
			logger.Warn("session_lookup_failed", map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return nil, false
		}

		c.Locals(sessionIDKey, sessionID)
		return a.loadUser(c, userID.String())
	}

	return nil, false
}

func (a *AuthMiddleware) loadUser(c *fiber.Ctx, userID string) (*models.User, bool) {
	var user models.User
	if err := a.DB.First(&user, "id = ?", userID).Error; err != nil {
		logger.Warn("auth_user_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": userID,
		})
		return nil, false
	}
	return &user, true
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetSessionID returns the session id the request authenticated with, or ""
// when the request used a bearer token.
func GetSessionID(c *fiber.Ctx) string {
	value, ok := c.Locals(sessionIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
