package handlers

import (
	"time"

	"github.com/Rekwane/RJFinancial-sub000/internal/middleware"
	"github.com/Rekwane/RJFinancial-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Membership reports the caller's membership standing. Gold-gated features in
// the SPA key off the "active" flag rather than re-deriving expiry locally.
func Membership(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	active := user.MembershipExpiresAt == nil || user.MembershipExpiresAt.After(time.Now())

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"tier":      user.MembershipTier,
		"expiresAt": user.MembershipExpiresAt,
		"active":    active,
	})
}
