package middleware

import (
	"github.com/Rekwane/RJFinancial-sub000/internal/models"
	"github.com/Rekwane/RJFinancial-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Predicate is a single authorization check against the authenticated user.
// Route guards are built by composing predicates instead of re-fetching roles
// in every middleware.
type Predicate func(user *models.User) bool

func HasRole(role models.UserRole) Predicate {
	return func(user *models.User) bool {
		return user.Role == role
	}
}

func HasActiveMembership(tier models.MembershipTier) Predicate {
	return func(user *models.User) bool {
		return user.HasActiveMembership(tier)
	}
}

func And(predicates ...Predicate) Predicate {
	return func(user *models.User) bool {
		for _, p := range predicates {
			if !p(user) {
				return false
			}
		}
		return true
	}
}

func Or(predicates ...Predicate) Predicate {
	return func(user *models.User) bool {
		for _, p := range predicates {
			if p(user) {
				return true
			}
		}
		return false
	}
}

// Require turns a predicate into a route guard. It must run after RequireAuth.
func Require(pred Predicate, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil {
			return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
		}
		if !pred(user) {
			return utils.Error(c, fiber.StatusForbidden, message)
		}
		return c.Next()
	}
}

// AdminOnly guards the admin surfaces.
func AdminOnly() fiber.Handler {
	return Require(HasRole(models.UserRoleAdmin), "admin access required")
}
