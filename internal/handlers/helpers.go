package handlers

import (
	"strings"

	"github.com/Rekwane/RJFinancial-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	value, ok := c.Locals("requestid").(string)
	if !ok {
		return ""
	}
	return value
}

// newAuditEntry pre-fills the request-scoped fields every audit row carries.
func newAuditEntry(c *fiber.Ctx, userID *uuid.UUID, action string, details map[string]interface{}) services.AuditEntry {
	return services.AuditEntry{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
		RequestID: getRequestID(c),
	}
}

func isValidEmail(value string) bool {
	at := strings.Index(value, "@")
	return at > 0 && at < len(value)-1 && !strings.ContainsAny(value, " \t")
}
