package middleware

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/shopdb/internal/services"
	"github.com/localnerve/shopdb/internal/types"
)

// AdminKeyHeader carries a shared key without touching the request body.
const AdminKeyHeader = "X-Admin-Key"

// SessionCookie is the Authorizer session cookie name.
const SessionCookie = "cookie_session"

// RequireAdmin gates personnel updates and destructive maintenance.
func RequireAdmin(policy services.AccessPolicy) fiber.Handler {
	return RequireScope(policy, services.ScopeAdmin, "authorization.admin")
}

// RequireSetup gates personnel registration.
func RequireSetup(policy services.AccessPolicy) fiber.Handler {
	return RequireScope(policy, services.ScopeSetup, "authorization.setup")
}

// RequireScope rejects the request unless policy grants scope to the
// credentials it carries. The failure never says which key was expected.
func RequireScope(policy services.AccessPolicy, scope services.Scope, errorType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !policy.Authorize(c.UserContext(), Credentials(c), scope) {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: "Unauthorized",
				Type:    errorType,
			}
		}
		return c.Next()
	}
}

// Credentials collects a key from the X-Admin-Key header, a key or setupKey
// field in a JSON or form body, and the Authorizer session cookie.
func Credentials(c *fiber.Ctx) services.Credentials {
	creds := services.Credentials{
		Key:     c.Get(AdminKeyHeader),
		Session: c.Cookies(SessionCookie),
	}
	if creds.Key != "" {
		return creds
	}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var body struct {
			Key      string `json:"key"`
			SetupKey string `json:"setupKey"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			creds.Key = body.Key
			if creds.Key == "" {
				creds.Key = body.SetupKey
			}
		}
		return creds
	}

	creds.Key = c.FormValue("key")
	if creds.Key == "" {
		creds.Key = c.FormValue("setupKey")
	}
	return creds
}
