package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/localnerve/shopdb/internal/models"
	"github.com/localnerve/shopdb/internal/services"
)

// secretFields never reach the activity log, whatever the route.
var secretFields = []string{"key", "setupKey", "password", "newPassword", "passwordHash"}

// ActivityLogger records every mutating request that completes without an
// error status. Payloads of routes whose path mentions auth are replaced
// with the literal REDACTED.
func ActivityLogger(activity *services.ActivityLog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isMutating(c.Method()) {
			return c.Next()
		}

		// entries outlive the request; fasthttp reuses its buffers
		method := fiberutils.CopyString(c.Method())
		path := fiberutils.CopyString(c.Path())
		payload := capturePayload(c, path)

		if err := c.Next(); err != nil {
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusBadRequest {
			return nil
		}

		activity.Record(models.LogEntry{
			Timestamp: time.Now().UTC(),
			Method:    method,
			Path:      path,
			Payload:   payload,
			Status:    status,
		})
		return nil
	}
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

func capturePayload(c *fiber.Ctx, path string) interface{} {
	if strings.Contains(strings.ToLower(path), "auth") {
		return models.Redacted
	}
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return nil
	}
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return redact(payload)
}

func redact(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for _, field := range secretFields {
			if _, ok := t[field]; ok {
				t[field] = models.Redacted
			}
		}
		for k, val := range t {
			t[k] = redact(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = redact(val)
		}
		return t
	}
	return v
}
