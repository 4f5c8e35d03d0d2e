package utils

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DataResponse sends a success envelope carrying data. extra keys are added
// at the top level next to data.
func DataResponse(c *fiber.Ctx, status int, data interface{}, extra fiber.Map) error {
	body := fiber.Map{
		"status":    "success",
		"ok":        true,
		"data":      data,
		"timestamp": timestamp(),
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// MessageResponse sends a success envelope with a human readable message.
func MessageResponse(c *fiber.Ctx, message string, extra fiber.Map) error {
	body := fiber.Map{
		"status":    "success",
		"ok":        true,
		"message":   message,
		"timestamp": timestamp(),
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// ErrorResponse sends a standard error response
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":    "error",
		"code":      status,
		"message":   message,
		"ok":        false,
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// ValidationErrorResponse sends a 400 listing every broken field rule
func ValidationErrorResponse(c *fiber.Ctx, errs []string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":    "error",
		"code":      fiber.StatusBadRequest,
		"message":   "Validation failed",
		"errors":    errs,
		"ok":        false,
		"timestamp": timestamp(),
		"url":       c.OriginalURL(),
		"type":      "validation",
	})
}

// NotFoundResponse sends a 404 not found response
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, message, fiber.StatusNotFound, "notFound")
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    string   `json:"status"`
	Code      int      `json:"code"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors,omitempty"`
	Ok        bool     `json:"ok"`
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Type      string   `json:"type,omitempty"`
}

// DataResponseStruct defines the schema for success responses
type DataResponseStruct struct {
	Status    string      `json:"status"`
	Ok        bool        `json:"ok"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}
