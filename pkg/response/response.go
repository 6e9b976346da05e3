package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Standard API response envelope. Every endpoint answers with this shape:
//
//	{
//	  "data": { ... },
//	  "meta": {"request_id": "uuid", "timestamp": "2026-01-31T12:00:00Z"}
//	}
//
// or, on failure:
//
//	{
//	  "error": {"code": "NO_POSITION", "message": "...", "details": [...]},
//	  "meta": {"request_id": "uuid", "timestamp": "2026-01-31T12:00:00Z"}
//	}

// Response is the standard API response envelope
type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
	Meta  Meta       `json:"meta"`
}

// ErrorBody contains error details
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Meta contains request metadata
type Meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// Success returns a successful response with data
func Success(c *fiber.Ctx, data any) error {
	return c.JSON(Response{
		Data: data,
		Meta: buildMeta(c),
	})
}

// SuccessWithStatus returns a successful response with custom status code
func SuccessWithStatus(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{
		Data: data,
		Meta: buildMeta(c),
	})
}

// Created returns a 201 Created response
func Created(c *fiber.Ctx, data any) error {
	return SuccessWithStatus(c, fiber.StatusCreated, data)
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, code, message string, details ...string) error {
	return c.Status(status).JSON(Response{
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: buildMeta(c),
	})
}

func buildMeta(c *fiber.Ctx) Meta {
	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		requestID = c.Locals("request_id", uuid.New().String()).(string)
	}

	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Version:   "v1",
	}
}
