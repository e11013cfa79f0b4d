package http

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-reservation-cache/booking"
	"go.uber.org/zap"
)

var kindStatus = map[booking.Kind]int{
	booking.KindValidation: fiber.StatusBadRequest,
	booking.KindForbidden:  fiber.StatusForbidden,
	booking.KindNotFound:   fiber.StatusNotFound,
	booking.KindConflict:   fiber.StatusConflict,
	booking.KindStorage:    fiber.StatusInternalServerError,
}

// StatusFor maps a booking error kind onto an HTTP status.
func StatusFor(kind booking.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every error as {"message", "kind", "errors"} and keeps
// storage failures sanitized.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			out := make(map[string]string, len(ve))
			for _, fe := range ve {
				out[fe.Field()] = fe.Tag()
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "validation failed",
				"kind":    booking.KindValidation,
				"errors":  out,
			})
		}

		var be *booking.Error
		if errors.As(err, &be) {
			status := StatusFor(be.Kind)
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.String("op", be.Op),
					zap.Error(err),
				)
				return c.Status(status).JSON(fiber.Map{"message": "internal server error", "kind": be.Kind})
			}

			msg := string(be.Kind)
			if be.Err != nil {
				msg = be.Err.Error()
			}
			body := fiber.Map{"message": msg, "kind": be.Kind}
			var fields validation.Errors
			if errors.As(err, &fields) {
				out := make(map[string]string, len(fields))
				for name, ferr := range fields {
					out[name] = ferr.Error()
				}
				body["message"] = "validation failed"
				body["errors"] = out
			}
			return c.Status(status).JSON(body)
		}

		logger.Error("internal error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal server error",
		})
	}
}
