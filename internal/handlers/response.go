package handlers

import (
	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:        fiber.StatusBadRequest,
	services.KindUnauthorized:      fiber.StatusUnauthorized,
	services.KindForbidden:         fiber.StatusForbidden,
	services.KindNotFound:          fiber.StatusNotFound,
	services.KindCoupon:            fiber.StatusBadRequest,
	services.KindInvalidTransition: fiber.StatusConflict,
	services.KindConflict:          fiber.StatusConflict,
	services.KindInternal:          fiber.StatusInternalServerError,
}

// ErrorHandler renders every failure as {success: false, message, errors?}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if se, ok := services.AsError(err); ok {
		status, known := kindStatus[se.Kind]
		if !known {
			status = fiber.StatusInternalServerError
		}
		if status == fiber.StatusInternalServerError {
			return internalError(c, err)
		}

		body := fiber.Map{"success": false, "message": se.Message}
		if len(se.Fields) > 0 {
			body["errors"] = se.Fields
		}
		if se.Kind == services.KindCoupon || se.Kind == services.KindInvalidTransition {
			body["code"] = se.Code
		}
		if se.Kind == services.KindInvalidTransition {
			body["from"] = se.From
			body["to"] = se.To
		}
		return c.Status(status).JSON(body)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code >= fiber.StatusInternalServerError {
			return internalError(c, err)
		}
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
	}

	return internalError(c, err)
}

func internalError(c *fiber.Ctx, err error) error {
	logger.Log.Error().Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "internal server error",
	})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func created(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "message": message, "data": data})
}

func paginated(c *fiber.Ctx, data any, pg utils.Pagination, total int64) error {
	return c.JSON(fiber.Map{"success": true, "data": data, "pagination": pg.Meta(total)})
}

// parseBody decodes the request body and runs struct validation.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if fields := utils.ValidateStruct(out); fields != nil {
		return services.ValidationError("validation failed", fields...)
	}
	return nil
}

func paramID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}
