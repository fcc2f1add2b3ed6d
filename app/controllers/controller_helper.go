package controllers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
)

var validate = validator.New()

// respondError writes the JSON error body for err with the status of its code.
func respondError(c *fiber.Ctx, err error) error {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   string(code),
		"message": apperr.MessageOf(err),
	})
}

// parseRequest decodes the JSON body into dst and validates it.
func parseRequest(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid request body", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Wrap(apperr.Validation, fmt.Sprintf("%s failed %s validation", jsonFieldName(fe), fe.Tag()), err)
		}
		return apperr.Wrap(apperr.Validation, "invalid request", err)
	}
	return nil
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "field"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
