package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-reservation-cache/cache"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their wire name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

type CreateReservationRequest struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `json:"time" validate:"required"`
	Purpose string `json:"purpose" validate:"required,max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

type listRequest struct {
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Search string `query:"search" validate:"max=100"`
	Status string `query:"status" validate:"max=32"`
}

func (r listRequest) ListQuery() cache.ListQuery {
	return cache.ListQuery{
		Page:   r.Page,
		Limit:  r.Limit,
		Search: r.Search,
		Status: r.Status,
	}.Normalize()
}

// bindAndValidate parses the JSON body into out and validates it.
func bindAndValidate(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validate.Struct(out)
}

func bindQuery(c *fiber.Ctx) (cache.ListQuery, error) {
	var req listRequest
	if err := c.QueryParser(&req); err != nil {
		return cache.ListQuery{}, fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := validate.Struct(req); err != nil {
		return cache.ListQuery{}, err
	}
	return req.ListQuery(), nil
}
