package handlers

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"timeplus_app/internal/middleware"
	"timeplus_app/internal/services"
)

// RequestValidator plugs go-playground/validator into echo.Context.Validate.
// Field names in errors are the JSON names.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &RequestValidator{validate: v}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func bindAndValidate(c echo.Context, dest interface{}) error {
	if err := c.Bind(dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dest)
}

func getStringFromContext(c echo.Context, key string) string {
	if val := c.Get(key); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func actorFromContext(c echo.Context) (services.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return services.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "Please log in to continue.")
	}
	return actor, nil
}
