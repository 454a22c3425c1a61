package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"timeplus_app/internal/services"
)

const genericErrorMessage = "Something went wrong. Please try again later."

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Message string `json:"message"`
}

// JSONErrorHandler renders service, validation and echo errors as
// {"message": ...}. Server-side failures are logged with their cause.
func JSONErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := resolveError(err)

		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if uid, ok := c.Get(ContextUserUID).(string); ok {
			fields = append(fields, zap.String("uid", uid))
		}
		if code >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Debug("request rejected", fields...)
		}

		var sendErr error
		if c.Request().Method == http.MethodHead {
			sendErr = c.NoContent(code)
		} else {
			sendErr = c.JSON(code, ErrorResponse{Message: message})
		}
		if sendErr != nil {
			log.Error("failed to write error response", zap.Error(sendErr))
		}
	}
}

func resolveError(err error) (int, string) {
	var (
		se  *services.ServiceError
		he  *echo.HTTPError
		ves validator.ValidationErrors
	)
	switch {
	case errors.As(err, &se):
		return se.StatusCode(), se.ClientMessage()
	case errors.As(err, &ves):
		return http.StatusBadRequest, validationMessage(ves)
	case errors.As(err, &he):
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = genericErrorMessage
		}
		return he.Code, msg
	default:
		return http.StatusInternalServerError, genericErrorMessage
	}
}

func validationMessage(ves validator.ValidationErrors) string {
	fe := ves[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email.", fe.Field())
	case "gt", "gte", "min":
		return fmt.Sprintf("%s must be at least %s.", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s.", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}
