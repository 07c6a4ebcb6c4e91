package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vidstream/backend/internal/apperr"
)

// Response is the envelope every endpoint returns, success or failure.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// ErrorHandler converts workflow errors into the envelope. Client-visible
// messages come from the error taxonomy only; wrapped causes and anything
// unclassified are logged server-side and reported as a bare 500.
func ErrorHandler(base *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := apperr.Status(err)
		message := apperr.Message(err)

		var he *echo.HTTPError
		if apperr.KindOf(err) == apperr.KindUnknown {
			if errors.As(err, &he) {
				status = he.Code
				message = http.StatusText(he.Code)
				if s, isStr := he.Message.(string); isStr {
					message = s
				}
			}
		}

		if status >= http.StatusInternalServerError {
			base.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = respond(c, status, nil, message)
	}
}
