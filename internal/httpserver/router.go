package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vidstream/backend/internal/middleware"
)

type Deps struct {
	UserHandler *UserHTTP
	Auth        *middleware.Auth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	users := e.Group("/users")

	users.POST("/register", d.UserHandler.Register)
	users.POST("/login", d.UserHandler.Login)
	users.POST("/refresh-token", d.UserHandler.Refresh)
	users.GET("/search", d.UserHandler.SearchChannels)

	private := users.Group("")
	private.Use(d.Auth.RequireAuth)

	private.POST("/logout", d.UserHandler.Logout)
	private.POST("/change-password", d.UserHandler.ChangePassword)
	private.GET("/current-user", d.UserHandler.CurrentUser)
	private.PATCH("/update-user-details", d.UserHandler.UpdateAccountDetails)
	private.PATCH("/update-user-avatar", d.UserHandler.UpdateAvatar)
	private.PATCH("/update-user-coverimage", d.UserHandler.UpdateCover)
	private.GET("/c/:handle", d.UserHandler.Channel)
	private.GET("/history", d.UserHandler.History)
}
