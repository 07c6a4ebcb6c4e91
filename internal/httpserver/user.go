package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/service"
)

type UserHTTP struct {
	Svc *service.UserService
}

func (h *UserHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()

	avatar, closeAvatar, err := fileFromForm(c, "avatar")
	if err != nil {
		return err
	}
	defer closeAvatar()
	cover, closeCover, err := fileFromForm(c, "coverImg")
	if err != nil {
		return err
	}
	defer closeCover()

	user, err := h.Svc.Register(ctx, service.RegisterInput{
		Username: c.FormValue("username"),
		Email:    c.FormValue("email"),
		FullName: c.FormValue("fullname"),
		Password: c.FormValue("password"),
		Avatar:   avatar,
		Cover:    cover,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, user, "user created successfully")
}

func (h *UserHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid body")
	}

	user, pair, err := h.Svc.Login(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}

	c.SetCookie(CreateCookie("accessToken", pair.Access, "/", pair.AccessExp))
	c.SetCookie(CreateCookie("refreshToken", pair.Refresh, "/", pair.RefreshExp))

	// Tokens travel in cookies only; the body carries public fields.
	return respond(c, http.StatusOK, echo.Map{
		"username": user.Username,
		"fullname": user.FullName,
	}, "logged in successfully")
}

func (h *UserHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	user := middleware.CurrentUser(c)

	if err := h.Svc.Logout(ctx, user); err != nil {
		return err
	}

	c.SetCookie(DeleteCookie("accessToken", "/"))
	c.SetCookie(DeleteCookie("refreshToken", "/"))

	return respond(c, http.StatusOK, nil, "logged out successfully")
}

func (h *UserHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	raw := ""
	if cookie, err := c.Cookie("refreshToken"); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := c.Bind(&req); err == nil {
			raw = req.RefreshToken
		}
	}

	_, pair, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		return err
	}

	c.SetCookie(CreateCookie("accessToken", pair.Access, "/", pair.AccessExp))
	c.SetCookie(CreateCookie("refreshToken", pair.Refresh, "/", pair.RefreshExp))

	return respond(c, http.StatusOK, nil, "token refreshed")
}

func (h *UserHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	user := middleware.CurrentUser(c)

	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid body")
	}

	if err := h.Svc.ChangePassword(ctx, user, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "password changed successfully")
}

func (h *UserHTTP) CurrentUser(c echo.Context) error {
	return respond(c, http.StatusOK, middleware.CurrentUser(c), "current user")
}

func (h *UserHTTP) UpdateAccountDetails(c echo.Context) error {
	ctx := c.Request().Context()
	user := middleware.CurrentUser(c)

	var req struct {
		FullName string `json:"fullname"`
		Email    string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid body")
	}

	updated, err := h.Svc.UpdateAccountDetails(ctx, user, req.FullName, req.Email)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, updated, "account details updated")
}

func (h *UserHTTP) UpdateAvatar(c echo.Context) error {
	ctx := c.Request().Context()
	user := middleware.CurrentUser(c)

	file, closeFile, err := fileFromForm(c, "avatar")
	if err != nil {
		return err
	}
	defer closeFile()

	updated, err := h.Svc.UpdateAvatar(ctx, user, file)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, updated, "avatar updated")
}

func (h *UserHTTP) UpdateCover(c echo.Context) error {
	ctx := c.Request().Context()
	user := middleware.CurrentUser(c)

	file, closeFile, err := fileFromForm(c, "coverImg")
	if err != nil {
		return err
	}
	defer closeFile()

	updated, err := h.Svc.UpdateCover(ctx, user, file)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, updated, "cover image updated")
}

func (h *UserHTTP) Channel(c echo.Context) error {
	ctx := c.Request().Context()

	channel, err := h.Svc.ChannelProfile(ctx, c.Param("handle"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, channel, "channel profile")
}

func (h *UserHTTP) History(c echo.Context) error {
	ctx := c.Request().Context()
	user := middleware.CurrentUser(c)

	entries, err := h.Svc.WatchHistory(ctx, user)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, entries, "watch history")
}

func (h *UserHTTP) SearchChannels(c echo.Context) error {
	ctx := c.Request().Context()

	q := c.QueryParam("q")
	if q == "" {
		return apperr.Validation("query is required")
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 || size > 100 {
		size = 20
	}
	if page < 1 {
		page = 1
	}

	total, docs, err := h.Svc.Search.Search(ctx, q, (page-1)*size, size)
	if err != nil {
		return apperr.External("search failed", err)
	}
	return respond(c, http.StatusOK, echo.Map{"total": total, "channels": docs}, "search results")
}

// fileFromForm extracts an optional multipart file. Absence is not an
// error; a file that exists but cannot be opened is.
func fileFromForm(c echo.Context, name string) (*service.FileUpload, func(), error) {
	noop := func() {}
	fh, err := c.FormFile(name)
	if err != nil {
		return nil, noop, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, apperr.Validation("cannot read uploaded file " + name)
	}
	return &service.FileUpload{Reader: f, Filename: fh.Filename}, func() { _ = f.Close() }, nil
}
