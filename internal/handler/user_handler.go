package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"secretari/internal/model"
	"secretari/internal/service"
)

// UserHandler handles account lifecycle endpoints.
type UserHandler struct {
	accountService service.AccountService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(accountService service.AccountService) *UserHandler {
	return &UserHandler{accountService: accountService}
}

// RegisterRequest represents a registration request. Mid is the container id
// of the temporary account the client used so far.
type RegisterRequest struct {
	Username   string                 `json:"username" validate:"required,max=255"`
	Password   string                 `json:"password" validate:"required"`
	Mid        string                 `json:"mid"`
	Email      string                 `json:"email" validate:"omitempty,email"`
	FamilyName string                 `json:"family_name"`
	GivenName  string                 `json:"given_name"`
	Template   map[string]interface{} `json:"template"`
}

// TempUserRequest represents a request for a temporary account.
type TempUserRequest struct {
	Username   string                 `json:"username" validate:"required,max=255"`
	Email      string                 `json:"email" validate:"omitempty,email"`
	FamilyName string                 `json:"family_name"`
	GivenName  string                 `json:"given_name"`
	Template   map[string]interface{} `json:"template"`
}

// UpdateUserRequest represents a profile update. Username selects the target
// record and defaults to the caller. Role, subscription and token_count are
// only applied for admins.
type UpdateUserRequest struct {
	Username     string                 `json:"username"`
	Password     string                 `json:"password"`
	Email        *string                `json:"email" validate:"omitempty,email"`
	FamilyName   *string                `json:"family_name"`
	GivenName    *string                `json:"given_name"`
	Template     map[string]interface{} `json:"template"`
	Role         *string                `json:"role" validate:"omitempty,oneof=user admin"`
	Subscription *bool                  `json:"subscription"`
	TokenCount   map[string]int64       `json:"token_count"`
}

// Register godoc
// @Summary Register a user
// @Description Upgrades the temporary account of the same name (or the one given as mid) keeping its balances.
// @Tags users
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} model.UserView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /users/register [post]
func (h *UserHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.accountService.Register(c.Request().Context(), service.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		FromContainerID: req.Mid,
		Profile: service.Profile{
			Email:      req.Email,
			FamilyName: req.FamilyName,
			GivenName:  req.GivenName,
			Template:   req.Template,
		},
	})
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, rec.View())
}

// CreateTemp godoc
// @Summary Create a temporary user
// @Description Returns the existing account when the username is taken.
// @Tags users
// @Accept json
// @Produce json
// @Param request body TempUserRequest true "Temporary account"
// @Success 200 {object} model.UserView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /users/temp [post]
func (h *UserHandler) CreateTemp(c echo.Context) error {
	var req TempUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.accountService.CreateTemp(c.Request().Context(), req.Username, service.Profile{
		Email:      req.Email,
		FamilyName: req.FamilyName,
		GivenName:  req.GivenName,
		Template:   req.Template,
	})
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, rec.View())
}

// GetUser godoc
// @Summary Get a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id query string false "Username, defaults to the caller"
// @Success 200 {object} model.UserView
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users [get]
func (h *UserHandler) GetUser(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}

	username := c.QueryParam("id")
	if username == "" {
		username = claims.Username
	}
	if err := authorize(claims, username); err != nil {
		return domainError(err)
	}

	rec, err := h.accountService.Get(c.Request().Context(), username)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, rec.View())
}

// ListUsers godoc
// @Summary List users
// @Description Admins get every account, other users only their own.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.UserView
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/all [get]
func (h *UserHandler) ListUsers(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if claims.Role != model.RoleAdmin {
		rec, err := h.accountService.Get(ctx, claims.Username)
		if err != nil {
			return domainError(err)
		}
		return c.JSON(http.StatusOK, []model.UserView{rec.View()})
	}

	records, err := h.accountService.List(ctx)
	if err != nil {
		return domainError(err)
	}
	views := make([]model.UserView, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}
	return c.JSON(http.StatusOK, views)
}

// UpdateUser godoc
// @Summary Update a user
// @Description An empty password keeps the stored one.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} model.UserView
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users [put]
func (h *UserHandler) UpdateUser(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	username := req.Username
	if username == "" {
		username = claims.Username
	}
	if err := authorize(claims, username); err != nil {
		return domainError(err)
	}

	rec, err := h.accountService.Update(c.Request().Context(), username, service.UpdateInput{
		Password:     req.Password,
		Email:        req.Email,
		FamilyName:   req.FamilyName,
		GivenName:    req.GivenName,
		Template:     req.Template,
		Role:         req.Role,
		Subscription: req.Subscription,
		TokenCount:   req.TokenCount,
	}, claims.Role == model.RoleAdmin)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, rec.View())
}

// DeleteUser godoc
// @Summary Delete a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username"
// @Success 200 {object} map[string]string
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /users/{username} [delete]
func (h *UserHandler) DeleteUser(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}

	username := c.Param("username")
	if err := authorize(claims, username); err != nil {
		return domainError(err)
	}

	if err := h.accountService.Delete(c.Request().Context(), username); err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "user deleted",
	})
}
