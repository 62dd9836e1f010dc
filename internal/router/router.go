package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"secretari/internal/config"
	"secretari/internal/handler"
	"secretari/internal/service"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Auth    *handler.AuthHandler
	User    *handler.UserHandler
	Account *handler.AccountHandler
	Coupon  *handler.CouponHandler
	Product *handler.ProductHandler
	Chat    *handler.ChatHandler
}

// Register wires routes and middleware.
func Register(e *echo.Echo, cfg *config.Config, h Handlers, authService service.AuthService) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: false,
	}))

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group(cfg.BaseRoute)

	// Public routes
	api.POST("/token", h.Auth.Login)
	api.POST("/token/refresh", h.Auth.Refresh)
	api.POST("/token/logout", h.Auth.Logout)
	api.POST("/users/register", h.User.Register)
	api.POST("/users/temp", h.User.CreateTemp)
	api.GET("/productids", h.Product.ProductIDs)

	// Secured routes (require JWT authentication). Browsers cannot set headers
	// on a WebSocket handshake, so the token may also come as ?token=.
	secured := api.Group("", echojwt.WithConfig(echojwt.Config{
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ,query:token",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return authService.Authenticate(c.Request().Context(), token)
		},
	}))

	// User routes
	secured.GET("/users", h.User.GetUser)
	secured.GET("/users/all", h.User.ListUsers)
	secured.PUT("/users", h.User.UpdateUser)
	secured.DELETE("/users/:username", h.User.DeleteUser)

	// Balance routes
	secured.POST("/users/redeem", h.Account.RedeemCoupon)
	secured.GET("/users/usage", h.Account.UsageHistory)

	// Admin routes
	secured.POST("/admin/coupons", h.Coupon.IssueCoupons)

	// Chat
	secured.GET("/ws/", h.Chat.Serve)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
