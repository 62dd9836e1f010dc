package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"secretari/internal/auth"
	"secretari/internal/errors"
	"secretari/internal/model"
	"secretari/internal/repository"
	"secretari/internal/service"
)

// MockAccountService is a mock implementation of service.AccountService.
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) record(args mock.Arguments) (*model.UserRecord, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserRecord), args.Error(1)
}

func (m *MockAccountService) Find(ctx context.Context, username string) (repository.Lookup, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(repository.Lookup), args.Error(1)
}

func (m *MockAccountService) GetOrCreate(ctx context.Context, username string) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, username))
}

func (m *MockAccountService) Get(ctx context.Context, username string) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, username))
}

func (m *MockAccountService) List(ctx context.Context) ([]*model.UserRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.UserRecord), args.Error(1)
}

func (m *MockAccountService) CreateTemp(ctx context.Context, username string, profile service.Profile) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, username, profile))
}

func (m *MockAccountService) Register(ctx context.Context, in service.RegisterInput) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, in))
}

func (m *MockAccountService) Update(ctx context.Context, username string, in service.UpdateInput, asAdmin bool) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, username, in, asAdmin))
}

func (m *MockAccountService) Delete(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockAccountService) Bookkeep(ctx context.Context, username, modelName string, cost decimal.Decimal, tokens int64) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, username, modelName, cost, tokens))
}

func (m *MockAccountService) SelectModel(ctx context.Context, username, requested string) (string, *model.UserRecord, error) {
	args := m.Called(ctx, username, requested)
	var rec *model.UserRecord
	if r := args.Get(1); r != nil {
		rec = r.(*model.UserRecord)
	}
	return args.String(0), rec, args.Error(2)
}

func (m *MockAccountService) RedeemCoupon(ctx context.Context, username, code string) (*model.UserRecord, error) {
	return m.record(m.Called(ctx, username, code))
}

func (m *MockAccountService) UsageHistory(ctx context.Context, username string, limit int) ([]model.UsageEvent, error) {
	args := m.Called(ctx, username, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UsageEvent), args.Error(1)
}

func (m *MockAccountService) IssueCoupons(ctx context.Context, coupons []model.Coupon) (int, error) {
	args := m.Called(ctx, coupons)
	return args.Int(0), args.Error(1)
}

// MockAuthService is a mock implementation of service.AuthService.
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (string, string, *model.UserRecord, error) {
	args := m.Called(ctx, username, password)
	var rec *model.UserRecord
	if r := args.Get(2); r != nil {
		rec = r.(*model.UserRecord)
	}
	return args.String(0), args.String(1), rec, args.Error(3)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	args := m.Called(ctx, refreshToken, accessToken)
	return args.Error(0)
}

func (m *MockAuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

type testValidator struct {
	validator *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

type call struct {
	method      string
	route       string
	target      string
	body        string
	contentType string
	header      map[string]string
	claims      *auth.Claims
}

func serve(t *testing.T, h echo.HandlerFunc, c call) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = &testValidator{validator: validator.New()}

	withClaims := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c.claims != nil {
				ctx.Set("user", c.claims)
			}
			return next(ctx)
		}
	}
	e.Add(c.method, c.route, h, withClaims)

	req := httptest.NewRequest(c.method, c.target, strings.NewReader(c.body))
	contentType := c.contentType
	if contentType == "" && c.body != "" {
		contentType = echo.MIMEApplicationJSON
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func userClaims(username string) *auth.Claims {
	return &auth.Claims{Username: username, Role: model.RoleUser}
}

func adminClaims(username string) *auth.Claims {
	return &auth.Claims{Username: username, Role: model.RoleAdmin}
}

func TestAuthHandler_Login(t *testing.T) {
	bob := model.NewUserRecord("bob", map[string]int64{"gpt-4": 10})
	form := url.Values{"username": {"bob"}, "password": {""}}.Encode()

	tests := []struct {
		name        string
		body        string
		contentType string
		setupMock   func(*MockAuthService)
		wantStatus  int
		wantCode    string
	}{
		{
			name: "json login",
			body: `{"username":"bob","password":"pw"}`,
			setupMock: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "bob", "pw").Return("access", "refresh", bob, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:        "form login for temporary account",
			body:        form,
			contentType: echo.MIMEApplicationForm,
			setupMock: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "bob", "").Return("access", "refresh", bob, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing username",
			body:       `{"password":"pw"}`,
			setupMock:  func(m *MockAuthService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "wrong password",
			body: `{"username":"bob","password":"bad"}`,
			setupMock: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "bob", "bad").Return("", "", nil, service.ErrInvalidCredentials)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_CREDENTIALS",
		},
		{
			name: "storage down",
			body: `{"username":"bob"}`,
			setupMock: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "bob", "").Return("", "", nil, errors.ErrStorageUnavailable)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "STORAGE_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService := new(MockAuthService)
			tt.setupMock(authService)
			h := NewAuthHandler(authService)

			rec := serve(t, h.Login, call{
				method: http.MethodPost, route: "/token", target: "/token",
				body: tt.body, contentType: tt.contentType,
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
			if tt.wantStatus == http.StatusOK {
				var resp AuthResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "access", resp.Token.AccessToken)
				assert.Equal(t, "Bearer", resp.Token.TokenType)
				assert.Equal(t, "refresh", resp.RefreshToken)
				require.NotNil(t, resp.User)
				assert.Equal(t, "bob", resp.User.Username)
				assert.NotContains(t, rec.Body.String(), "hashed_password")
			}
			authService.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_LogoutPassesAccessToken(t *testing.T) {
	authService := new(MockAuthService)
	authService.On("Logout", mock.Anything, "refresh", "access").Return(nil)
	h := NewAuthHandler(authService)

	rec := serve(t, h.Logout, call{
		method: http.MethodPost, route: "/token/logout", target: "/token/logout",
		body:   `{"refresh_token":"refresh"}`,
		header: map[string]string{echo.HeaderAuthorization: "Bearer access"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	authService.AssertExpectations(t)
}

func TestAuthHandler_RefreshInvalid(t *testing.T) {
	authService := new(MockAuthService)
	authService.On("RefreshToken", mock.Anything, "stale").Return("", service.ErrInvalidRefreshToken)
	h := NewAuthHandler(authService)

	rec := serve(t, h.Refresh, call{
		method: http.MethodPost, route: "/token/refresh", target: "/token/refresh",
		body: `{"refresh_token":"stale"}`,
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(t, rec))
}

func TestUserHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockAccountService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "created from temporary container",
			body: `{"username":"bob","password":"pw","mid":"c-1","email":"bob@example.com"}`,
			setupMock: func(m *MockAccountService) {
				m.On("Register", mock.Anything, mock.MatchedBy(func(in service.RegisterInput) bool {
					return in.Username == "bob" && in.FromContainerID == "c-1" && in.Email == "bob@example.com"
				})).Return(&model.UserRecord{Username: "bob", HashedPassword: "h", ContainerID: "c-2"}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "already registered",
			body: `{"username":"bob","password":"pw"}`,
			setupMock: func(m *MockAccountService) {
				m.On("Register", mock.Anything, mock.Anything).Return(nil, errors.ErrConflict)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "USERNAME_TAKEN",
		},
		{
			name:       "missing password",
			body:       `{"username":"bob"}`,
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountService)
			tt.setupMock(accounts)
			h := NewUserHandler(accounts)

			rec := serve(t, h.Register, call{
				method: http.MethodPost, route: "/users/register", target: "/users/register", body: tt.body,
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
			if tt.wantStatus == http.StatusCreated {
				assert.Contains(t, rec.Body.String(), `"mid":"c-2"`)
				assert.NotContains(t, rec.Body.String(), "hashed_password")
			}
			accounts.AssertExpectations(t)
		})
	}
}

func TestUserHandler_GetUser(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		claims     *auth.Claims
		setupMock  func(*MockAccountService)
		wantStatus int
	}{
		{
			name:   "defaults to caller",
			target: "/users",
			claims: userClaims("bob"),
			setupMock: func(m *MockAccountService) {
				m.On("Get", mock.Anything, "bob").Return(model.NewUserRecord("bob", nil), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "other user is forbidden",
			target:     "/users?id=alice",
			claims:     userClaims("bob"),
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "admin reads anyone",
			target: "/users?id=alice",
			claims: adminClaims("root"),
			setupMock: func(m *MockAccountService) {
				m.On("Get", mock.Anything, "alice").Return(model.NewUserRecord("alice", nil), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "unknown user",
			target: "/users?id=ghost",
			claims: adminClaims("root"),
			setupMock: func(m *MockAccountService) {
				m.On("Get", mock.Anything, "ghost").Return(nil, errors.ErrUserNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no claims",
			target:     "/users",
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountService)
			tt.setupMock(accounts)
			h := NewUserHandler(accounts)

			rec := serve(t, h.GetUser, call{
				method: http.MethodGet, route: "/users", target: tt.target, claims: tt.claims,
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			accounts.AssertExpectations(t)
		})
	}
}

func TestUserHandler_ListUsers(t *testing.T) {
	t.Run("non admin sees only self", func(t *testing.T) {
		accounts := new(MockAccountService)
		accounts.On("Get", mock.Anything, "bob").Return(model.NewUserRecord("bob", nil), nil)
		h := NewUserHandler(accounts)

		rec := serve(t, h.ListUsers, call{
			method: http.MethodGet, route: "/users/all", target: "/users/all", claims: userClaims("bob"),
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var views []model.UserView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "bob", views[0].Username)
		accounts.AssertNotCalled(t, "List", mock.Anything)
	})

	t.Run("admin sees all", func(t *testing.T) {
		accounts := new(MockAccountService)
		accounts.On("List", mock.Anything).Return([]*model.UserRecord{
			model.NewUserRecord("alice", nil),
			model.NewUserRecord("bob", nil),
		}, nil)
		h := NewUserHandler(accounts)

		rec := serve(t, h.ListUsers, call{
			method: http.MethodGet, route: "/users/all", target: "/users/all", claims: adminClaims("root"),
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var views []model.UserView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		assert.Len(t, views, 2)
	})
}

func TestUserHandler_UpdateUser(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		claims     *auth.Claims
		setupMock  func(*MockAccountService)
		wantStatus int
	}{
		{
			name:   "user updates own profile without admin rights",
			body:   `{"given_name":"Bob","role":"admin"}`,
			claims: userClaims("bob"),
			setupMock: func(m *MockAccountService) {
				m.On("Update", mock.Anything, "bob", mock.MatchedBy(func(in service.UpdateInput) bool {
					return in.GivenName != nil && *in.GivenName == "Bob"
				}), false).Return(model.NewUserRecord("bob", nil), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "admin grants tokens to another user",
			body:   `{"username":"alice","token_count":{"gpt-4":500}}`,
			claims: adminClaims("root"),
			setupMock: func(m *MockAccountService) {
				m.On("Update", mock.Anything, "alice", mock.MatchedBy(func(in service.UpdateInput) bool {
					return in.TokenCount["gpt-4"] == 500
				}), true).Return(model.NewUserRecord("alice", nil), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "user cannot update another user",
			body:       `{"username":"alice"}`,
			claims:     userClaims("bob"),
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown role",
			body:       `{"role":"owner"}`,
			claims:     adminClaims("root"),
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountService)
			tt.setupMock(accounts)
			h := NewUserHandler(accounts)

			rec := serve(t, h.UpdateUser, call{
				method: http.MethodPut, route: "/users", target: "/users", body: tt.body, claims: tt.claims,
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			accounts.AssertExpectations(t)
		})
	}
}

func TestUserHandler_DeleteUser(t *testing.T) {
	accounts := new(MockAccountService)
	accounts.On("Delete", mock.Anything, "bob").Return(nil)
	h := NewUserHandler(accounts)

	rec := serve(t, h.DeleteUser, call{
		method: http.MethodDelete, route: "/users/:username", target: "/users/bob", claims: userClaims("bob"),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h.DeleteUser, call{
		method: http.MethodDelete, route: "/users/:username", target: "/users/alice", claims: userClaims("bob"),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	accounts.AssertNumberOfCalls(t, "Delete", 1)
}

func TestAccountHandler_RedeemCoupon(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		setupMock  func(*MockAccountService)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "credited",
			target: "/users/redeem?coupon=WELCOME",
			setupMock: func(m *MockAccountService) {
				m.On("RedeemCoupon", mock.Anything, "bob", "WELCOME").
					Return(model.NewUserRecord("bob", map[string]int64{"gpt-4": 500}), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing code",
			target:     "/users/redeem",
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_COUPON",
		},
		{
			name:   "already redeemed",
			target: "/users/redeem?coupon=USED",
			setupMock: func(m *MockAccountService) {
				m.On("RedeemCoupon", mock.Anything, "bob", "USED").Return(nil, errors.ErrInvalidCoupon)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_COUPON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountService)
			tt.setupMock(accounts)
			h := NewAccountHandler(accounts)

			rec := serve(t, h.RedeemCoupon, call{
				method: http.MethodPost, route: "/users/redeem", target: tt.target, claims: userClaims("bob"),
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
			accounts.AssertExpectations(t)
		})
	}
}

func TestAccountHandler_UsageHistory(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantStatus int
	}{
		{"default limit", "/users/usage", defaultUsageLimit, http.StatusOK},
		{"explicit limit", "/users/usage?limit=5", 5, http.StatusOK},
		{"bad limit", "/users/usage?limit=-1", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountService)
			if tt.wantLimit > 0 {
				accounts.On("UsageHistory", mock.Anything, "bob", tt.wantLimit).Return(nil, nil)
			}
			h := NewAccountHandler(accounts)

			rec := serve(t, h.UsageHistory, call{
				method: http.MethodGet, route: "/users/usage", target: tt.target, claims: userClaims("bob"),
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `[]`, rec.Body.String())
			}
			accounts.AssertExpectations(t)
		})
	}
}

func TestCouponHandler_IssueCoupons(t *testing.T) {
	body := `{"coupons":[{"code":"WELCOME","model":"gpt-4","tokens":500}]}`

	t.Run("admin only", func(t *testing.T) {
		accounts := new(MockAccountService)
		h := NewCouponHandler(accounts)

		rec := serve(t, h.IssueCoupons, call{
			method: http.MethodPost, route: "/admin/coupons", target: "/admin/coupons", body: body, claims: userClaims("bob"),
		})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		accounts.AssertNotCalled(t, "IssueCoupons", mock.Anything, mock.Anything)
	})

	t.Run("issued", func(t *testing.T) {
		accounts := new(MockAccountService)
		accounts.On("IssueCoupons", mock.Anything, []model.Coupon{{Code: "WELCOME", Model: "gpt-4", Tokens: 500}}).Return(1, nil)
		h := NewCouponHandler(accounts)

		rec := serve(t, h.IssueCoupons, call{
			method: http.MethodPost, route: "/admin/coupons", target: "/admin/coupons", body: body, claims: adminClaims("root"),
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp IssueCouponsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		h := NewCouponHandler(new(MockAccountService))

		rec := serve(t, h.IssueCoupons, call{
			method: http.MethodPost, route: "/admin/coupons", target: "/admin/coupons", body: `{"coupons":[]}`, claims: adminClaims("root"),
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProductHandler_ProductIDs(t *testing.T) {
	h := NewProductHandler(`["ai.secretari.basic","ai.secretari.pro"]`)

	rec := serve(t, h.ProductIDs, call{method: http.MethodGet, route: "/productids", target: "/productids"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["ai.secretari.basic","ai.secretari.pro"]`, rec.Body.String())
}
