package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"secretari/internal/auth"
	"secretari/internal/model"
	"secretari/internal/repository"
)

// MockAccountProvider is a mock implementation of AccountProvider.
type MockAccountProvider struct {
	mock.Mock
}

func (m *MockAccountProvider) Find(ctx context.Context, username string) (repository.Lookup, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(repository.Lookup), args.Error(1)
}

func (m *MockAccountProvider) GetOrCreate(ctx context.Context, username string) (*model.UserRecord, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserRecord), args.Error(1)
}

// MockTokenStore is a mock implementation of TokenStoreInterface.
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) StoreRefreshToken(ctx context.Context, tokenID, username string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, username, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) GetRefreshToken(ctx context.Context, tokenID string) (string, error) {
	args := m.Called(ctx, tokenID)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) DeleteRefreshToken(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *MockTokenStore) BlacklistAccessToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) IsAccessTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func registeredUser(t *testing.T, username, password string) *model.UserRecord {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	rec := model.NewUserRecord(username, map[string]int64{"gpt-4": 10})
	rec.HashedPassword = string(hash)
	rec.ContainerID = "c-" + username
	return rec
}

func TestAuthService_Login(t *testing.T) {
	alice := registeredUser(t, "alice", "password123")
	temp := model.NewUserRecord("device-1", nil)
	temp.ContainerID = "c-device-1"
	storageErr := errors.New("storage unavailable")

	tests := []struct {
		name          string
		username      string
		password      string
		setupMock     func(*MockAccountProvider, *MockTokenStore)
		expectedError error
		wantUser      string
	}{
		{
			name:     "registered user with correct password",
			username: "alice",
			password: "password123",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "alice").Return(repository.Lookup{Record: alice, Found: true}, nil)
				ts.On("StoreRefreshToken", mock.Anything, mock.AnythingOfType("string"), "alice", auth.RefreshTokenExpiry).Return(nil)
			},
			wantUser: "alice",
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "nope",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "alice").Return(repository.Lookup{Record: alice, Found: true}, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:     "registered user with empty password",
			username: "alice",
			password: "",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "alice").Return(repository.Lookup{Record: alice, Found: true}, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:     "unknown user without password gets temp account",
			username: "device-1",
			password: "",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "device-1").Return(repository.Lookup{}, nil)
				a.On("GetOrCreate", mock.Anything, "device-1").Return(temp, nil)
				ts.On("StoreRefreshToken", mock.Anything, mock.AnythingOfType("string"), "device-1", auth.RefreshTokenExpiry).Return(nil)
			},
			wantUser: "device-1",
		},
		{
			name:     "unknown user with password",
			username: "ghost",
			password: "secret",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "ghost").Return(repository.Lookup{}, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:     "temp account with password",
			username: "device-1",
			password: "secret",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "device-1").Return(repository.Lookup{Record: temp, Found: true}, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:     "storage failure",
			username: "alice",
			password: "password123",
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				a.On("Find", mock.Anything, "alice").Return(repository.Lookup{}, storageErr)
			},
			expectedError: storageErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountProvider)
			tokenStore := new(MockTokenStore)
			tt.setupMock(accounts, tokenStore)

			svc := NewAuthService(accounts, auth.NewJWTService("test-secret"), tokenStore)
			access, refresh, user, err := svc.Login(context.Background(), tt.username, tt.password)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, access)
				assert.NotEmpty(t, refresh)
				assert.Equal(t, tt.wantUser, user.Username)
			}

			accounts.AssertExpectations(t)
			tokenStore.AssertExpectations(t)
		})
	}
}

func TestAuthService_RefreshToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	tokenID, refresh, err := jwtService.GenerateRefreshToken("alice", model.RoleUser)
	require.NoError(t, err)

	promoted := model.NewUserRecord("alice", nil)
	promoted.Role = model.RoleAdmin

	tests := []struct {
		name          string
		token         string
		setupMock     func(*MockAccountProvider, *MockTokenStore)
		expectedError error
		wantRole      string
	}{
		{
			name:  "valid token picks up current role",
			token: refresh,
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				ts.On("GetRefreshToken", mock.Anything, tokenID).Return("alice", nil)
				a.On("Find", mock.Anything, "alice").Return(repository.Lookup{Record: promoted, Found: true}, nil)
			},
			wantRole: model.RoleAdmin,
		},
		{
			name:  "revoked token",
			token: refresh,
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				ts.On("GetRefreshToken", mock.Anything, tokenID).Return("", errors.New("refresh token not found"))
			},
			expectedError: ErrInvalidRefreshToken,
		},
		{
			name:  "user deleted since",
			token: refresh,
			setupMock: func(a *MockAccountProvider, ts *MockTokenStore) {
				ts.On("GetRefreshToken", mock.Anything, tokenID).Return("alice", nil)
				a.On("Find", mock.Anything, "alice").Return(repository.Lookup{}, nil)
			},
			expectedError: ErrInvalidRefreshToken,
		},
		{
			name:          "malformed token",
			token:         "garbage",
			setupMock:     func(a *MockAccountProvider, ts *MockTokenStore) {},
			expectedError: ErrInvalidRefreshToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAccountProvider)
			tokenStore := new(MockTokenStore)
			tt.setupMock(accounts, tokenStore)

			svc := NewAuthService(accounts, jwtService, tokenStore)
			access, err := svc.RefreshToken(context.Background(), tt.token)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				require.NoError(t, err)
				claims, err := jwtService.ValidateToken(access)
				require.NoError(t, err)
				assert.Equal(t, tt.wantRole, claims.Role)
			}
			tokenStore.AssertExpectations(t)
		})
	}
}

func TestAuthService_LogoutRevokesAccessToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	refreshID, refresh, err := jwtService.GenerateRefreshToken("alice", model.RoleUser)
	require.NoError(t, err)
	accessID, access, err := jwtService.GenerateAccessToken("alice", model.RoleUser)
	require.NoError(t, err)

	tokenStore := new(MockTokenStore)
	tokenStore.On("DeleteRefreshToken", mock.Anything, refreshID).Return(nil)
	tokenStore.On("BlacklistAccessToken", mock.Anything, accessID, mock.AnythingOfType("time.Duration")).Return(nil)
	tokenStore.On("IsAccessTokenBlacklisted", mock.Anything, accessID).Return(true, nil)

	svc := NewAuthService(new(MockAccountProvider), jwtService, tokenStore)
	require.NoError(t, svc.Logout(context.Background(), refresh, access))

	_, err = svc.Authenticate(context.Background(), access)
	assert.Error(t, err)
	tokenStore.AssertExpectations(t)
}

func TestAuthService_LogoutInvalidToken(t *testing.T) {
	svc := NewAuthService(new(MockAccountProvider), auth.NewJWTService("test-secret"), new(MockTokenStore))
	err := svc.Logout(context.Background(), "garbage", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestAuthService_Authenticate(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	accessID, access, err := jwtService.GenerateAccessToken("bob", model.RoleUser)
	require.NoError(t, err)

	tokenStore := new(MockTokenStore)
	tokenStore.On("IsAccessTokenBlacklisted", mock.Anything, accessID).Return(false, nil)

	svc := NewAuthService(new(MockAccountProvider), jwtService, tokenStore)
	claims, err := svc.Authenticate(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
}
