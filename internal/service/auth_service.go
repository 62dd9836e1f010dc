package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"secretari/internal/auth"
	"secretari/internal/model"
	"secretari/internal/repository"
)

const bcryptCost = 10

var (
	// ErrInvalidCredentials is returned when username or password is incorrect.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrInvalidRefreshToken is returned when refresh token is invalid or expired.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// AccountProvider is the part of AccountService the login flow needs.
type AccountProvider interface {
	Find(ctx context.Context, username string) (repository.Lookup, error)
	GetOrCreate(ctx context.Context, username string) (*model.UserRecord, error)
}

// AuthService handles authentication operations.
type AuthService interface {
	Login(ctx context.Context, username, password string) (accessToken, refreshToken string, user *model.UserRecord, err error)
	RefreshToken(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

type authService struct {
	accounts   AccountProvider
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
}

// NewAuthService creates a new authentication service.
func NewAuthService(accounts AccountProvider, jwtService *auth.JWTService, tokenStore auth.TokenStoreInterface) AuthService {
	return &authService{
		accounts:   accounts,
		jwtService: jwtService,
		tokenStore: tokenStore,
	}
}

// Login authenticates a user and returns access and refresh tokens.
// An unknown username with an empty password gets a temporary account;
// temporary accounts only accept the empty password.
func (s *authService) Login(ctx context.Context, username, password string) (accessToken, refreshToken string, user *model.UserRecord, err error) {
	if username == "" {
		return "", "", nil, ErrInvalidCredentials
	}

	l, err := s.accounts.Find(ctx, username)
	if err != nil {
		return "", "", nil, fmt.Errorf("find user: %w", err)
	}

	switch {
	case !l.Found && password == "":
		user, err = s.accounts.GetOrCreate(ctx, username)
		if err != nil {
			return "", "", nil, fmt.Errorf("create temp account: %w", err)
		}
	case !l.Found:
		return "", "", nil, ErrInvalidCredentials
	case l.Record.IsTemporary():
		if password != "" {
			return "", "", nil, ErrInvalidCredentials
		}
		user = l.Record
	default:
		if password == "" {
			return "", "", nil, ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(l.Record.HashedPassword), []byte(password)); err != nil {
			return "", "", nil, ErrInvalidCredentials
		}
		user = l.Record
	}

	// Generate access token
	_, accessToken, err = s.jwtService.GenerateAccessToken(user.Username, user.Role)
	if err != nil {
		return "", "", nil, fmt.Errorf("generate access token: %w", err)
	}

	// Generate refresh token
	tokenID, refreshToken, err := s.jwtService.GenerateRefreshToken(user.Username, user.Role)
	if err != nil {
		return "", "", nil, fmt.Errorf("generate refresh token: %w", err)
	}

	// Store refresh token in Redis
	if err := s.tokenStore.StoreRefreshToken(ctx, tokenID, user.Username, auth.RefreshTokenExpiry); err != nil {
		return "", "", nil, fmt.Errorf("store refresh token: %w", err)
	}

	return accessToken, refreshToken, user, nil
}

// RefreshToken validates a refresh token and returns a new access token.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (accessToken string, err error) {
	claims, err := s.jwtService.ValidateToken(refreshToken)
	if err != nil || claims.ID == "" {
		return "", ErrInvalidRefreshToken
	}

	// Verify token exists in Redis
	storedUsername, err := s.tokenStore.GetRefreshToken(ctx, claims.ID)
	if err != nil || storedUsername != claims.Username {
		return "", ErrInvalidRefreshToken
	}

	// Pick up role changes made since the refresh token was issued
	role := claims.Role
	if l, err := s.accounts.Find(ctx, claims.Username); err == nil {
		if !l.Found {
			return "", ErrInvalidRefreshToken
		}
		role = l.Record.Role
	}

	_, accessToken, err = s.jwtService.GenerateAccessToken(claims.Username, role)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, nil
}

// Logout invalidates a refresh token and, when given, revokes the access token.
func (s *authService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	tokenID, err := s.jwtService.ExtractTokenID(refreshToken)
	if err != nil {
		return ErrInvalidRefreshToken
	}

	if err := s.tokenStore.DeleteRefreshToken(ctx, tokenID); err != nil {
		return err
	}

	if accessToken == "" {
		return nil
	}
	claims, err := s.jwtService.ValidateToken(accessToken)
	if err != nil {
		// already unusable
		return nil
	}
	return s.tokenStore.BlacklistAccessToken(ctx, claims.ID, s.jwtService.Remaining(claims))
}

// Authenticate validates an access token and rejects revoked ones.
func (s *authService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.jwtService.ValidateToken(accessToken)
	if err != nil {
		return nil, err
	}
	revoked, err := s.tokenStore.IsAccessTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errors.New("token revoked")
	}
	return claims, nil
}
