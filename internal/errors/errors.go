package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrUserNotFound is returned when no record exists for a username.
	ErrUserNotFound = errors.New("user not found")
	// ErrConflict is returned when registering a username that already has a password.
	ErrConflict = errors.New("username already taken")
	// ErrStorageUnavailable wraps every failure of the remote record store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInsufficientBalance signals that neither the requested nor the fallback model has tokens left.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidCoupon is returned for unknown or already redeemed coupons.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrForbidden is returned when a non-admin acts on another user's record.
	ErrForbidden = errors.New("not admin")
	// ErrInvalidAmount is returned for negative costs or token counts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidInput is returned for requests missing a username or password.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors, possibly wrapped, to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return NewHTTPError(http.StatusNotFound, ErrUserNotFound.Error(), "USER_NOT_FOUND")
	case errors.Is(err, ErrConflict):
		return NewHTTPError(http.StatusConflict, ErrConflict.Error(), "USERNAME_TAKEN")
	case errors.Is(err, ErrInsufficientBalance):
		return NewHTTPError(http.StatusPaymentRequired, ErrInsufficientBalance.Error(), "INSUFFICIENT_BALANCE")
	case errors.Is(err, ErrInvalidCoupon):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidCoupon.Error(), "INVALID_COUPON")
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, ErrForbidden.Error(), "FORBIDDEN")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidAmount.Error(), "INVALID_AMOUNT")
	case errors.Is(err, ErrInvalidInput):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidInput.Error(), "INVALID_INPUT")
	case errors.Is(err, ErrStorageUnavailable):
		return NewHTTPError(http.StatusServiceUnavailable, ErrStorageUnavailable.Error(), "STORAGE_UNAVAILABLE")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
