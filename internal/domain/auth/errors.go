package auth

import (
	"errors"
	"net/http"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")

	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshRevoked  = errors.New("refresh token revoked")
	ErrRefreshExpired  = errors.New("refresh token expired")

	ErrDuplicateHash = errors.New("refresh token hash already stored")
)

type ErrorKind string

const (
	KindTokenExpired      ErrorKind = "token_expired"
	KindTokenInvalid      ErrorKind = "token_invalid"
	KindRefreshNotUsable  ErrorKind = "refresh_not_usable"
	KindIdentityMissing   ErrorKind = "identity_not_found"
	KindMissingCredential ErrorKind = "missing_credential"
	KindInternal          ErrorKind = "internal"
)

// AuthError is the single failure shape returned by the auth service and gateway.
type AuthError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func NewAuthError(kind ErrorKind, detail string, err error) *AuthError {
	return &AuthError{Kind: kind, Detail: detail, Err: err}
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) HTTPStatus() int {
	if e.Kind == KindInternal {
		return http.StatusInternalServerError
	}
	return http.StatusUnauthorized
}

// AsAuthError extracts an *AuthError from err, wrapping anything else as internal.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return NewAuthError(KindInternal, "internal error", err)
}

// IsRefreshNotUsable reports whether err is one of the refresh lookup outcomes
// that collapse to RefreshNotUsable at the API boundary.
func IsRefreshNotUsable(err error) bool {
	return errors.Is(err, ErrRefreshNotFound) ||
		errors.Is(err, ErrRefreshRevoked) ||
		errors.Is(err, ErrRefreshExpired)
}
