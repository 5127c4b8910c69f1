package auth

import "errors"

// Sentinel kinds for credential errors.
var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrReadToken      = errors.New("read token file failed")
	ErrWriteToken     = errors.New("write token file failed")
	ErrCredentials    = errors.New("load client credentials failed")
)
