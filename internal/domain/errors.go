package domain

import "errors"

var (
	ErrRateLimitTimeout     = errors.New("rate limit admission timed out")
	ErrHistoryFetch         = errors.New("fetch match history")
	ErrMatchDetailFetch     = errors.New("fetch match detail")
	ErrLogonFailure         = errors.New("session logon failed")
	ErrUnexpectedDisconnect = errors.New("session disconnected unexpectedly")
	ErrSessionStopped       = errors.New("session is not running")
	ErrSecretNotFound       = errors.New("secret not found")
)
