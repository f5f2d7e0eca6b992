package domain

import "errors"

// Sentinel errors for the auth core. Handlers collapse several of these into a
// single external response so callers cannot probe internal state; the
// distinction survives only in logs.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoChallenge        = errors.New("no login challenge pending")
	ErrInvalidCode        = errors.New("verification code mismatch")
	ErrChallengeExpired   = errors.New("login challenge expired")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrCorruptCredential  = errors.New("credential record unusable")
	ErrTamperedField      = errors.New("encrypted field failed authentication")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrCodeDelivery       = errors.New("verification code could not be delivered")
)
