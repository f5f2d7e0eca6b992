package mailer

import "time"

// Service delivers the one-time login code. Implementations are synchronous
// and failure-propagating: a non-nil error means the code did not reach the
// user, and the caller must invalidate the challenge.
type Service interface {
	SendLoginCode(toEmail, toName, code string, ttl time.Duration) error
}
