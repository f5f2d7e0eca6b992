package mailer

import (
	"fmt"
	"time"

	"github.com/healthcure/clinic/pkg/logger"
)

// DevMailer stands in for the delivery channel during local development: the
// code is printed instead of mailed.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendLoginCode(toEmail, toName, code string, ttl time.Duration) error {
	logger.Info("[DEV MAIL] login code",
		"to", toEmail,
		"name", toName,
	)

	fmt.Printf("\n"+
		"─────────────────────────────────────────────\n"+
		"LOGIN CODE (DEV MODE)\n"+
		"─────────────────────────────────────────────\n"+
		"To: %s (%s)\n"+
		"Subject: Your HealthCure sign-in code\n"+
		"\n"+
		"Code: %s (valid for %s)\n"+
		"─────────────────────────────────────────────\n\n",
		toEmail, toName, code, ttl)

	return nil
}
