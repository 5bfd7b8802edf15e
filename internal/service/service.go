// Package service holds the business rules of the chat backend: credentials
// and password recovery, the chat directory and the message ledger. It talks
// to storage through the database interfaces and reports failures as
// *apperr.Error values.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/logger"
)

var log = logger.New("service")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Notifier delivers an HTML mail to a single recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

func storageFailure(op string, err error) error {
	return apperr.Dependency("storage unavailable", fmt.Errorf("%s: %w", op, err))
}

// timestamp truncates to the precision Postgres keeps.
func timestamp(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Microsecond)
}
