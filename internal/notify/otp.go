// Package notify implements the one-time-passcode collaborator: codes are
// issued per email address with a retry-after window and delivered through a
// pluggable Sender.
package notify

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/1040440-eng/chatfamily/internal/apperr"
)

const codeDigits = 6

// Sender delivers a passcode to an email address.
type Sender interface {
	Send(ctx context.Context, email, code string) error
}

// LogSender logs the passcode instead of sending it. Default for
// development; a real mailer plugs in behind the same interface.
type LogSender struct {
	Log *slog.Logger
}

func (l *LogSender) Send(ctx context.Context, email, code string) error {
	l.Log.Info("passcode issued", "email", email, "code", code)
	return nil
}

type entry struct {
	code     string
	issuedAt time.Time
}

// OTP issues and verifies one-time passcodes. Codes expire after ttl;
// re-issuing within retryAfter is rejected with the remaining wait.
type OTP struct {
	mu         sync.Mutex
	codes      map[string]entry
	ttl        time.Duration
	retryAfter time.Duration
	sender     Sender
	now        func() time.Time
}

// NewOTP builds an issuer. now exists for tests; pass nil for time.Now.
func NewOTP(ttl, retryAfter time.Duration, sender Sender, now func() time.Time) *OTP {
	if now == nil {
		now = time.Now
	}
	return &OTP{
		codes:      make(map[string]entry),
		ttl:        ttl,
		retryAfter: retryAfter,
		sender:     sender,
		now:        now,
	}
}

// Issue generates and sends a passcode for the address. Returns the
// retry-after duration; within that window the previous code stays valid and
// no new one is sent.
func (o *OTP) Issue(ctx context.Context, email string) (time.Duration, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, apperr.New(apperr.InvalidArgument, "email is required")
	}
	o.mu.Lock()
	if e, ok := o.codes[email]; ok {
		if wait := o.retryAfter - o.now().Sub(e.issuedAt); wait > 0 {
			o.mu.Unlock()
			return wait, nil
		}
	}
	code, err := randomCode()
	if err != nil {
		o.mu.Unlock()
		return 0, fmt.Errorf("generate passcode: %w", err)
	}
	o.codes[email] = entry{code: code, issuedAt: o.now()}
	o.mu.Unlock()

	if err := o.sender.Send(ctx, email, code); err != nil {
		return 0, fmt.Errorf("send passcode: %w", err)
	}
	return o.retryAfter, nil
}

// Verify consumes the passcode for the address. A matching, unexpired code
// succeeds exactly once.
func (o *OTP) Verify(email, code string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.codes[email]
	if !ok {
		return false
	}
	if o.now().Sub(e.issuedAt) > o.ttl {
		delete(o.codes, email)
		return false
	}
	if e.code != strings.TrimSpace(code) {
		return false
	}
	delete(o.codes, email)
	return true
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
