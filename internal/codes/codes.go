// Package codes issues and redeems single-use numeric verification codes.
package codes

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/skulicheck/skulicheck-be/internal/metrics"
	"github.com/skulicheck/skulicheck-be/internal/models"
	"github.com/skulicheck/skulicheck-be/internal/storage"
)

// Digits is the length of every issued code.
const Digits = 6

// Ledger issues codes into a CodeStore and redeems them atomically.
type Ledger struct {
	store   storage.CodeStore
	metrics *metrics.Metrics
	random  io.Reader
	now     func() time.Time
}

// NewLedger returns a ledger backed by store. m may be nil.
func NewLedger(store storage.CodeStore, m *metrics.Metrics) *Ledger {
	return &Ledger{store: store, metrics: m, random: rand.Reader, now: time.Now}
}

// WithClock overrides the clock used to stamp expiry.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Issue stores a new code for (userID, purpose) expiring ttl from now and
// returns its plaintext. The plaintext cannot be recovered later.
func (l *Ledger) Issue(ctx context.Context, userID int64, purpose models.Purpose, ttl time.Duration) (string, error) {
	code, err := Generate(l.random)
	if err != nil {
		return "", err
	}
	_, err = l.store.InsertCode(ctx, models.VerificationCode{
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: l.now().Add(ttl),
	})
	if err != nil {
		return "", err
	}
	l.metrics.CodeIssued(string(purpose))
	return code, nil
}

// TryConsume redeems the code if an unused, unexpired row matches
// (userID, code, purpose) at now. It reports false for anything else.
func (l *Ledger) TryConsume(ctx context.Context, userID int64, code string, purpose models.Purpose, now time.Time) (bool, error) {
	if !wellFormed(code) {
		l.metrics.CodeRejected(string(purpose))
		return false, nil
	}
	ok, err := l.store.ConsumeCode(ctx, userID, code, purpose, now)
	if err != nil {
		return false, err
	}
	if ok {
		l.metrics.CodeConsumed(string(purpose))
	} else {
		l.metrics.CodeRejected(string(purpose))
	}
	return ok, nil
}

// Generate returns Digits independent uniform decimal digits read from r.
// Bytes >= 250 are discarded so every digit is equally likely.
func Generate(r io.Reader) (string, error) {
	out := make([]byte, 0, Digits)
	buf := make([]byte, Digits)
	for len(out) < Digits {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == Digits {
				break
			}
		}
	}
	return string(out), nil
}

func wellFormed(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
