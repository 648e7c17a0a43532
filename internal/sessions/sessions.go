// Package sessions issues opaque bearer tokens for logged-in users.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/skulicheck/skulicheck-be/internal/metrics"
	"github.com/skulicheck/skulicheck-be/internal/models"
	"github.com/skulicheck/skulicheck-be/internal/storage"
)

// TokenBytes is the entropy of every session token.
const TokenBytes = 32

// Ledger records issued sessions.
type Ledger struct {
	store   storage.SessionStore
	metrics *metrics.Metrics
	random  io.Reader
	now     func() time.Time
}

// NewLedger returns a ledger backed by store. m may be nil.
func NewLedger(store storage.SessionStore, m *metrics.Metrics) *Ledger {
	return &Ledger{store: store, metrics: m, random: rand.Reader, now: time.Now}
}

// WithClock overrides the clock used to stamp expiry.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Issue creates a session for userID that expires ttl from now. Users may
// hold any number of concurrent sessions.
func (l *Ledger) Issue(ctx context.Context, userID int64, ttl time.Duration, device string) (models.Session, error) {
	token, err := NewToken(l.random)
	if err != nil {
		return models.Session{}, err
	}
	session, err := l.store.InsertSession(ctx, models.Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: l.now().Add(ttl),
		Device:    device,
	})
	if err != nil {
		return models.Session{}, err
	}
	l.metrics.SessionIssued()
	return session, nil
}

// NewToken reads TokenBytes from r and returns them URL-safe encoded.
func NewToken(r io.Reader) (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
