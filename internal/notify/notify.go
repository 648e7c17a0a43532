// Package notify delivers verification codes to users over email or SMS.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skulicheck/skulicheck-be/internal/metrics"
)

// Message is a single code delivery.
type Message struct {
	Recipient string
	Code      string
	// Purpose is a human-readable label such as "Registration" or "MFA".
	Purpose string
	TTL     time.Duration
}

// Gateway delivers a code and reports whether delivery succeeded. Transport
// failures are reported as false, never returned.
type Gateway interface {
	Deliver(ctx context.Context, msg Message) bool
}

// SMSStub stands in for an SMS provider that has not been integrated. It
// sends nothing and always reports success.
type SMSStub struct {
	Logger *zap.Logger
}

func (s SMSStub) Deliver(_ context.Context, msg Message) bool {
	if s.Logger != nil {
		s.Logger.Warn("sms provider not integrated; code not sent",
			zap.String("purpose", msg.Purpose))
	}
	return true
}

// Disabled reports every delivery as failed. It is used when no email
// transport is configured.
type Disabled struct {
	Logger *zap.Logger
}

func (d Disabled) Deliver(_ context.Context, msg Message) bool {
	if d.Logger != nil {
		d.Logger.Warn("email transport not configured; code not sent",
			zap.String("purpose", msg.Purpose))
	}
	return false
}

type counted struct {
	channel string
	next    Gateway
	metrics *metrics.Metrics
}

// Counted wraps gw so each delivery outcome is recorded under channel.
func Counted(channel string, gw Gateway, m *metrics.Metrics) Gateway {
	return counted{channel: channel, next: gw, metrics: m}
}

func (c counted) Deliver(ctx context.Context, msg Message) bool {
	ok := c.next.Deliver(ctx, msg)
	c.metrics.Delivery(c.channel, ok)
	return ok
}
