package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"
)

var codeEmail = template.Must(template.New("code").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
	<h2 style="color: #2563eb;">Consolata Catholic Comprehensive School</h2>
	<h3>Your Verification Code</h3>
	<p>Your verification code is:</p>
	<div style="background: #f3f4f6; padding: 20px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 3px; color: #2563eb;">{{.Code}}</div>
	<p>This code will expire in {{.Minutes}} minutes.</p>
	<p>If you didn't request this code, please ignore this email.</p>
</div>`))

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer delivers codes as HTML email over SMTP.
type Mailer struct {
	from   string
	dialer sender
	logger *zap.Logger
}

// NewMailer returns a Mailer that negotiates STARTTLS with cfg.Host.
func NewMailer(cfg SMTPConfig, logger *zap.Logger) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	d.Timeout = 10 * time.Second
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Mailer{from: from, dialer: d, logger: logger}
}

// Deliver renders and sends the code email.
func (m *Mailer) Deliver(_ context.Context, msg Message) bool {
	body, err := renderBody(msg)
	if err != nil {
		m.logger.Error("render code email", zap.Error(err))
		return false
	}

	em := mail.NewMessage()
	em.SetHeader("From", m.from)
	em.SetHeader("To", msg.Recipient)
	em.SetHeader("Subject", Subject(msg.Purpose))
	em.SetBody("text/plain", fmt.Sprintf("Your verification code is %s.", msg.Code))
	em.AddAlternative("text/html", body)

	if err := m.dialer.DialAndSend(em); err != nil {
		m.logger.Error("smtp send failed", zap.String("purpose", msg.Purpose), zap.Error(err))
		return false
	}
	m.logger.Info("smtp send ok", zap.String("purpose", msg.Purpose))
	return true
}

// Subject returns the email subject for a purpose label.
func Subject(purpose string) string {
	return fmt.Sprintf("SkuliCheck - %s Verification Code", purpose)
}

func renderBody(msg Message) (string, error) {
	var buf bytes.Buffer
	err := codeEmail.Execute(&buf, struct {
		Code    string
		Minutes int
	}{Code: msg.Code, Minutes: int(msg.TTL / time.Minute)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
