package channel

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/textproto"
	"regexp"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/PulfordJ/lastsignal/internal/config"
)

// Email delivers messages over SMTP.
type Email struct {
	name    string
	cfg     config.EmailConfig
	timeout time.Duration
}

// NewEmail creates an SMTP channel.
func NewEmail(name string, cfg config.EmailConfig, timeout time.Duration) *Email {
	return &Email{name: name, cfg: cfg, timeout: timeout}
}

func (e *Email) Name() string { return e.name }

// HealthCheck connects, negotiates TLS and authenticates, then disconnects.
func (e *Email) HealthCheck(ctx context.Context) error {
	client, err := e.client()
	if err != nil {
		return NewError(KindUnknown, e.name, "invalid SMTP client settings", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return e.classify(err, KindUnreachable)
	}
	_ = client.Close()
	return nil
}

// Send delivers msg as text/plain with an optional text/html alternative.
func (e *Email) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return NewError(KindUnknown, e.name, "invalid sender address", err)
	}
	if err := m.To(e.cfg.To); err != nil {
		return NewError(KindInvalidRecipient, e.name, "invalid recipient address", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	client, err := e.client()
	if err != nil {
		return NewError(KindUnknown, e.name, "invalid SMTP client settings", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return e.classify(err, KindUnknown)
	}
	return nil
}

func (e *Email) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(e.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
	}
	if e.timeout > 0 {
		opts = append(opts, mail.WithTimeout(e.timeout))
	}
	switch e.cfg.TLS {
	case "tls":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return mail.NewClient(e.cfg.SMTPHost, opts...)
}

var smtpCode = regexp.MustCompile(`\b([245]\d\d)\b`)

// classify maps SMTP replies to channel kinds; fallback applies when no reply code is found.
func (e *Email) classify(err error, fallback Kind) error {
	if KindOf(err) == KindUnreachable {
		return NewError(KindUnreachable, e.name, "SMTP server unreachable", err)
	}

	code := 0
	var tpErr *textproto.Error
	if stderrors.As(err, &tpErr) {
		code = tpErr.Code
	} else if m := smtpCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ = strconv.Atoi(m[1])
	}

	var sendErr *mail.SendError
	if stderrors.As(err, &sendErr) && sendErr.Reason == mail.ErrSMTPRcptTo {
		return NewError(KindInvalidRecipient, e.name, "recipient rejected", err)
	}

	switch {
	case code == 530 || code == 534 || code == 535:
		return NewError(KindAuthenticationFailed, e.name, "SMTP authentication failed", err)
	case code == 550 || code == 551 || code == 553:
		return NewError(KindInvalidRecipient, e.name, "recipient rejected", err)
	case code == 421:
		return NewError(KindUnreachable, e.name, "SMTP service not available", err)
	case code == 450 || code == 451 || code == 452:
		return NewError(KindRateLimited, e.name, "SMTP server deferred the message", err)
	case code != 0:
		return NewError(KindUnknown, e.name, fmt.Sprintf("SMTP error %d", code), err)
	}
	return NewError(fallback, e.name, "SMTP operation failed", err)
}
