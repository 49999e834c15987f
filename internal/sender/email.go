package sender

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"verification-service/internal/config"
	"verification-service/internal/util"
)

// SMTPSender sends OTP emails through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPSender) SendOTP(ctx context.Context, address, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", "Your verification code")

	body := fmt.Sprintf(`
		<p>Your verification code is <strong>%s</strong>.</p>
		<p>It expires in 5 minutes. If you did not request this code, you can ignore this email.</p>
	`, code)
	m.SetBody("text/html", body)

	// gomail has no context support; bound the dial-and-send with the
	// caller's deadline so a hung relay cannot block the request forever.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send OTP email: %w", err)
		}
		util.Debug("OTP email sent", zap.String("to", address))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("OTP email send canceled: %w", ctx.Err())
	}
}
