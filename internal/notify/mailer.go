package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Brandonkhumalo/refuse-tracker/internal/config"
	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// Mailer sends proximity notices over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewMailer creates an SMTP notifier from configuration.
func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger.With(zap.String("component", "mailer")),
	}
}

// NotifyProximity composes and sends the notice. The context is checked
// before dialing; gomail itself does not support cancellation mid-send.
func (m *Mailer) NotifyProximity(ctx context.Context, truck models.Truck, resident models.Resident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if resident.Email == "" {
		return fmt.Errorf("resident %s has no email address", resident.ID)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", resident.Email)
	msg.SetHeader("Subject", Subject(truck))
	msg.SetBody("text/plain", Body(truck, resident))

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send proximity notice",
			zap.String("resident", resident.Email),
			zap.Error(err))
		return fmt.Errorf("failed to send notice to %s: %w", resident.Email, err)
	}

	m.logger.Debug("Sent proximity notice",
		zap.String("resident", resident.Email),
		zap.String("truck", truck.Name))
	return nil
}
