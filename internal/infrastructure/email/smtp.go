package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// DefaultSMTPTimeout bounds one delivery when SMTPConfig.Timeout is unset.
const DefaultSMTPTimeout = 30 * time.Second

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Timeout covers dialing and the whole exchange for one message.
	Timeout time.Duration
}

// deliverFunc hands a finished message to the server.
type deliverFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPSender sends reminders over SMTP. STARTTLS is used when the server
// offers it; PLAIN auth is used when a username is configured.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver deliverFunc
	now     func() time.Time
	logger  *slog.Logger
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	s := &SMTPSender{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "smtp_sender"),
	}
	s.deliver = s.dialAndSend
	return s
}

// SendReminder renders and sends the reminder. Failures are logged and
// reported as false.
func (s *SMTPSender) SendReminder(ctx context.Context, p student.ReminderProfile) bool {
	if err := ctx.Err(); err != nil {
		s.logger.Warn("reminder skipped", "student_id", p.StudentID, "error", err)
		return false
	}

	body, err := RenderReminder(p)
	if err != nil {
		s.logger.Error("failed to render reminder", "student_id", p.StudentID, "error", err)
		return false
	}

	msg, err := s.buildMessage(p.Email, body)
	if err != nil {
		s.logger.Error("failed to build reminder", "student_id", p.StudentID, "email", p.Email, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.deliver(ctx, msg); err != nil {
		s.logger.Error("failed to send reminder",
			"student_id", p.StudentID,
			"email", p.Email,
			"error", err,
		)
		return false
	}

	s.logger.Info("reminder sent", "student_id", p.StudentID, "email", p.Email)
	return true
}

func (s *SMTPSender) buildMessage(to, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(ReminderSubject)
	msg.SetDateWithValue(s.now())
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
