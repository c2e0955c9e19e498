package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Message is a plain-text email notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier 定义告警投递接口。
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// SMTPOptions parameterise the mail transport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StartTLS bool
	Timeout  time.Duration
}

// SMTPNotifier delivers notifications over SMTP.
type SMTPNotifier struct {
	from   string
	client *mail.Client
	logger zerolog.Logger
}

// NewSMTPNotifier 构造 SMTP 告警器。
func NewSMTPNotifier(opts SMTPOptions, logger zerolog.Logger) (*SMTPNotifier, error) {
	if opts.Host == "" {
		return nil, errors.New("smtp host not configured")
	}
	if opts.From == "" {
		return nil, errors.New("smtp from address not configured")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	clientOpts := []mail.Option{
		mail.WithTimeout(timeout),
	}
	if opts.Port > 0 {
		clientOpts = append(clientOpts, mail.WithPort(opts.Port))
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}
	if opts.StartTLS {
		clientOpts = append(clientOpts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		clientOpts = append(clientOpts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPNotifier{
		from:   opts.From,
		client: client,
		logger: logger.With().Str("component", "smtp_notifier").Logger(),
	}, nil
}

// Notify sends a plain-text email.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("recipient address is empty")
	}

	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("告警已发送 (SMTP)")
	return nil
}

var _ Notifier = (*SMTPNotifier)(nil)
