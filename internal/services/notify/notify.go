// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package notify delivers verification notices to subjects, preferring
// the platform's direct messages with an SMTP email fallback.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/gateway"
	"codeberg.org/mkadlec/gatekeeper/internal/i18n"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/language"
)

// Kind selects the notice template.
type Kind int

const (
	// KindAdmin is an administrator-triggered re-verification notice.
	KindAdmin Kind = iota
	// KindWave is a scheduled wave notification.
	KindWave
	// KindReminder nudges a notified subject who has not completed yet.
	KindReminder
	// KindWelcome invites a newly joined, unverified subject.
	KindWelcome
)

func (k Kind) String() string {
	switch k {
	case KindWave:
		return "wave"
	case KindReminder:
		return "reminder"
	case KindWelcome:
		return "welcome"
	default:
		return "admin"
	}
}

func (k Kind) messageID() string {
	return "notice_" + k.String()
}

// Notice carries everything needed to render and address one message.
type Notice struct { //nolint:govet // fieldalignment: readability over optimization
	Kind        Kind
	SubjectID   int64
	Email       string
	DisplayName string
	Reason      string
	LoginURL    string
	Deadline    time.Time
}

// Service sends notices. The email channel stays disabled unless the
// SMTP host and from address are configured.
type Service struct {
	gw       gateway.Gateway
	cfg      *config.SMTPConfig
	sendMail func(ctx context.Context, msg *mail.Msg) error
}

// New creates a notice service.
func New(gw gateway.Gateway, cfg *config.SMTPConfig) *Service {
	s := &Service{gw: gw, cfg: cfg}
	if cfg != nil && cfg.Host != "" && cfg.From != "" {
		s.sendMail = s.smtpSend
	}
	return s
}

// Deliver sends the notice over direct message first and falls back to
// email when the message is refused and an address is known. Reports
// whether any channel accepted the notice; delivery failures are logged,
// never returned.
func (s *Service) Deliver(ctx context.Context, notice Notice) bool {
	subject, body := compose(notice)

	err := s.gw.SendDirectMessage(ctx, notice.SubjectID, subject, body)
	if err == nil {
		slog.Info("notice_delivered", "subject_id", notice.SubjectID, "channel", "dm")
		return true
	}
	slog.Warn("notice_dm_failed", "subject_id", notice.SubjectID, "error", err)

	if s.sendMail == nil || notice.Email == "" {
		return false
	}

	msg, err := s.buildEmail(notice.Email, subject, body)
	if err != nil {
		slog.Error("notice_email_build_failed", "subject_id", notice.SubjectID, "error", err)
		return false
	}
	if err := s.sendMail(ctx, msg); err != nil {
		slog.Warn("notice_email_failed", "subject_id", notice.SubjectID, "error", err)
		return false
	}
	slog.Info("notice_delivered", "subject_id", notice.SubjectID, "channel", "email")
	return true
}

// compose renders the subject and body. Notices reach users whose
// client language is unknown, so both carry Czech first and English
// second.
func compose(notice Notice) (string, string) {
	id := notice.Kind.messageID()
	data := map[string]any{
		"Reason":   notice.Reason,
		"LoginURL": notice.LoginURL,
		"Deadline": notice.Deadline.Format("2006-01-02"),
	}

	subject := i18n.TLang(language.Czech, id+"_subject", data) +
		" / " + i18n.TLang(language.English, id+"_subject", data)
	body := i18n.TLang(language.Czech, id+"_body", data) +
		"\n\n" + i18n.TLang(language.English, id+"_body", data)
	return subject, body
}

func (s *Service) buildEmail(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// smtpSend sends an email via SMTP using go-mail.
func (s *Service) smtpSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Implicit TLS (SSL) for port 465, STARTTLS for others
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
