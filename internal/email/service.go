// Package email delivers staff notifications via SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"leadflow/internal/events"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	return s.send(s.server, s.auth, s.config.From, to, s.message(to, subject, body))
}

func (s *Service) message(to []string, subject, body string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))
}

// Notifier forwards pipeline events to the staff inbox.
type Notifier struct {
	service    *Service
	recipients []string
}

func NewNotifier(service *Service, recipients ...string) *Notifier {
	clean := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return &Notifier{service: service, recipients: clean}
}

func (n *Notifier) Name() string { return "email" }

func (n *Notifier) Publish(_ context.Context, event events.Event) error {
	subject, body := render(event)
	if err := n.service.SendEmail(n.recipients, subject, body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

var subjects = map[events.Type]string{
	events.LeadCreated:    "New lead",
	events.IntakeCreated:  "New project intake",
	events.StageChanged:   "Stage changed",
	events.RequestCreated: "New update request",
}

func render(event events.Event) (string, string) {
	title, ok := subjects[event.Type]
	if !ok {
		title = string(event.Type)
	}
	subject := fmt.Sprintf("[leadflow] %s: %s", title, event.EntityID)

	var body strings.Builder
	fmt.Fprintf(&body, "%s\r\n\r\n", title)
	fmt.Fprintf(&body, "ID: %s\r\n", event.EntityID)
	fmt.Fprintf(&body, "When: %s\r\n", event.OccurredAt.UTC().Format("2006-01-02 15:04 MST"))

	keys := make([]string, 0, len(event.Data))
	for key := range event.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&body, "%s: %v\r\n", key, event.Data[key])
	}
	return subject, body.String()
}
