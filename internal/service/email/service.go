package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/ports"
)

// Provider is the transport an alert mail goes out through.
type Provider interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

// Config selects the provider and the operations inbox alerts land in.
type Config struct {
	// Provider type: "sendgrid" or "smtp"
	Provider string

	FromEmail string
	FromName  string

	// OpsEmail receives every alert. Alerts are operator-facing; stations
	// and vehicles have no inbox.
	OpsEmail string

	// SendGrid configuration
	SendGridAPIKey string

	// SMTP configuration (Mailhog in development)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool

	// Currency shown in balance alerts
	Currency string

	// BaseURL for console links in alert bodies
	BaseURL string
}

// DefaultConfig returns a development configuration pointed at Mailhog.
func DefaultConfig() *Config {
	return &Config{
		Provider:   "smtp",
		FromEmail:  "alerts@ocpp-central.local",
		FromName:   "OCPP Central",
		OpsEmail:   "ops@ocpp-central.local",
		SMTPHost:   "localhost",
		SMTPPort:   1025,
		SMTPUseTLS: false,
		Currency:   "BRL",
		BaseURL:    "http://localhost:3000",
	}
}

// Service mails operational alerts. It implements ports.AlertMailer: send
// failures are logged, never returned into the OCPP handler paths that
// raise the alerts.
type Service struct {
	config    *Config
	provider  Provider
	templates map[string]*template.Template
	log       *zap.Logger
}

var _ ports.AlertMailer = (*Service)(nil)

func NewService(config *Config, log *zap.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
		log:       log,
	}

	switch config.Provider {
	case "sendgrid":
		if config.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid api key is required")
		}
		s.provider = NewSendGridProvider(config.SendGridAPIKey, config.FromEmail, config.FromName)
	case "smtp":
		s.provider = NewSMTPProvider(
			config.SMTPHost,
			config.SMTPPort,
			config.SMTPUsername,
			config.SMTPPassword,
			config.FromEmail,
			config.FromName,
			config.SMTPUseTLS,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", config.Provider)
	}

	s.loadTemplates()

	return s, nil
}

func (s *Service) loadTemplates() {
	s.templates["connector_faulted"] = template.Must(template.New("connector_faulted").Parse(connectorFaultedTemplate))
	s.templates["low_balance"] = template.Must(template.New("low_balance").Parse(lowBalanceTemplate))
	s.templates["zero_credit_cutoff"] = template.Must(template.New("zero_credit_cutoff").Parse(zeroCreditCutoffTemplate))
}

// Send sends a plain text email.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	if err := s.provider.Send(ctx, to, subject, body, false); err != nil {
		s.log.Error("failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendHTML sends an HTML email.
func (s *Service) SendHTML(ctx context.Context, to, subject, htmlBody string) error {
	if err := s.provider.Send(ctx, to, subject, htmlBody, true); err != nil {
		s.log.Error("failed to send html email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send html email: %w", err)
	}
	return nil
}

func (s *Service) sendAlert(ctx context.Context, templateName, subject string, data map[string]interface{}) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		s.log.Error("alert template not found", zap.String("template", templateName))
		return
	}

	if data == nil {
		data = make(map[string]interface{})
	}
	data["BaseURL"] = s.config.BaseURL
	data["Time"] = time.Now().UTC().Format("2006-01-02 15:04:05 UTC")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.log.Error("failed to render alert template",
			zap.String("template", templateName),
			zap.Error(err),
		)
		return
	}

	if err := s.SendHTML(ctx, s.config.OpsEmail, subject, buf.String()); err != nil {
		// already logged by SendHTML; alerts are best effort
		return
	}

	s.log.Info("alert mailed",
		zap.String("template", templateName),
		zap.String("to", s.config.OpsEmail),
	)
}

// ConnectorFaulted alerts operators that a connector reported Faulted and
// needs a site visit.
func (s *Service) ConnectorFaulted(ctx context.Context, cpid string, connector int, errorCode string) {
	s.sendAlert(ctx, "connector_faulted",
		fmt.Sprintf("Connector faulted: %s #%d", cpid, connector),
		map[string]interface{}{
			"ChargePointID": cpid,
			"Connector":     connector,
			"ErrorCode":     errorCode,
		})
}

// LowBalance alerts operators that a vehicle wallet dropped under the
// configured low water mark after a deduction.
func (s *Service) LowBalance(ctx context.Context, vid string, balance float64) {
	s.sendAlert(ctx, "low_balance",
		fmt.Sprintf("Low wallet balance: %s", vid),
		map[string]interface{}{
			"VID":      vid,
			"Balance":  fmt.Sprintf("%.2f", balance),
			"Currency": s.config.Currency,
		})
}

// ZeroCreditCutoff alerts operators that a running session was stopped
// because the wallet hit zero.
func (s *Service) ZeroCreditCutoff(ctx context.Context, vid string, transactionID int) {
	s.sendAlert(ctx, "zero_credit_cutoff",
		fmt.Sprintf("Session cut off on zero credit: %s", vid),
		map[string]interface{}{
			"VID":           vid,
			"TransactionID": transactionID,
		})
}
