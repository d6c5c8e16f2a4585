package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/erpbridge/platform/pkg/common/config"
	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
)

// Mailer sends run reports over SMTP. An empty host disables sending, so the
// hub runs fine in environments without a mail relay.
type Mailer struct {
	host     string
	port     int
	user     string
	password string
	from     string

	// send is swapped out in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		send:     smtp.SendMail,
	}
}

// SendRunReport mails the outcome of one run to the given recipients.
func (m *Mailer) SendRunReport(_ context.Context, cfg models.IntegrationConfiguration, run models.IntegrationRun, recipients []models.NotificationRecipient) error {
	if m.host == "" {
		logger.WithModule(run.ModuleName).Debug("SMTP not configured, skipping notification")
		return nil
	}
	if len(recipients) == 0 {
		return nil
	}

	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.Email != "" {
			to = append(to, r.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}

	msg := buildMessage(m.from, to, cfg, run)
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	if err := m.send(addr, auth, m.from, to, msg); err != nil {
		return fmt.Errorf("failed to send run report for %s: %w", run.ModuleName, err)
	}
	logger.WithFields(map[string]interface{}{
		"module":     run.ModuleName,
		"status":     string(run.Status),
		"recipients": len(to),
	}).Info("Run report sent")
	return nil
}

func buildMessage(from string, to []string, cfg models.IntegrationConfiguration, run models.IntegrationRun) []byte {
	subject := fmt.Sprintf("[integration-hub] %s run %s", run.ModuleName, run.Status)

	var body strings.Builder
	fmt.Fprintf(&body, "Module:        %s\r\n", run.ModuleName)
	fmt.Fprintf(&body, "Status:        %s\r\n", run.Status)
	fmt.Fprintf(&body, "Run ID:        %s\r\n", run.ID)
	fmt.Fprintf(&body, "Started:       %s\r\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(&body, "Completed:     %s\r\n", run.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&body, "Duration:      %dms\r\n", run.DurationMS)
	fmt.Fprintf(&body, "Total records: %d\r\n", run.TotalRecords)
	fmt.Fprintf(&body, "Succeeded:     %d\r\n", run.SuccessCount)
	fmt.Fprintf(&body, "Failed:        %d\r\n", run.ErrorCount)
	if cfg.ExecutionInterval != "" {
		fmt.Fprintf(&body, "Schedule:      %s\r\n", cfg.ExecutionInterval)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body.String())
	return []byte(msg.String())
}
