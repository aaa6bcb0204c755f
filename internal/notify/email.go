package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

const implicitTLSPort = 465

var (
	changeTemplate = template.Must(template.New("change").Parse(`<html>
  <body>
    <h2>{{.Name}}</h2>
    <p>Price {{.Direction}} on {{.Source}}:</p>
    <p style="color: red; font-size: 24px;">
      <del>₹{{.OldPrice}}</del> → <strong>₹{{.NewPrice}}</strong>
    </p>
    <p><a href="{{.URL}}">View Product</a></p>
  </body>
</html>`))

	noChangeTemplate = template.Must(template.New("no_change").Parse(`<html>
  <body>
    <h2>Price Tracker Update</h2>
    <p>All product prices remain the same.</p>
  </body>
</html>`))
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type message struct {
	to      string
	subject string
	body    string
}

// EmailNotifier sends HTML mails over SMTP. Without a host it only logs.
type EmailNotifier struct {
	cfg    SMTPConfig
	send   func(ctx context.Context, msg message) error
	logger *slog.Logger
}

func NewEmailNotifier(cfg SMTPConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		cfg:    cfg,
		logger: logger.With("component", "email_notifier"),
	}
	n.send = n.sendSMTP
	return n
}

func (n *EmailNotifier) Enabled() bool {
	return n.cfg.Host != ""
}

func (n *EmailNotifier) NotifyChange(ctx context.Context, notice ChangeNotice) error {
	var body bytes.Buffer
	err := changeTemplate.Execute(&body, map[string]string{
		"Name":      notice.Item.Name,
		"Direction": string(notice.Direction),
		"Source":    notice.Item.SourceID,
		"OldPrice":  notice.OldPrice.StringFixed(2),
		"NewPrice":  notice.NewPrice.StringFixed(2),
		"URL":       notice.Item.URL,
	})
	if err != nil {
		return fmt.Errorf("failed to render alert: %w", err)
	}

	return n.deliver(ctx, message{
		to:      notice.Item.NotificationTarget,
		subject: fmt.Sprintf("Price Alert: %s (%s)", notice.Item.Name, notice.Direction),
		body:    body.String(),
	})
}

func (n *EmailNotifier) NotifyNoChange(ctx context.Context, target string) error {
	var body bytes.Buffer
	if err := noChangeTemplate.Execute(&body, nil); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}

	return n.deliver(ctx, message{
		to:      target,
		subject: "Price Tracker: No Price Changes",
		body:    body.String(),
	})
}

func (n *EmailNotifier) deliver(ctx context.Context, msg message) error {
	if msg.to == "" {
		n.logger.Warn("no recipient, skipping mail", "subject", msg.subject)
		return nil
	}
	if !n.Enabled() {
		n.logger.Info("smtp disabled, mail not sent", "to", msg.to, "subject", msg.subject)
		return nil
	}

	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.to, err)
	}

	n.logger.Info("mail sent", "to", msg.to, "subject", msg.subject)
	return nil
}

func (n *EmailNotifier) sendSMTP(ctx context.Context, msg message) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	raw := buildMessage(n.cfg.From, msg)

	if n.cfg.Port != implicitTLSPort {
		return smtp.SendMail(addr, auth, n.cfg.From, []string{msg.to}, raw)
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: n.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp: %w", err)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := client.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func buildMessage(from string, msg message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.body)
	return []byte(b.String())
}
