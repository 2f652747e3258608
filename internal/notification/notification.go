// Package notification renders customer emails and hands them to the email
// provider. Delivery is best effort: failures are logged and counted, and
// callers never roll back on them.
package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var Module = fx.Module("notification",
	fx.Provide(New),
)

const channelEmail = "email"

type Attachment = email.Attachment

type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Notifier struct {
	log       *zap.Logger
	email     email.Provider
	metrics   *obsmetrics.Metrics
	templates *template.Template
}

func New(p Params) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Notifier{
		log:       p.Log.Named("notification"),
		email:     p.Email,
		metrics:   p.Metrics,
		templates: tmpl,
	}, nil
}

// Send delivers msg. The returned error has already been logged.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return n.fail(ctx, msg, email.ErrNoRecipients)
	}
	out := email.Message{
		To:       []string{msg.To},
		Subject:  msg.Subject,
		HTMLBody: msg.Body,
	}
	if msg.Attachment != nil {
		out.Attachments = []email.Attachment{*msg.Attachment}
	}
	if err := n.email.Send(ctx, out); err != nil {
		return n.fail(ctx, msg, err)
	}
	n.log.Debug("notification.delivered", zap.String("subject", msg.Subject))
	return nil
}

func (n *Notifier) fail(ctx context.Context, msg Message, err error) error {
	n.log.Warn("notification.delivery.failed",
		zap.String("channel", channelEmail),
		zap.String("subject", msg.Subject),
		zap.Error(err),
	)
	if n.metrics != nil {
		n.metrics.RecordDeliveryFailure(ctx, channelEmail)
	}
	return err
}

func (n *Notifier) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := n.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

type InvoiceIssued struct {
	To            string
	UserName      string
	TenantName    string
	IssuerName    string
	InvoiceNumber string
	PeriodStart   string
	PeriodEnd     string
	DueDate       string
	Total         string
	PDF           []byte
}

func (n *Notifier) SendInvoiceIssued(ctx context.Context, data InvoiceIssued) error {
	body, err := n.render("invoice_issued.html", data)
	if err != nil {
		return n.fail(ctx, Message{Subject: data.InvoiceNumber}, err)
	}
	msg := Message{
		To:      data.To,
		Subject: fmt.Sprintf("Invoice %s from %s", data.InvoiceNumber, data.TenantName),
		Body:    body,
	}
	if len(data.PDF) > 0 {
		msg.Attachment = &Attachment{
			Filename:    data.InvoiceNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        data.PDF,
		}
	}
	return n.Send(ctx, msg)
}

type PaymentConfirmed struct {
	To            string
	UserName      string
	IssuerName    string
	InvoiceNumber string
	Amount        string
	Outstanding   string
	FullyPaid     bool
	Receipt       []byte
}

func (n *Notifier) SendPaymentConfirmed(ctx context.Context, data PaymentConfirmed) error {
	body, err := n.render("payment_confirmed.html", data)
	if err != nil {
		return n.fail(ctx, Message{Subject: data.InvoiceNumber}, err)
	}
	msg := Message{
		To:      data.To,
		Subject: fmt.Sprintf("Payment received for %s", data.InvoiceNumber),
		Body:    body,
	}
	if len(data.Receipt) > 0 {
		msg.Attachment = &Attachment{
			Filename:    data.InvoiceNumber + "-receipt.pdf",
			ContentType: "application/pdf",
			Data:        data.Receipt,
		}
	}
	return n.Send(ctx, msg)
}

type UsageAnomaly struct {
	To         string
	UserName   string
	TenantName string
	Metric     string
	Date       string
	Latest     string
	Average    string
	Threshold  string
}

func (n *Notifier) SendUsageAnomaly(ctx context.Context, data UsageAnomaly) error {
	body, err := n.render("usage_anomaly.html", data)
	if err != nil {
		return n.fail(ctx, Message{Subject: data.Metric}, err)
	}
	return n.Send(ctx, Message{
		To:      data.To,
		Subject: fmt.Sprintf("Unusual %s usage detected", data.Metric),
		Body:    body,
	})
}
