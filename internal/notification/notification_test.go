package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/meterbill/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type captureProvider struct {
	sent []email.Message
	err  error
}

func (c *captureProvider) Send(_ context.Context, msg email.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func TestSendInvoiceIssuedAttachesPDF(t *testing.T) {
	provider := &captureProvider{}
	n, err := New(Params{Log: zap.NewNop(), Email: provider})
	require.NoError(t, err)

	err = n.SendInvoiceIssued(context.Background(), InvoiceIssued{
		To:            "alice@example.test",
		UserName:      "Alice",
		TenantName:    "Acme",
		InvoiceNumber: "INV-20240401-000001",
		PeriodStart:   "2024-03-01",
		PeriodEnd:     "2024-03-31",
		DueDate:       "2024-05-01",
		Total:         "R74.99",
		PDF:           []byte("%PDF"),
	})
	require.NoError(t, err)
	require.Len(t, provider.sent, 1)

	msg := provider.sent[0]
	assert.Equal(t, []string{"alice@example.test"}, msg.To)
	assert.Equal(t, "Invoice INV-20240401-000001 from Acme", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "R74.99")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "INV-20240401-000001.pdf", msg.Attachments[0].Filename)
}

func TestSendLogsDeliveryFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n, err := New(Params{Log: zap.New(core), Email: &captureProvider{err: errors.New("smtp down")}})
	require.NoError(t, err)

	err = n.SendUsageAnomaly(context.Background(), UsageAnomaly{To: "alice@example.test", Metric: "api-calls"})
	require.Error(t, err)
	require.Equal(t, 1, logs.FilterMessage("notification.delivery.failed").Len())
}

func TestSendWithoutRecipient(t *testing.T) {
	n, err := New(Params{Log: zap.NewNop(), Email: &captureProvider{}})
	require.NoError(t, err)
	assert.ErrorIs(t, n.Send(context.Background(), Message{Subject: "x"}), email.ErrNoRecipients)
}
