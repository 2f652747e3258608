// Package pdf renders invoices and payment receipts with maroto.
package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider returns rendered PDF bytes. Callers treat a nil document with a
// nil error as "no attachment".
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type NoOpProvider struct{}

func (NoOpProvider) GenerateInvoice(context.Context, InvoiceData) ([]byte, error) { return nil, nil }

func (NoOpProvider) GenerateReceipt(context.Context, ReceiptData) ([]byte, error) { return nil, nil }

func New() Provider {
	return &MarotoProvider{}
}

type MarotoProvider struct{}
