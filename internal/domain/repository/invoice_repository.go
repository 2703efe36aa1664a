package repository

import (
	"context"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
)

// InvoiceRepository reads invoice snapshots from the billing schema and holds
// the single narrow write the fiscal core is allowed: the three fiscal result
// fields.
type InvoiceRepository interface {
	// GetSnapshot loads the invoice header; nil when it does not exist.
	GetSnapshot(ctx context.Context, invoiceID string) (*entity.Invoice, error)
	// GetItems loads the ordered line items of the invoice.
	GetItems(ctx context.Context, invoiceID string) ([]*entity.LineItem, error)

	// SetFiscalResult writes fiscal number, verification URL and the
	// fiscalized flag. The flag is write-once false -> true; writing the same
	// values again is a no-op, not an error.
	SetFiscalResult(ctx context.Context, invoiceID, fiscalNumber, verifyURL string) error
}
