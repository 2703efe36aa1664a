package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo reads the billing system's invoice tables (usable with pool or
// tx). The fiscal core owns none of these rows; SetFiscalResult is its single
// permitted write.
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository builds the adapter. Pass pool or tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// GetSnapshot loads the invoice header; nil when it does not exist.
func (r *InvoiceRepo) GetSnapshot(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	query := `
		SELECT id, posting_date, grand_total, net_total, tax_total, discount_amount,
		       currency, COALESCE(customer_tax_id, ''), COALESCE(tax_exemption_id, ''),
		       is_return, COALESCE(return_against, ''), vat_inclusive,
		       COALESCE(fiscal_invoice_number, ''), COALESCE(verification_url, ''), fiscalized
		FROM sales_invoices WHERE id = $1`
	var inv entity.Invoice
	err := r.q.QueryRow(ctx, query, invoiceID).Scan(
		&inv.ID, &inv.PostingDate, &inv.GrandTotal, &inv.NetTotal, &inv.TaxTotal,
		&inv.DiscountAmount, &inv.Currency, &inv.CustomerTaxID, &inv.TaxExemptionID,
		&inv.IsReturn, &inv.ReturnAgainst, &inv.VATInclusive,
		&inv.FiscalInvoiceNumber, &inv.VerificationURL, &inv.Fiscalized,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// GetItems loads the invoice lines in their document order.
func (r *InvoiceRepo) GetItems(ctx context.Context, invoiceID string) ([]*entity.LineItem, error) {
	query := `
		SELECT item_name, COALESCE(hscode, ''), quantity, rate, amount
		FROM sales_invoice_items WHERE invoice_id = $1 ORDER BY idx`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()
	var items []*entity.LineItem
	for rows.Next() {
		var it entity.LineItem
		if err := rows.Scan(&it.Name, &it.HSCode, &it.Quantity, &it.Rate, &it.Amount); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// SetFiscalResult writes the three fiscal fields. The WHERE clause makes the
// fiscalized flag write-once: a duplicate success against an already
// fiscalized invoice changes nothing.
func (r *InvoiceRepo) SetFiscalResult(ctx context.Context, invoiceID, fiscalNumber, verifyURL string) error {
	query := `
		UPDATE sales_invoices
		SET fiscal_invoice_number = $2, verification_url = $3, fiscalized = TRUE
		WHERE id = $1 AND (fiscalized = FALSE
			OR (fiscal_invoice_number = $2 AND verification_url = $3))`
	if _, err := r.q.Exec(ctx, query, invoiceID, nullIfEmpty(fiscalNumber), nullIfEmpty(verifyURL)); err != nil {
		return fmt.Errorf("set fiscal result: %w", err)
	}
	return nil
}
