package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the read-only snapshot of a submitted sales invoice as the
// fiscalization core sees it. Totals and line items are owned by the billing
// system; the core only writes back the three fiscal result fields after a
// successful sign.
type Invoice struct {
	ID             string // invoice number, e.g. "INV-001"
	PostingDate    time.Time
	GrandTotal     decimal.Decimal
	NetTotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Currency       string // authoritative currency for the device payload
	CustomerTaxID  string // KRA PIN of the customer, optional
	TaxExemptionID string
	IsReturn       bool
	ReturnAgainst  string // original invoice for credit notes
	VATInclusive   bool   // selects the device wire format

	// Fiscal result fields, written once on successful fiscalization.
	FiscalInvoiceNumber string
	VerificationURL     string
	Fiscalized          bool
}

// LineItem is one invoice line as sent to the control unit.
type LineItem struct {
	Name     string
	HSCode   string
	Quantity decimal.Decimal
	Rate     decimal.Decimal // unit price
	Amount   decimal.Decimal
}
