// Package tims models the wire protocol of a TIMS fiscal control unit: the
// fixed-format sign payload in its two VAT variants and the validation rules
// the device imposes. Pure package, no I/O.
package tims

// Mode selects the device wire format. The control unit exposes two
// incompatible sign variants depending on whether line amounts already
// include VAT.
type Mode int

const (
	// ModeInclusive sends structured items (items_array); the device derives
	// tax from gross prices.
	ModeInclusive Mode = iota
	// ModeExclusive sends pre-formatted text lines (items_list) with net unit
	// prices.
	ModeExclusive
)

// EndpointVariant is the query-string selector of the sign sub-resource.
func (m Mode) EndpointVariant() string {
	if m == ModeInclusive {
		return "invoice+1"
	}
	return "invoice+2"
}

// PayloadItem is one line in inclusive mode.
type PayloadItem struct {
	Name      string `json:"name"`
	HSCode    string `json:"hscode"`
	BrutPrice string `json:"brut_price"` // gross line amount, 2 decimals
	Quantity  string `json:"quantity"`   // 2 decimals
}

// Payload is the validated, immutable request body for /api/sign. Exactly one
// of ItemsArray (inclusive) or ItemsList (exclusive) is populated; Mode tags
// which, and is not serialized.
type Payload struct {
	Mode Mode `json:"-"`

	InvoiceDate      string `json:"invoice_date"` // DD_MM_YYYY
	InvoiceNumber    string `json:"invoice_number"`
	InvoicePIN       string `json:"invoice_pin"`
	CustomerPIN      string `json:"customer_pin"`
	CustomerExID     string `json:"customer_exid"`
	GrandTotal       string `json:"grand_total"`
	NetSubtotal      string `json:"net_subtotal"` // empty in exclusive mode
	TaxTotal         string `json:"tax_total"`
	NetDiscountTotal string `json:"net_discount_total"`
	SelCurrency      string `json:"sel_currency"`
	RelDocNumber     string `json:"rel_doc_number"`

	ItemsArray []PayloadItem `json:"items_array,omitempty"`
	ItemsList  []string      `json:"items_list,omitempty"`
}

// ProbePayload is the synthetic sign request used by the connectivity probe.
// Values mirror the example in the device documentation, which addresses the
// invoice+1 variant with a text item line; the leading space in the item line
// is significant (empty HS code position).
func ProbePayload(invoiceNumber, date string) *Payload {
	return &Payload{
		Mode:             ModeInclusive,
		InvoiceDate:      date,
		InvoiceNumber:    invoiceNumber,
		InvoicePIN:       "P051201909L",
		GrandTotal:       "1.00",
		NetSubtotal:      "0.86",
		TaxTotal:         "0.14",
		NetDiscountTotal: "0.00",
		SelCurrency:      "KSH",
		ItemsList:        []string{" TEST ITEM 1.00 1.00 1.00"},
	}
}
