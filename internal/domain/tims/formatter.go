package tims

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
)

const (
	// maxItemLineLen is the device's fixed-format limit for one items_list
	// entry. Longer lines are truncated silently, per the protocol docs.
	maxItemLineLen = 512

	// customerPINPrefix is the mandatory first character of a KRA PIN.
	customerPINPrefix = 'P'

	dateLayout = "02_01_2006" // DD_MM_YYYY
)

// Format builds the device payload for one invoice. Pure: no I/O, no clock.
// The returned payload is complete and validated; on any rule violation the
// payload is nil and the error carries a Configuration or Validation kind.
func Format(inv *entity.Invoice, items []*entity.LineItem, settings *entity.DeviceSettings) (*Payload, error) {
	if settings == nil || settings.ControlUnitPIN == "" {
		return nil, ConfigurationErr("control unit PIN is not configured")
	}
	if len(items) == 0 {
		return nil, ValidationErr("invoice %s has no items", inv.ID)
	}

	customerPIN, err := normalizeCustomerPIN(inv.CustomerTaxID)
	if err != nil {
		return nil, err
	}

	p := &Payload{
		Mode:             ModeExclusive,
		InvoiceDate:      inv.PostingDate.Format(dateLayout),
		InvoiceNumber:    inv.ID,
		InvoicePIN:       settings.ControlUnitPIN,
		CustomerPIN:      customerPIN,
		CustomerExID:     inv.TaxExemptionID,
		GrandTotal:       money(inv.GrandTotal),
		TaxTotal:         money(inv.TaxTotal),
		NetDiscountTotal: money(inv.DiscountAmount),
		SelCurrency:      inv.Currency,
		RelDocNumber:     inv.ReturnAgainst,
	}

	if inv.VATInclusive {
		p.Mode = ModeInclusive
		// The device derives tax internally in inclusive mode and expects the
		// net subtotal alongside the structured items.
		p.NetSubtotal = money(inv.NetTotal)
		p.ItemsArray = make([]PayloadItem, 0, len(items))
		for _, item := range items {
			p.ItemsArray = append(p.ItemsArray, PayloadItem{
				Name:      item.Name,
				HSCode:    item.HSCode,
				BrutPrice: money(item.Amount),
				Quantity:  money(item.Quantity),
			})
		}
		return p, nil
	}

	// Exclusive mode: one fixed-format text line per item,
	// "<hscode><name> <qty> <unitNetto> <sumAmount>", truncated at 512.
	p.ItemsList = make([]string, 0, len(items))
	for i, item := range items {
		if !item.Quantity.IsPositive() {
			return nil, ValidationErr("item %d (%s): quantity must be positive, got %s",
				i+1, item.Name, item.Quantity)
		}
		if !item.Rate.IsPositive() {
			return nil, ValidationErr("item %d (%s): unit price must be positive, got %s",
				i+1, item.Name, item.Rate)
		}
		line := fmt.Sprintf("%s%s %s %s %s",
			item.HSCode, item.Name, money(item.Quantity), money(item.Rate), money(item.Amount))
		p.ItemsList = append(p.ItemsList, truncate(line, maxItemLineLen))
	}
	return p, nil
}

// money renders a decimal as a fixed-point string with exactly 2 decimals,
// never scientific notation.
func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// normalizeCustomerPIN uppercases and strips non-alphanumerics from a KRA PIN.
// An empty PIN is allowed (cash sale); a present but malformed one is not.
func normalizeCustomerPIN(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	pin := b.String()
	if pin == "" || pin[0] != customerPINPrefix {
		return "", ValidationErr("customer tax id %q is not a valid KRA PIN (must start with %c)",
			raw, customerPINPrefix)
	}
	return pin, nil
}
