package services

import (
	"fmt"
	"strings"

	domain "github.com/cartfield/payments/internal/domain"
	"github.com/cartfield/payments/internal/payments"
)

const (
	// taxCodeGeneralGoods is Stripe Tax's generic tangible goods code.
	taxCodeGeneralGoods = "txcd_99999999"
	// taxCodeShipping is Stripe Tax's shipping code.
	taxCodeShipping = "txcd_92010001"
)

// taxLines converts line items into remote tax-line requests, net of the
// discount amounts recorded in the allocation map.
func taxLines(items []domain.LineItem, allocations domain.AllocationMap) []payments.TaxLine {
	lines := make([]payments.TaxLine, 0, len(items))
	for _, item := range items {
		taxable := item.UnitPrice*item.Quantity - allocations.DiscountAmount(item.ID)
		lines = append(lines, payments.TaxLine{
			Amount:    taxable,
			Reference: fmt.Sprintf("%s - %s", item.Title, item.ID),
			TaxCode:   taxCodeGeneralGoods,
		})
	}
	return lines
}

// shippingCost sums the prices of the context's shipping methods.
func shippingCost(methods []domain.ShippingMethod) int64 {
	var total int64
	for _, method := range methods {
		total += method.Price
	}
	return total
}

// customerAddress assembles the tax engine's address shape from a
// shipping address. Missing fields fall back to empty strings and the
// country code is upper-cased.
func customerAddress(addr domain.Address) payments.CustomerAddress {
	return payments.CustomerAddress{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.Province,
		PostalCode: addr.PostalCode,
		Country:    strings.ToUpper(addr.CountryCode),
	}
}
