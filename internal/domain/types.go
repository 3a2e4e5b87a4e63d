package domain

import (
	"time"
)

// DiscountRuleType enumerates the discount rule kinds recognised by the
// allocation engine.
type DiscountRuleType string

const (
	// DiscountRuleFixed applies a fixed amount off.
	DiscountRuleFixed DiscountRuleType = "fixed"
	// DiscountRulePercentage applies a percentage off.
	DiscountRulePercentage DiscountRuleType = "percentage"
	// DiscountRuleFreeShipping waives shipping and never participates in
	// line-item allocation.
	DiscountRuleFreeShipping DiscountRuleType = "free_shipping"
)

// DiscountRule describes how a discount computes its value.
type DiscountRule struct {
	Type  DiscountRuleType
	Value int64
}

// Discount is a promotion applied to a cart or order.
type Discount struct {
	ID   string
	Code string
	Rule DiscountRule
}

// Adjustment is a monetary delta on a line item. An adjustment with an
// empty DiscountID is a custom adjustment (manual price edit) and always
// reduces the taxable amount regardless of the active discount.
type Adjustment struct {
	ID         string
	ItemID     string
	Amount     int64
	DiscountID string
	Reason     string
}

// LineItem is one priced, quantified entry in a cart or order. Prices
// are minor currency units.
type LineItem struct {
	ID             string
	Title          string
	UnitPrice      int64
	Quantity       int64
	AllowDiscounts bool
	IncludesTax    bool
	Adjustments    []Adjustment
	CartID         string
	OrderID        string
}

// Swap contributes replacement items to an order.
type Swap struct {
	ID              string
	AdditionalItems []LineItem
}

// Claim contributes replacement items raised through a claim flow.
type Claim struct {
	ID              string
	AdditionalItems []LineItem
}

// ShippingMethod is a selected shipping option with its price in minor
// units.
type ShippingMethod struct {
	ID    string
	Name  string
	Price int64
}

// Address carries the fields the tax engine consumes. Shipping addresses
// are authoritative for tax calculation.
type Address struct {
	Line1       string
	Line2       string
	City        string
	Province    string
	PostalCode  string
	CountryCode string
}

// Customer identifies the buyer. StripeID holds the gateway customer
// identity once one has been created; empty means none exists yet.
type Customer struct {
	ID       string
	Email    string
	StripeID string
	Metadata map[string]any
}

// Region scopes currency and tax jurisdiction defaults.
type Region struct {
	ID           string
	Name         string
	CurrencyCode string
}

// Cart aggregates the order state the reconciliation engine reads. The
// engine never mutates a cart; it only proposes gateway mutations.
type Cart struct {
	ID              string
	Email           string
	Items           []LineItem
	Discounts       []Discount
	Swaps           []Swap
	Claims          []Claim
	Customer        *Customer
	Region          *Region
	ShippingAddress *Address
	ShippingMethods []ShippingMethod
	Metadata        map[string]any
	UpdatedAt       time.Time
}

// CalculationData bundles the cart facts consumed when building a
// calculation context.
type CalculationData struct {
	Items           []LineItem
	Discounts       []Discount
	Swaps           []Swap
	Claims          []Claim
	Customer        *Customer
	Region          *Region
	ShippingAddress *Address
	ShippingMethods []ShippingMethod
}

// CalculationData projects the cart into the shape the context builder
// consumes.
func (c Cart) CalculationData() CalculationData {
	return CalculationData{
		Items:           c.Items,
		Discounts:       c.Discounts,
		Swaps:           c.Swaps,
		Claims:          c.Claims,
		Customer:        c.Customer,
		Region:          c.Region,
		ShippingAddress: c.ShippingAddress,
		ShippingMethods: c.ShippingMethods,
	}
}
