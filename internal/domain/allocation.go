package domain

import (
	"math"
)

// DiscountAllocation records how much of a line item's price is
// attributed to the active discount. UnitAmount is used later for
// partial-refund math.
type DiscountAllocation struct {
	Amount     int64
	UnitAmount int64
}

// GiftCardAllocation mirrors DiscountAllocation for gift cards. The
// field is declared for map consumers but this engine never populates
// it; a gift-card subsystem would.
type GiftCardAllocation struct {
	Amount     int64
	UnitAmount int64
}

// LineAllocations groups the allocations recorded against one line item.
type LineAllocations struct {
	Discount *DiscountAllocation
	GiftCard *GiftCardAllocation
}

// AllocationMap maps line-item identity to its allocations. It is the
// shared currency wherever taxable amounts are computed.
type AllocationMap map[string]LineAllocations

// DiscountAmount returns the discount allocation for the given item
// identity, or zero when none was recorded.
func (m AllocationMap) DiscountAmount(itemID string) int64 {
	alloc, ok := m[itemID]
	if !ok || alloc.Discount == nil {
		return 0
	}
	return alloc.Discount.Amount
}

// LineDiscountAmount is the allocator's per-item result.
type LineDiscountAmount struct {
	Item                    LineItem
	Amount                  int64
	CustomAdjustmentsAmount int64
}

// AllocationOptions toggles which allocation classes are computed.
type AllocationOptions struct {
	ExcludeGiftCards bool
	ExcludeDiscounts bool
}

// ContextOptions configures calculation-context assembly. All fields
// default to false.
type ContextOptions struct {
	IsReturn         bool
	ExcludeShipping  bool
	ExcludeGiftCards bool
	ExcludeDiscounts bool
}

// CalculationContext is the bundle of cart facts a tax calculation
// consumes. It is assembled fresh per reconciliation pass and never
// persisted.
type CalculationContext struct {
	ShippingAddress *Address
	ShippingMethods []ShippingMethod
	Customer        *Customer
	Region          *Region
	IsReturn        bool
	AllocationMap   AllocationMap
}

// MergeLineItems flattens base items with items contributed by swaps and
// claims: base first, then each swap's additional items in swap order,
// then each claim's additional items in claim order. Nothing is
// deduplicated or re-identified.
func MergeLineItems(items []LineItem, swaps []Swap, claims []Claim) []LineItem {
	total := len(items)
	for _, s := range swaps {
		total += len(s.AdditionalItems)
	}
	for _, c := range claims {
		total += len(c.AdditionalItems)
	}

	merged := make([]LineItem, 0, total)
	merged = append(merged, items...)
	for _, s := range swaps {
		merged = append(merged, s.AdditionalItems...)
	}
	for _, c := range claims {
		merged = append(merged, c.AdditionalItems...)
	}
	return merged
}

// LineDiscountAmounts computes, for every merged item, the amount of the
// active discount's adjustments and the amount of custom adjustments.
// Items with discounts disabled never receive a discount amount even if
// adjustment rows exist; custom adjustments count unconditionally.
func LineDiscountAmounts(merged []LineItem, discount *Discount) []LineDiscountAmount {
	results := make([]LineDiscountAmount, 0, len(merged))
	for _, item := range merged {
		var discountTotal int64
		var customTotal int64
		for _, adj := range item.Adjustments {
			if adj.DiscountID == "" {
				customTotal += adj.Amount
				continue
			}
			if discount != nil && adj.DiscountID == discount.ID {
				discountTotal += adj.Amount
			}
		}
		if !item.AllowDiscounts {
			discountTotal = 0
		}
		results = append(results, LineDiscountAmount{
			Item:                    item,
			Amount:                  discountTotal,
			CustomAdjustmentsAmount: customTotal,
		})
	}
	return results
}

// BuildAllocationMap folds per-item discount amounts into an allocation
// map keyed by item identity. The first non-free-shipping discount is
// the active one. Duplicate identities overwrite (last write wins);
// callers must feed each identity once per calculation. Quantity must be
// positive for every item reaching this function.
func BuildAllocationMap(data CalculationData, opts AllocationOptions) AllocationMap {
	allocations := AllocationMap{}

	if opts.ExcludeDiscounts {
		return allocations
	}

	var active *Discount
	for i := range data.Discounts {
		if data.Discounts[i].Rule.Type != DiscountRuleFreeShipping {
			active = &data.Discounts[i]
			break
		}
	}

	merged := MergeLineItems(data.Items, data.Swaps, data.Claims)
	for _, ld := range LineDiscountAmounts(merged, active) {
		adjustmentTotal := ld.Amount + ld.CustomAdjustmentsAmount
		entry := allocations[ld.Item.ID]
		entry.Discount = &DiscountAllocation{
			Amount:     adjustmentTotal,
			UnitAmount: roundDiv(adjustmentTotal, ld.Item.Quantity),
		}
		allocations[ld.Item.ID] = entry
	}

	return allocations
}

// BuildCalculationContext assembles the calculation context for one
// reconciliation pass. Shipping methods are taken verbatim from the
// input unless excluded; the caller filters canceled methods beforehand.
func BuildCalculationContext(data CalculationData, opts ContextOptions) CalculationContext {
	allocations := BuildAllocationMap(data, AllocationOptions{
		ExcludeGiftCards: opts.ExcludeGiftCards,
		ExcludeDiscounts: opts.ExcludeDiscounts,
	})

	var shippingMethods []ShippingMethod
	if !opts.ExcludeShipping {
		shippingMethods = data.ShippingMethods
	}
	if shippingMethods == nil {
		shippingMethods = []ShippingMethod{}
	}

	return CalculationContext{
		ShippingAddress: data.ShippingAddress,
		ShippingMethods: shippingMethods,
		Customer:        data.Customer,
		Region:          data.Region,
		IsReturn:        opts.IsReturn,
		AllocationMap:   allocations,
	}
}

// roundDiv divides and rounds to the nearest integer minor unit.
func roundDiv(amount, quantity int64) int64 {
	if quantity == 0 {
		return 0
	}
	return int64(math.Round(float64(amount) / float64(quantity)))
}
