package payments

// Status enumerates the canonical payment states consumed by the host
// checkout system.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or
	// gateway confirmation.
	StatusPending Status = "pending"
	// StatusRequiresMore indicates the customer must complete an extra
	// step (e.g. 3DS challenge).
	StatusRequiresMore Status = "requires_more"
	// StatusCanceled indicates the intent was canceled.
	StatusCanceled Status = "canceled"
	// StatusAuthorized indicates funds are secured (captured or awaiting
	// capture).
	StatusAuthorized Status = "authorized"
)

// TranslateStatus maps a gateway intent lifecycle state to the canonical
// status. Unknown values map to pending; the mapping is total and never
// fails.
func TranslateStatus(gatewayStatus string) Status {
	switch gatewayStatus {
	case "requires_payment_method", "requires_confirmation", "processing":
		return StatusPending
	case "requires_action":
		return StatusRequiresMore
	case "canceled":
		return StatusCanceled
	case "requires_capture", "succeeded":
		return StatusAuthorized
	default:
		return StatusPending
	}
}
