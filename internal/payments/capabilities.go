package payments

// Provider keys registered with the host checkout system. They differ
// only in the capability values below; there is one reconciler.
const (
	ProviderKeyStripe     = "stripe"
	ProviderKeyBancontact = "stripe-bancontact"
	ProviderKeyBlik       = "stripe-blik"
	ProviderKeyGiropay    = "stripe-giropay"
	ProviderKeyIdeal      = "stripe-ideal"
	ProviderKeyPrzelewy24 = "stripe-przelewy24"
)

// IntentCapabilities parameterises intent creation per provider key:
// which payment method types are offered and how capture behaves. Zero
// values mean the gateway default.
type IntentCapabilities struct {
	PaymentMethodTypes []string
	CaptureMethod      string
	SetupFutureUsage   string
}

var providerCapabilities = map[string]IntentCapabilities{
	ProviderKeyStripe:     {},
	ProviderKeyBancontact: {PaymentMethodTypes: []string{"bancontact"}, CaptureMethod: "automatic"},
	ProviderKeyBlik:       {PaymentMethodTypes: []string{"blik"}, CaptureMethod: "automatic"},
	ProviderKeyGiropay:    {PaymentMethodTypes: []string{"giropay"}, CaptureMethod: "automatic"},
	ProviderKeyIdeal:      {PaymentMethodTypes: []string{"ideal"}, CaptureMethod: "automatic"},
	ProviderKeyPrzelewy24: {PaymentMethodTypes: []string{"p24"}, CaptureMethod: "automatic"},
}

// CapabilitiesFor returns the capability values for a provider key.
// Unknown keys get the plain card capabilities.
func CapabilitiesFor(key string) IntentCapabilities {
	caps, ok := providerCapabilities[key]
	if !ok {
		return IntentCapabilities{}
	}
	out := caps
	if len(caps.PaymentMethodTypes) > 0 {
		out.PaymentMethodTypes = append([]string(nil), caps.PaymentMethodTypes...)
	}
	return out
}
