package models

// Session holds the server-resolved state for one device: identity metadata,
// the placements the user is eligible for and the payment providers enabled
// for the account. It is replaced wholesale on every successful bootstrap and
// is read-only to everything outside the client.
type Session struct {
	UserID           string      `json:"user_id"`
	Locale           string      `json:"locale,omitempty"`
	Timezone         string      `json:"timezone,omitempty"`
	Platform         string      `json:"platform,omitempty"`
	AppVersion       string      `json:"app_version,omitempty"`
	Placements       []Placement `json:"placements"`
	PaymentProviders []string    `json:"payment_providers,omitempty"`
}

// Placement is a named merchandising slot. Its paywall list is ordered and
// immutable once received; the first paywall is the canonical one.
type Placement struct {
	ID       string    `json:"id"`
	Paywalls []Paywall `json:"paywalls"`
}

// Paywall belongs to exactly one placement and carries an ordered product
// list; index 0 is the default product.
type Paywall struct {
	ID       string    `json:"id"`
	Products []Product `json:"items"`
}

// Product is a purchasable plan. Properties is an open-ended bag of nested
// values used for on-page text substitution, addressed by dotted paths.
type Product struct {
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Property walks the product's property bag along a dotted path such as
// "price.amount". The second return is false when any segment is missing.
func (p *Product) Property(path string) (interface{}, bool) {
	return lookupPath(p.Properties, path)
}

func lookupPath(bag map[string]interface{}, path string) (interface{}, bool) {
	if bag == nil || path == "" {
		return nil, false
	}
	cur := interface{}(bag)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		seg := path[start:i]
		start = i + 1
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
