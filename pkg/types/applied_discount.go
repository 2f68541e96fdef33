package types

// AppliedDiscount records one coupon folded into a cart line's price.
type AppliedDiscount struct {
	Code    string `json:"code"`
	Percent int    `json:"percent"`
}

// AppliedDiscounts is ordered by application time.
type AppliedDiscounts []AppliedDiscount

func (d AppliedDiscounts) Has(code string) bool {
	for _, entry := range d {
		if entry.Code == code {
			return true
		}
	}
	return false
}

// Without returns a copy with the given code removed, preserving order.
func (d AppliedDiscounts) Without(code string) AppliedDiscounts {
	out := make(AppliedDiscounts, 0, len(d))
	for _, entry := range d {
		if entry.Code != code {
			out = append(out, entry)
		}
	}
	return out
}
