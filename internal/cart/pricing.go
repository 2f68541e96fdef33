package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Reprice folds a line's discounts over its base price, rounding after each
// step. A line without discounts has no PriceAfter.
func Reprice(line *models.CartItem) {
	if len(line.Discounts) == 0 {
		line.PriceAfter = nil
		return
	}
	price := line.Price
	for _, d := range line.Discounts {
		price = money.ApplyPercentOff(price, d.Percent)
	}
	line.PriceAfter = &price
}

// Totals returns bill (effective prices) and billBefore (base prices) for lines.
func Totals(lines []models.CartItem) (bill, billBefore decimal.Decimal) {
	bill, billBefore = decimal.Zero, decimal.Zero
	for _, line := range lines {
		billBefore = billBefore.Add(money.LineTotal(line.Price, line.Quantity))
		bill = bill.Add(money.LineTotal(line.EffectivePrice(), line.Quantity))
	}
	return money.Round(bill), money.Round(billBefore)
}

// Recompute rebuilds the cart totals from its current lines.
func Recompute(c *models.Cart) {
	c.Bill, c.BillBefore = Totals(c.Items)
}

// applyDiscount appends the coupon to every covered line and reports how many
// lines it touched.
func applyDiscount(c *models.Cart, coupon models.Coupon) int {
	touched := 0
	for i := range c.Items {
		line := &c.Items[i]
		if !coupon.Covers(line.VendorID) || line.Discounts.Has(coupon.Code) {
			continue
		}
		line.Discounts = append(line.Discounts, types.AppliedDiscount{Code: coupon.Code, Percent: coupon.Percent})
		Reprice(line)
		touched++
	}
	return touched
}

// removeDiscount drops code from every line and refolds the rest.
func removeDiscount(c *models.Cart, code string) {
	for i := range c.Items {
		line := &c.Items[i]
		if !line.Discounts.Has(code) {
			continue
		}
		line.Discounts = line.Discounts.Without(code)
		Reprice(line)
	}
}
