package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type vendorSlice struct {
	VendorID uuid.UUID
	Lines    []models.CartItem
}

// splitByVendor partitions cart lines by vendor, in the order each vendor
// first appears in the cart.
func splitByVendor(lines []models.CartItem) []vendorSlice {
	index := make(map[uuid.UUID]int)
	var out []vendorSlice
	for _, line := range lines {
		i, ok := index[line.VendorID]
		if !ok {
			i = len(out)
			index[line.VendorID] = i
			out = append(out, vendorSlice{VendorID: line.VendorID})
		}
		out[i].Lines = append(out[i].Lines, line)
	}
	return out
}

func reserveLines(lines []models.CartItem) []inventory.Line {
	out := make([]inventory.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, inventory.Line{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return out
}

// buildGroup lays out the checkout group and one pending order per vendor
// slice. Each order is billed over its own lines only.
func buildGroup(code string, owner uuid.UUID, c *models.Cart, slices []vendorSlice, input Input) *models.CheckoutGroup {
	bill, billBefore := cart.Totals(c.Items)
	group := &models.CheckoutGroup{
		Code:          code,
		OwnerID:       owner,
		PaymentMethod: input.PaymentMethod,
		ContactPhone:  input.ContactPhone,
		Address:       input.Address,
		Bill:          bill,
		BillBefore:    billBefore,
		VendorIDs:     make(dbtypes.UUIDArray, 0, len(slices)),
		Orders:        make([]models.Order, 0, len(slices)),
	}
	for i, slice := range slices {
		orderBill, orderBillBefore := cart.Totals(slice.Lines)
		group.VendorIDs = append(group.VendorIDs, slice.VendorID)
		group.Orders = append(group.Orders, models.Order{
			Code:           OrderCode(code, i+1),
			VendorIndex:    i + 1,
			OwnerID:        owner,
			VendorID:       slice.VendorID,
			Status:         enums.OrderStatusPending,
			PaymentMethod:  input.PaymentMethod,
			ContactPhone:   input.ContactPhone,
			Address:        input.Address,
			Bill:           orderBill,
			BillBefore:     orderBillBefore,
			AppliedCoupons: couponsUsed(c.AppliedCoupons, slice.Lines),
			Items:          orderLines(slice.Lines),
		})
	}
	return group
}

// couponsUsed keeps the cart's coupon codes that discount at least one of lines.
func couponsUsed(applied dbtypes.TextArray, lines []models.CartItem) dbtypes.TextArray {
	out := dbtypes.TextArray{}
	for _, code := range applied {
		for _, line := range lines {
			if line.Discounts.Has(code) {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

func orderLines(lines []models.CartItem) []models.OrderLineItem {
	out := make([]models.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, models.OrderLineItem{
			ItemID:     line.ItemID,
			Name:       line.Name,
			Price:      line.Price,
			PriceAfter: line.PriceAfter,
			Quantity:   line.Quantity,
			Position:   line.Position,
		})
	}
	return out
}

