package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/weddingcart/internal/model"
)

func item(id string, base, premium, travel int64) model.CartLineItem {
	return model.CartLineItem{
		ID: id,
		Package: model.Package{
			ID:            "pkg-" + id,
			ServiceType:   "Photography",
			BasePrice:     base,
			PremiumAmount: premium,
			TravelFee:     travel,
		},
		Vendor: model.Vendor{ID: "vendor-" + id},
		Venue:  &model.Venue{ID: "venue-1"},
	}
}

func TestCalculate(t *testing.T) {
	type want struct {
		subtotal   int64
		discounted int64
		deposit    int64
		serviceFee int64
		grandTotal int64
		remaining  int64
	}

	tests := []struct {
		name     string
		items    []model.CartLineItem
		discount int64
		referral int64
		fee      int64
		want     want
	}{
		{
			name: "empty cart",
			fee:  DefaultServiceFeeCents,
			want: want{},
		},
		{
			name:  "single item without discount",
			items: []model.CartLineItem{item("1", 250000, 0, 0)},
			fee:   DefaultServiceFeeCents,
			want: want{
				subtotal:   250000,
				discounted: 250000,
				deposit:    125000,
				serviceFee: 15000,
				grandTotal: 140000,
				remaining:  125000,
			},
		},
		{
			name:     "ten percent coupon",
			items:    []model.CartLineItem{item("1", 250000, 0, 0)},
			discount: 25000,
			fee:      DefaultServiceFeeCents,
			want: want{
				subtotal:   250000,
				discounted: 225000,
				deposit:    112500,
				serviceFee: 15000,
				grandTotal: 127500,
				remaining:  112500,
			},
		},
		{
			name:     "discount exceeds subtotal",
			items:    []model.CartLineItem{item("1", 10000, 0, 0)},
			discount: 8000,
			referral: 5000,
			fee:      5000,
			want: want{
				subtotal:   10000,
				serviceFee: 5000,
				grandTotal: 5000,
			},
		},
		{
			name: "premiums and travel fees are included",
			items: []model.CartLineItem{
				item("1", 100000, 5000, 2500),
				item("2", 50001, 0, 0),
			},
			referral: 2000,
			fee:      DefaultServiceFeeCents,
			want: want{
				subtotal:   157501,
				discounted: 155501,
				deposit:    77751,
				serviceFee: 30000,
				grandTotal: 107751,
				remaining:  77750,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.items, tt.discount, tt.referral, tt.fee)

			assert.Equal(t, tt.want.subtotal, got.Subtotal)
			assert.Equal(t, tt.want.discounted, got.DiscountedTotal)
			assert.Equal(t, tt.want.deposit, got.DepositAmount)
			assert.Equal(t, tt.want.serviceFee, got.ServiceFeeTotal)
			assert.Equal(t, tt.want.grandTotal, got.GrandTotal)
			assert.Equal(t, tt.want.remaining, got.RemainingBalance)
			assert.Equal(t, len(tt.items), got.LineItemCount)
		})
	}
}

func TestCalculate_RemoveDiscountRestoresTotals(t *testing.T) {
	items := []model.CartLineItem{item("1", 250000, 1200, 3400), item("2", 99999, 0, 0)}

	before := Calculate(items, 0, 0, DefaultServiceFeeCents)
	discounted := Calculate(items, PercentOf(before.Subtotal, 10), 0, DefaultServiceFeeCents)
	after := Calculate(items, 0, 0, DefaultServiceFeeCents)

	assert.NotEqual(t, before, discounted)
	assert.Equal(t, before, after)
}

func TestValidateItems(t *testing.T) {
	noVenue := item("2", 1000, 0, 0)
	noVenue.Venue = nil

	noVendor := item("3", 1000, 0, 0)
	noVendor.Vendor.ID = ""

	err := ValidateItems([]model.CartLineItem{
		item("1", 1000, 0, 0),
		noVenue,
		noVendor,
		item("4", 0, 0, 0),
	})

	var invalid *InvalidItemsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"2", "3", "4"}, invalid.IDs)

	assert.NoError(t, ValidateItems([]model.CartLineItem{item("1", 1, 0, 0)}))
	assert.NoError(t, ValidateItems(nil))
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, int64(25000), PercentOf(250000, 10))
	assert.Equal(t, int64(13), PercentOf(125, 10))
	assert.Equal(t, int64(1875), PercentOf(12500, 15))
	assert.Equal(t, int64(156), PercentOf(1250, 12.5))
	assert.Equal(t, int64(0), PercentOf(0, 10))
	assert.Equal(t, int64(0), PercentOf(1000, 0))
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, []int64{33, 33, 34}, Allocate(100, []int64{1, 1, 1}))
	assert.Equal(t, []int64{75, 0, 25}, Allocate(100, []int64{3, 0, 1}))
	assert.Equal(t, []int64{0, 0}, Allocate(100, []int64{0, 0}))
	assert.Equal(t, []int64{0, 0}, Allocate(0, []int64{5, 5}))
}

func TestBreakdown_SumsMatchTotals(t *testing.T) {
	items := []model.CartLineItem{
		item("1", 250000, 1500, 0),
		item("2", 120001, 0, 4999),
		item("3", 33333, 0, 0),
	}
	totals := Calculate(items, PercentOf(410834, 10), 5000, DefaultServiceFeeCents)

	lines := Breakdown(items, totals)
	require.Len(t, lines, 3)

	var discount, deposit, final int64
	for _, l := range lines {
		discount += l.Discount
		deposit += l.Deposit
		final += l.FinalPayment
		assert.GreaterOrEqual(t, l.FinalPayment, int64(0))
	}

	assert.Equal(t, totals.TotalDiscount, discount)
	assert.Equal(t, totals.DepositAmount, deposit)
	assert.Equal(t, totals.RemainingBalance, final)
}
