// Package pricing рассчитывает стоимость корзины: сумму, скидки, депозит и сервисный сбор.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/weddingcart/internal/model"
)

// DefaultServiceFeeCents: сервисный сбор за одну позицию корзины по умолчанию.
const DefaultServiceFeeCents int64 = 150 * 100

// InvalidItemsError возвращается, если в корзине есть позиции, которые нельзя оплатить.
type InvalidItemsError struct {
	IDs []string
}

func (e *InvalidItemsError) Error() string {
	return fmt.Sprintf("invalid cart items: %s", strings.Join(e.IDs, ", "))
}

// Calculate рассчитывает итоги корзины. Функция чистая: результат зависит только от аргументов.
func Calculate(items []model.CartLineItem, discountAmount, referralAmount, perItemFeeCents int64) model.Totals {
	var subtotal int64
	for _, it := range items {
		subtotal += it.Package.LineTotal()
	}

	totalDiscount := max(discountAmount, 0) + max(referralAmount, 0)
	discounted := max(subtotal-totalDiscount, 0)
	deposit := half(discounted)
	serviceFee := int64(len(items)) * perItemFeeCents

	return model.Totals{
		LineItemCount:    len(items),
		Subtotal:         subtotal,
		TotalDiscount:    totalDiscount,
		DiscountedTotal:  discounted,
		DepositAmount:    deposit,
		ServiceFeeTotal:  serviceFee,
		GrandTotal:       deposit + serviceFee,
		RemainingBalance: discounted - deposit,
	}
}

// half округляет v*0.5 до целого, половины округляются вверх.
func half(v int64) int64 {
	return (v + 1) / 2
}

// ValidateItems проверяет, что у каждой позиции есть поставщик, площадка и положительная цена.
func ValidateItems(items []model.CartLineItem) error {
	var bad []string
	for _, it := range items {
		if it.Vendor.ID == "" || it.VenueID() == "" || it.Package.BasePrice <= 0 {
			bad = append(bad, it.ID)
		}
	}
	if len(bad) > 0 {
		return &InvalidItemsError{IDs: bad}
	}
	return nil
}

// PercentOf возвращает round(amount * percent / 100).
func PercentOf(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	v := decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return v.IntPart()
}

// Allocate распределяет total пропорционально весам. Остаток от округления
// достаётся последнему положительному весу, поэтому сумма частей равна total.
func Allocate(total int64, weights []int64) []int64 {
	res := make([]int64, len(weights))
	var sum int64
	last := -1
	for i, w := range weights {
		if w > 0 {
			sum += w
			last = i
		}
	}
	if sum == 0 || total == 0 {
		return res
	}

	var allocated int64
	for i, w := range weights {
		if w <= 0 || i == last {
			continue
		}
		part := decimal.NewFromInt(total).
			Mul(decimal.NewFromInt(w)).
			Div(decimal.NewFromInt(sum)).
			Floor().
			IntPart()
		res[i] = part
		allocated += part
	}
	res[last] = total - allocated
	return res
}

// LineBreakdown: доля одной позиции в итогах корзины.
type LineBreakdown struct {
	Price        int64
	Discount     int64
	Deposit      int64
	FinalPayment int64
}

// Breakdown раскладывает скидку и депозит по позициям так, что суммы
// остатков к оплате совпадают с totals.RemainingBalance.
func Breakdown(items []model.CartLineItem, totals model.Totals) []LineBreakdown {
	prices := make([]int64, len(items))
	for i, it := range items {
		prices[i] = it.Package.LineTotal()
	}

	discounts := Allocate(min(totals.TotalDiscount, totals.Subtotal), prices)

	discounted := make([]int64, len(items))
	for i := range items {
		discounted[i] = prices[i] - discounts[i]
	}
	deposits := Allocate(totals.DepositAmount, discounted)

	res := make([]LineBreakdown, len(items))
	for i := range items {
		res[i] = LineBreakdown{
			Price:        prices[i],
			Discount:     discounts[i],
			Deposit:      deposits[i],
			FinalPayment: discounted[i] - deposits[i],
		}
	}
	return res
}
