package payment

import (
	"time"

	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/pricing"
)

// PendingBookings формирует по одному бронированию PENDING на позицию корзины.
// Цены и депозиты берутся из разбивки итогов, поэтому сумма FinalPayment равна
// RemainingBalance.
func PendingBookings(intentID string, req IntentRequest, bookingIDs []string, now time.Time) []model.Booking {
	lines := pricing.Breakdown(req.Items, req.Totals)

	bookings := make([]model.Booking, 0, len(req.Items))
	for i, it := range req.Items {
		bookings = append(bookings, model.Booking{
			ID:              bookingIDs[i],
			UserID:          req.UserID,
			PaymentIntentID: intentID,
			VendorID:        it.Vendor.ID,
			PackageID:       it.Package.ID,
			ServiceType:     it.Package.ServiceType,
			EventDate:       it.EventDate,
			TotalAmount:     lines[i].Price,
			DepositAmount:   lines[i].Deposit,
			FinalPayment:    lines[i].FinalPayment,
			Status:          model.BookingStatusPending,
			CreatedAt:       now,
		})
	}
	return bookings
}
