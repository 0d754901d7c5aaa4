package service

import (
	"errors"

	"github.com/mmeshcher/weddingcart/internal/coupon"
)

var (
	ErrNoCheckout         = errors.New("no active checkout")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrItemNotFound       = errors.New("cart item not found")
	ErrCheckoutInProgress = errors.New("cart is locked by an active checkout")
	ErrStaleCheckout      = errors.New("checkout changed while the request was in flight")
	ErrFeesResolving      = errors.New("fees are still being resolved")
	ErrWrongStep          = errors.New("operation is not allowed at the current checkout step")
	ErrDetailsRequired    = errors.New("checkout details are required")
	ErrContractsUnsigned  = errors.New("all contracts must be signed")
	ErrPaymentNotReady    = errors.New("payment is not ready to be submitted")
	ErrPaymentInProgress  = errors.New("payment is in progress")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CodeError: промокод или реферальный код отклонён.
type CodeError struct {
	Code   string
	Status coupon.Status
}

func (e *CodeError) Error() string {
	return coupon.Result{Status: e.Status}.Message()
}
