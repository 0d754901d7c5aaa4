// Package coupon проверяет промокоды и реферальные коды и рассчитывает размер скидки.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/pricing"
	"github.com/mmeshcher/weddingcart/internal/repository"
)

// ErrValidationUnavailable возвращается, если код не удалось проверить из-за недоступности хранилища.
var ErrValidationUnavailable = errors.New("code validation is temporarily unavailable")

// Status: результат проверки кода.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusExpired Status = "expired"
)

// Result описывает результат проверки. Adjustment заполнен только для StatusValid.
type Result struct {
	Status     Status
	Adjustment *model.Adjustment
}

// Message возвращает текст для пользователя.
func (r Result) Message() string {
	switch r.Status {
	case StatusValid:
		return "code applied"
	case StatusExpired:
		return "this code has expired"
	default:
		return "invalid code"
	}
}

// Store описывает хранилище промокодов и реферальных кодов.
type Store interface {
	GetCoupon(ctx context.Context, code string) (*model.Coupon, error)
	GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error)
}

// Validator проверяет коды скидок.
type Validator struct {
	store Store
	now   func() time.Time
}

// NewValidator создаёт Validator. Если now равен nil, используется time.Now.
func NewValidator(store Store, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{store: store, now: now}
}

// Normalize приводит код к каноническому виду.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateDiscount проверяет промокод и рассчитывает скидку от subtotal.
func (v *Validator) ValidateDiscount(ctx context.Context, code string, subtotal int64) (Result, error) {
	code = Normalize(code)
	if code == "" {
		return Result{Status: StatusInvalid}, nil
	}

	c, err := v.store.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{Status: StatusInvalid}, nil
		}
		return Result{}, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
	}

	if v.expired(c.ExpiresAt) {
		return Result{Status: StatusExpired}, nil
	}

	adj := &model.Adjustment{
		Code:   code,
		Source: model.SourceDiscount,
		Kind:   model.AdjustmentFixed,
	}
	switch {
	case c.DiscountPercent > 0:
		adj.Kind = model.AdjustmentPercentage
		adj.Magnitude = c.DiscountPercent
		adj.Amount = pricing.PercentOf(subtotal, c.DiscountPercent)
	case c.DiscountAmount > 0:
		adj.Magnitude = float64(c.DiscountAmount)
		adj.Amount = c.DiscountAmount
	}

	return Result{Status: StatusValid, Adjustment: adj}, nil
}

// ValidateReferral проверяет реферальный код поставщика. Скидка фиксированная и не зависит от суммы.
func (v *Validator) ValidateReferral(ctx context.Context, code string) (Result, error) {
	code = Normalize(code)
	if code == "" {
		return Result{Status: StatusInvalid}, nil
	}

	rc, err := v.store.GetReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{Status: StatusInvalid}, nil
		}
		return Result{}, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
	}

	if v.expired(rc.ExpiresAt) {
		return Result{Status: StatusExpired}, nil
	}

	amount := max(rc.DiscountAmount, 0)
	return Result{
		Status: StatusValid,
		Adjustment: &model.Adjustment{
			Code:             code,
			Source:           model.SourceReferral,
			Kind:             model.AdjustmentFixed,
			Magnitude:        float64(amount),
			Amount:           amount,
			SourceVendorName: rc.VendorName,
		},
	}, nil
}

func (v *Validator) expired(expiresAt *time.Time) bool {
	return expiresAt != nil && expiresAt.Before(v.now())
}
