// Package booking ожидает появления бронирований после успешной оплаты.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/model"
)

const (
	// DefaultAttempts: число запросов к хранилищу по умолчанию.
	DefaultAttempts = 3
	// DefaultInterval: пауза между запросами по умолчанию.
	DefaultInterval = 5 * time.Second
)

// ErrNotConfirmed возвращается, если бронирования не появились за отведённое число попыток.
// Оплата к этому моменту уже проведена.
var ErrNotConfirmed = errors.New("failed to confirm booking")

var errNoBookings = errors.New("no bookings yet")

// Store описывает чтение бронирований по идентификаторам.
type Store interface {
	GetBookingsByIDs(ctx context.Context, ids []string) ([]model.Booking, error)
}

// Confirmation: результат успешного ожидания.
type Confirmation struct {
	Bookings         []model.Booking `json:"bookings"`
	RemainingBalance int64           `json:"remaining_balance"`
}

// Poller периодически запрашивает бронирования с фиксированным интервалом.
type Poller struct {
	store    Store
	attempts int
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller создаёт Poller. Неположительные значения заменяются значениями по умолчанию,
// кроме interval == 0, который означает повтор без паузы.
func NewPoller(store Store, attempts int, interval time.Duration, logger *zap.Logger) *Poller {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if interval < 0 {
		interval = DefaultInterval
	}
	return &Poller{
		store:    store,
		attempts: attempts,
		interval: interval,
		logger:   logger,
	}
}

// Poll запрашивает бронирования до первого непустого результата.
// Учитываются только подтверждённые бронирования.
// Пустой результат и ошибка запроса повторяются одинаково.
func (p *Poller) Poll(ctx context.Context, ids []string) (*Confirmation, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no booking ids", ErrNotConfirmed)
	}

	constant := retry.BackoffFunc(func() (time.Duration, bool) {
		return p.interval, false
	})
	backoff := retry.WithMaxRetries(uint64(p.attempts-1), constant)

	var bookings []model.Booking
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := p.store.GetBookingsByIDs(ctx, ids)
		if err != nil {
			p.logger.Warn("booking poll query failed",
				zap.Int("attempt", attempt), zap.Int("maxAttempts", p.attempts), zap.Error(err))
			return retry.RetryableError(err)
		}
		res = confirmedOnly(res)
		if len(res) == 0 {
			p.logger.Info("bookings not materialized yet",
				zap.Int("attempt", attempt), zap.Int("maxAttempts", p.attempts))
			return retry.RetryableError(errNoBookings)
		}
		bookings = res
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotConfirmed, ctxErr)
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrNotConfirmed, attempt, err)
	}

	var remaining int64
	for _, b := range bookings {
		remaining += b.FinalPayment
	}

	return &Confirmation{
		Bookings:         bookings,
		RemainingBalance: remaining,
	}, nil
}

func confirmedOnly(bookings []model.Booking) []model.Booking {
	res := bookings[:0:0]
	for _, b := range bookings {
		if b.Status == model.BookingStatusConfirmed {
			res = append(res, b)
		}
	}
	return res
}
