// Package fees подставляет в позиции корзины надбавки поставщиков и выездные сборы.
package fees

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/repository"
)

const resolveConcurrency = 4

// Store описывает источник данных о надбавках и выездных сборах.
type Store interface {
	GetVendorPremium(ctx context.Context, vendorID string) (int64, error)
	GetVenueServiceArea(ctx context.Context, venueID string) (string, error)
	GetTravelFee(ctx context.Context, vendorID, serviceAreaID string) (int64, error)
}

// Resolver рассчитывает сборы для позиций корзины.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver создаёт Resolver.
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve возвращает копию позиций с заполненными PremiumAmount и TravelFee.
// Исходный срез не изменяется. Ошибки поиска не прерывают расчёт: сбор считается нулевым.
// Ошибка возвращается только при отмене контекста.
func (r *Resolver) Resolve(ctx context.Context, items []model.CartLineItem) ([]model.CartLineItem, error) {
	out := make([]model.CartLineItem, len(items))
	copy(out, items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i := range out {
		if out[i].Vendor.ID == "" || out[i].VenueID() == "" {
			continue
		}
		if out[i].Venue != nil {
			v := *out[i].Venue
			out[i].Venue = &v
		}
		g.Go(func() error {
			out[i].Package.PremiumAmount = r.premium(gctx, out[i].Vendor.ID)
			out[i].Package.TravelFee = r.travelFee(gctx, out[i].Vendor.ID, out[i].VenueID())
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve fees: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve fees: %w", err)
	}

	return out, nil
}

func (r *Resolver) premium(ctx context.Context, vendorID string) int64 {
	amount, err := r.store.GetVendorPremium(ctx, vendorID)
	if err != nil {
		r.lookupFailed(err, "vendor premium", zap.String("vendorID", vendorID))
		return 0
	}
	return max(amount, 0)
}

func (r *Resolver) travelFee(ctx context.Context, vendorID, venueID string) int64 {
	areaID, err := r.store.GetVenueServiceArea(ctx, venueID)
	if err != nil {
		r.lookupFailed(err, "venue service area", zap.String("venueID", venueID))
		return 0
	}
	if areaID == "" {
		return 0
	}

	fee, err := r.store.GetTravelFee(ctx, vendorID, areaID)
	if err != nil {
		r.lookupFailed(err, "travel fee", zap.String("vendorID", vendorID), zap.String("serviceAreaID", areaID))
		return 0
	}
	return max(fee, 0)
}

func (r *Resolver) lookupFailed(err error, what string, fields ...zap.Field) {
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	fields = append(fields, zap.Error(err))
	r.logger.Warn(what+" lookup failed, falling back to zero", fields...)
}
