package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/gateway"
)

// MaterializeBookings подтверждает бронирования, созданные вместе с намерением,
// по событию об успешной оплате. Повторная доставка события ничего не меняет.
func (s *Service) MaterializeBookings(ctx context.Context, event *gateway.Event) error {
	if event.Type != gateway.EventPaymentSucceeded {
		s.logger.Debug("ignoring payment event", zap.String("eventID", event.ID), zap.String("type", event.Type))
		return nil
	}

	intent := event.Data.Object
	if intent.ID == "" {
		return fmt.Errorf("payment event %s has no intent id", event.ID)
	}

	confirmed, err := s.repo.ConfirmBookings(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("confirm bookings of intent %s: %w", intent.ID, err)
	}
	if confirmed == 0 {
		s.logger.Info("no pending bookings for paid intent",
			zap.String("eventID", event.ID), zap.String("intentID", intent.ID))
		return nil
	}

	s.logger.Info("bookings confirmed",
		zap.String("intentID", intent.ID), zap.Int64("bookings", confirmed))
	return nil
}
