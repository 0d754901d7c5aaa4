package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/validation"
)

// AddItemRequest: запрос на добавление пакета в корзину. Цены берутся из хранилища.
type AddItemRequest struct {
	PackageID      string `json:"package_id"`
	VenueID        string `json:"venue_id,omitempty"`
	EventDate      string `json:"event_date,omitempty"`
	EventStartTime string `json:"event_start_time,omitempty"`
	EventEndTime   string `json:"event_end_time,omitempty"`
}

// GetCart возвращает корзину пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64) (*model.Cart, error) {
	return s.carts.Get(ctx, userID)
}

// AddCartItem добавляет пакет поставщика в корзину.
func (s *Service) AddCartItem(ctx context.Context, userID int64, req AddItemRequest) (*model.Cart, error) {
	if req.PackageID == "" {
		return nil, validation.Errors{"package_id": "is required"}
	}
	if req.EventDate != "" {
		if err := validation.ValidateEventDate(req.EventDate, s.now()); err != nil {
			return nil, validation.Errors{"event_date": err.Error()}
		}
	}

	unlock, err := s.lockCart(userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pkg, vendor, err := s.repo.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, fmt.Errorf("get package %s: %w", req.PackageID, err)
	}

	item := model.CartLineItem{
		ID:             uuid.NewString(),
		Package:        *pkg,
		Vendor:         *vendor,
		EventDate:      req.EventDate,
		EventStartTime: req.EventStartTime,
		EventEndTime:   req.EventEndTime,
	}
	if req.VenueID != "" {
		venue, err := s.repo.GetVenue(ctx, req.VenueID)
		if err != nil {
			return nil, fmt.Errorf("get venue %s: %w", req.VenueID, err)
		}
		item.Venue = venue
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Items = append(cart.Items, item)
	cart.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveCartItem удаляет позицию из корзины.
func (s *Service) RemoveCartItem(ctx context.Context, userID int64, itemID string) (*model.Cart, error) {
	unlock, err := s.lockCart(userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, it := range cart.Items {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ClearCart удаляет корзину целиком.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	unlock, err := s.lockCart(userID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.carts.Delete(ctx, userID)
}

// lockCart сериализует изменения корзины пользователя. Пока идёт оформление,
// корзина принадлежит ему и не изменяется.
func (s *Service) lockCart(userID int64) (func(), error) {
	l := s.cartLock(userID)
	l.Lock()

	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok && sess.active() {
		l.Unlock()
		return nil, ErrCheckoutInProgress
	}
	return l.Unlock, nil
}

func (s *Service) cartLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.cartLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.cartLocks[userID] = l
	}
	return l
}
