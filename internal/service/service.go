// Package service реализует бизнес-логику оформления свадебных заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/weddingcart/internal/booking"
	"github.com/mmeshcher/weddingcart/internal/contract"
	"github.com/mmeshcher/weddingcart/internal/coupon"
	"github.com/mmeshcher/weddingcart/internal/fees"
	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/payment"
	"github.com/mmeshcher/weddingcart/internal/pricing"
	"github.com/mmeshcher/weddingcart/internal/repository"
	"github.com/mmeshcher/weddingcart/internal/validation"
)

const minPasswordLength = 8

// Repository описывает контракт доступа к данным, используемый сервисом напрямую.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetPackage(ctx context.Context, packageID string) (*model.Package, *model.Vendor, error)
	GetVenue(ctx context.Context, venueID string) (*model.Venue, error)
	ConfirmBookings(ctx context.Context, intentID string) (int64, error)
}

// CartStore описывает хранилище корзин.
type CartStore interface {
	Get(ctx context.Context, userID int64) (*model.Cart, error)
	Save(ctx context.Context, cart *model.Cart) error
	Delete(ctx context.Context, userID int64) error
}

// Deps: компоненты, из которых собирается сервис.
type Deps struct {
	Repo      Repository
	Carts     CartStore
	Fees      *fees.Resolver
	Codes     *coupon.Validator
	Templates *contract.Renderer
	Payments  *payment.Orchestrator
	Bookings  *booking.Poller

	ServiceFeeCents int64
	Logger          *zap.Logger
	Now             func() time.Time
}

// Service содержит бизнес-логику корзины, оформления и оплаты.
type Service struct {
	repo      Repository
	carts     CartStore
	fees      *fees.Resolver
	codes     *coupon.Validator
	templates *contract.Renderer
	payments  *payment.Orchestrator
	bookings  *booking.Poller

	serviceFee int64
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	sessions  map[int64]*session
	cartLocks map[int64]*sync.Mutex
}

// NewService создаёт сервис из готовых компонентов.
func NewService(d Deps) *Service {
	if d.ServiceFeeCents <= 0 {
		d.ServiceFeeCents = pricing.DefaultServiceFeeCents
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		repo:       d.Repo,
		carts:      d.Carts,
		fees:       d.Fees,
		codes:      d.Codes,
		templates:  d.Templates,
		payments:   d.Payments,
		bookings:   d.Bookings,
		serviceFee: d.ServiceFeeCents,
		logger:     d.Logger,
		now:        d.Now,
		sessions:   make(map[int64]*session),
		cartLocks:  make(map[int64]*sync.Mutex),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	errs := validation.Errors{}
	if !validation.IsValidEmail(email) {
		errs["email"] = "is not a valid email address"
	}
	if len(password) < minPasswordLength {
		errs["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if len(errs) > 0 {
		return 0, errs
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, email, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}
