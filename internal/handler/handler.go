// Package handler содержит HTTP-обработчики API сервиса оформления заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/booking"
	"github.com/mmeshcher/weddingcart/internal/contract"
	"github.com/mmeshcher/weddingcart/internal/coupon"
	"github.com/mmeshcher/weddingcart/internal/gateway"
	"github.com/mmeshcher/weddingcart/internal/middleware"
	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/payment"
	"github.com/mmeshcher/weddingcart/internal/pricing"
	"github.com/mmeshcher/weddingcart/internal/repository"
	"github.com/mmeshcher/weddingcart/internal/service"
	"github.com/mmeshcher/weddingcart/internal/validation"
)

const msgBookingNotConfirmed = "failed to confirm booking, please contact support"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)

	GetCart(ctx context.Context, userID int64) (*model.Cart, error)
	AddCartItem(ctx context.Context, userID int64, req service.AddItemRequest) (*model.Cart, error)
	RemoveCartItem(ctx context.Context, userID int64, itemID string) (*model.Cart, error)
	ClearCart(ctx context.Context, userID int64) error

	StartCheckout(ctx context.Context, userID int64) (*service.View, error)
	GetCheckout(ctx context.Context, userID int64) (*service.View, error)
	AbandonCheckout(ctx context.Context, userID int64) error
	ApplyDiscount(ctx context.Context, userID int64, code string) (*service.View, error)
	RemoveDiscount(ctx context.Context, userID int64) (*service.View, error)
	ApplyReferral(ctx context.Context, userID int64, code string) (*service.View, error)
	RemoveReferral(ctx context.Context, userID int64) (*service.View, error)
	UpdateDetails(ctx context.Context, userID int64, details model.CheckoutDetails) (*service.View, error)
	BeginContracts(ctx context.Context, userID int64) (*service.View, error)
	DraftSignature(ctx context.Context, userID int64, serviceType, name string) (*service.View, error)
	ConfirmSignature(ctx context.Context, userID int64, serviceType string) (*service.View, error)
	UnsetSignature(ctx context.Context, userID int64, serviceType string) (*service.View, error)
	CreatePaymentIntent(ctx context.Context, userID int64) (*model.PaymentIntent, error)
	UpdateCard(ctx context.Context, userID int64, ready, complete bool) (*service.View, error)
	AcceptTerms(ctx context.Context, userID int64, accepted bool) (*service.View, error)
	ConfirmPayment(ctx context.Context, userID int64, paymentMethod string) (*booking.Confirmation, error)

	MaterializeBookings(ctx context.Context, event *gateway.Event) error
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	webhookSecret  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// rateLimiter может быть nil: тогда частота запросов не ограничивается.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, webhookSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		rateLimiter:    rateLimiter,
		webhookSecret:  webhookSecret,
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return userID, ok
}

// writeServiceError отображает ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var (
		fieldErrs validation.Errors
		invalid   *pricing.InvalidItemsError
		codeErr   *service.CodeError
		payErr    *payment.PaymentError
	)

	switch {
	case errors.As(err, &fieldErrs):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fieldErrs})
	case errors.As(err, &invalid):
		fields := make(map[string]string, len(invalid.IDs))
		for _, id := range invalid.IDs {
			fields["items."+id] = "vendor, venue and a positive price are required"
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "some cart items cannot be booked", Fields: fields})
	case errors.As(err, &codeErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  codeErr.Error(),
			Fields: map[string]string{"code": string(codeErr.Status)},
		})
	case errors.Is(err, contract.ErrEmptySignature):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Fields: map[string]string{"name": "is required"}})

	case errors.Is(err, service.ErrNoCheckout),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, contract.ErrUnknownServiceType),
		errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, service.ErrStaleCheckout),
		errors.Is(err, service.ErrFeesResolving),
		errors.Is(err, service.ErrWrongStep),
		errors.Is(err, service.ErrDetailsRequired),
		errors.Is(err, service.ErrContractsUnsigned),
		errors.Is(err, service.ErrPaymentNotReady),
		errors.Is(err, service.ErrPaymentInProgress),
		errors.Is(err, service.ErrCheckoutInProgress),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, contract.ErrAlreadySigned),
		errors.Is(err, contract.ErrNotStarted):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, coupon.ErrValidationUnavailable):
		writeError(w, http.StatusServiceUnavailable, "code validation is temporarily unavailable, please try again")
	case errors.As(err, &payErr):
		writeError(w, http.StatusPaymentRequired, payErr.Message)
	case errors.Is(err, booking.ErrNotConfirmed):
		h.logger.Error("booking confirmation failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgBookingNotConfirmed)
	case errors.Is(err, gateway.ErrNotConfigured):
		h.logger.Error("payment gateway not configured", zap.String("op", op))
		writeError(w, http.StatusServiceUnavailable, "payments are temporarily unavailable")
	case errors.Is(err, context.Canceled):
		h.logger.Debug("request cancelled", zap.String("op", op))
	default:
		h.logger.Error(op+" error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
