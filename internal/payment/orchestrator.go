package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/gateway"
	"github.com/mmeshcher/weddingcart/internal/model"
)

// MsgNotCompleted: сообщение для статусов шлюза, отличных от succeeded.
const MsgNotCompleted = "payment was not completed"

// PaymentError: ошибка оплаты, текст которой показывается пользователю.
type PaymentError struct {
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed: %s: %v", e.Message, e.Err)
	}
	return "payment failed: " + e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Gateway описывает операции платёжного шлюза.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*gateway.Intent, error)
	ConfirmCardPayment(ctx context.Context, clientSecret, paymentMethod string, billing gateway.BillingDetails) (*gateway.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*gateway.Intent, error)
}

// Store описывает хранилище подписанных договоров и ожидающих оплаты бронирований.
type Store interface {
	SaveContracts(ctx context.Context, contracts []model.Contract) error
	CreateBookings(ctx context.Context, bookings []model.Booking) error
}

// Orchestrator создаёт намерения платежей, подтверждает оплату и сохраняет договоры.
type Orchestrator struct {
	gateway Gateway
	store   Store
	logger  *zap.Logger
	newID   func() string
	now     func() time.Time
}

// NewOrchestrator создаёт Orchestrator.
func NewOrchestrator(gw Gateway, store Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		gateway: gw,
		store:   store,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// IntentRequest: данные для создания намерения платежа.
type IntentRequest struct {
	UserID   int64
	Items    []model.CartLineItem
	Totals   model.Totals
	Discount *model.Adjustment
	Referral *model.Adjustment
}

// CreateIntent создаёт намерение на сумму GrandTotal. Каждой позиции назначается
// идентификатор будущего бронирования; позиции сохраняются как бронирования PENDING,
// привязанные к намерению, и подтверждаются вебхуком об успешной оплате.
func (o *Orchestrator) CreateIntent(ctx context.Context, req IntentRequest) (*model.PaymentIntent, error) {
	if req.Totals.GrandTotal <= 0 {
		return nil, errors.New("nothing to pay")
	}

	bookingIDs := make([]string, len(req.Items))
	for i := range req.Items {
		bookingIDs[i] = o.newID()
	}

	intent, err := o.gateway.CreateIntent(ctx, req.Totals.GrandTotal, model.Currency, Metadata(req))
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	pending := PendingBookings(intent.ID, req, bookingIDs, o.now())
	if err := o.store.CreateBookings(ctx, pending); err != nil {
		return nil, fmt.Errorf("store pending bookings for intent %s: %w", intent.ID, err)
	}

	return &model.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       req.Totals.GrandTotal,
		Currency:     model.Currency,
		BookingIDs:   bookingIDs,
	}, nil
}

// Metadata формирует метаданные намерения: пользователь, итоги и коды скидок.
// Число ключей не зависит от размера корзины; позиции хранятся в бронированиях.
func Metadata(req IntentRequest) map[string]string {
	md := map[string]string{
		"user_id":           strconv.FormatInt(req.UserID, 10),
		"item_count":        strconv.Itoa(len(req.Items)),
		"subtotal":          strconv.FormatInt(req.Totals.Subtotal, 10),
		"deposit_amount":    strconv.FormatInt(req.Totals.DepositAmount, 10),
		"service_fee":       strconv.FormatInt(req.Totals.ServiceFeeTotal, 10),
		"remaining_balance": strconv.FormatInt(req.Totals.RemainingBalance, 10),
	}
	if req.Discount != nil {
		md["discount_code"] = req.Discount.Code
		md["discount_amount"] = strconv.FormatInt(req.Discount.Amount, 10)
	}
	if req.Referral != nil {
		md["referral_code"] = req.Referral.Code
		md["referral_amount"] = strconv.FormatInt(req.Referral.Amount, 10)
	}
	return md
}

// ConfirmRequest: данные для подтверждения оплаты.
type ConfirmRequest struct {
	IntentID      string
	ClientSecret  string
	PaymentMethod string
	Details       model.CheckoutDetails
}

// Confirm подтверждает оплату. Успехом считается только статус succeeded.
// Если подтверждение завершилось ошибкой, статус намерения перечитывается:
// списание могло пройти, а ответ шлюза потеряться.
func (o *Orchestrator) Confirm(ctx context.Context, req ConfirmRequest) (*gateway.Intent, error) {
	d := req.Details
	billing := gateway.BillingDetails{
		Name:       strings.TrimSpace(d.CoupleName),
		Email:      d.Email,
		Phone:      d.Phone,
		Line1:      d.Address.Line1,
		Line2:      d.Address.Line2,
		City:       d.Address.City,
		State:      d.Address.State,
		PostalCode: d.Address.PostalCode,
		Country:    d.Address.Country,
	}

	intent, err := o.gateway.ConfirmCardPayment(ctx, req.ClientSecret, req.PaymentMethod, billing)
	if err != nil {
		if current := o.succeededIntent(ctx, req.IntentID, err); current != nil {
			return current, nil
		}
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return nil, &PaymentError{Message: apiErr.Message, Err: err}
		}
		return nil, &PaymentError{Message: MsgNotCompleted, Err: err}
	}

	if intent.Status != gateway.StatusSucceeded {
		msg := MsgNotCompleted
		if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
			msg = intent.LastPaymentError.Message
		}
		return nil, &PaymentError{Message: msg}
	}

	return intent, nil
}

// succeededIntent возвращает намерение, если шлюз считает его оплаченным, иначе nil.
func (o *Orchestrator) succeededIntent(ctx context.Context, intentID string, confirmErr error) *gateway.Intent {
	if intentID == "" {
		return nil
	}
	intent, err := o.gateway.GetIntent(ctx, intentID)
	if err != nil {
		o.logger.Warn("intent status lookup failed after confirm error",
			zap.String("intentID", intentID), zap.NamedError("confirmError", confirmErr), zap.Error(err))
		return nil
	}
	if intent.Status != gateway.StatusSucceeded {
		return nil
	}
	o.logger.Warn("confirm returned an error but the intent is paid",
		zap.String("intentID", intentID), zap.Error(confirmErr))
	return intent
}

// SaveContracts сохраняет подписанные договоры. Ошибка только логируется:
// успешная оплата не откатывается из-за договоров.
func (o *Orchestrator) SaveContracts(ctx context.Context, userID int64, intentID string, signatures []model.ContractSignature) {
	if len(signatures) == 0 {
		return
	}

	contracts := make([]model.Contract, 0, len(signatures))
	for _, s := range signatures {
		contracts = append(contracts, model.Contract{
			UserID:            userID,
			PaymentIntentID:   intentID,
			ContractSignature: s,
		})
	}

	if err := o.store.SaveContracts(ctx, contracts); err != nil {
		o.logger.Error("save contracts failed after successful payment",
			zap.Error(err),
			zap.Int64("userID", userID),
			zap.String("intentID", intentID),
			zap.Int("contracts", len(contracts)),
		)
	}
}
