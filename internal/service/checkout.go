package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/booking"
	"github.com/mmeshcher/weddingcart/internal/coupon"
	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/payment"
	"github.com/mmeshcher/weddingcart/internal/pricing"
	"github.com/mmeshcher/weddingcart/internal/validation"
)

func (s *Service) session(userID int64) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoCheckout
	}
	return sess, nil
}

// resume проверяет после внешнего вызова, что оформление не изменилось. Вызывается под sess.mu.
func (s *Service) resume(sess *session, gen uint64, op string) error {
	if sess.stale(gen) {
		s.logger.Debug("discarding stale checkout result",
			zap.Int64("userID", sess.userID), zap.String("op", op),
			zap.Uint64("generation", gen), zap.Uint64("current", sess.generation))
		return ErrStaleCheckout
	}
	return nil
}

// StartCheckout начинает оформление по текущей корзине и рассчитывает сборы.
// Повторный вызов перезапускает оформление, сохраняя данные пары и коды скидок.
func (s *Service) StartCheckout(ctx context.Context, userID int64) (*View, error) {
	l := s.cartLock(userID)
	l.Lock()

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		l.Unlock()
		return nil, err
	}
	if len(cart.Items) == 0 {
		l.Unlock()
		return nil, ErrEmptyCart
	}

	sess := newSession(userID)
	sess.resolving = true
	sess.items = cart.Items

	s.mu.Lock()
	if prev, ok := s.sessions[userID]; ok {
		prev.mu.Lock()
		if prev.step != StepConfirmed {
			if err := prev.mutable(); errors.Is(err, ErrPaymentInProgress) {
				prev.mu.Unlock()
				s.mu.Unlock()
				l.Unlock()
				return nil, err
			}
			sess.discount = prev.discount
			sess.referral = prev.referral
			sess.details = prev.details
			sess.hasDetails = prev.hasDetails
			if sess.hasDetails {
				sess.step = StepContracts
			}
		}
		prev.invalidate()
		sess.generation = prev.generation + 1
		prev.mu.Unlock()
	}
	s.sessions[userID] = sess
	gen := sess.generation
	discountCode := ""
	if sess.discount != nil {
		discountCode = sess.discount.Code
	}
	s.mu.Unlock()
	l.Unlock()

	resolved, err := s.fees.Resolve(ctx, cart.Items)
	if err != nil {
		s.dropSession(sess, gen)
		return nil, err
	}

	var discount *model.Adjustment
	if discountCode != "" {
		subtotal := pricing.Calculate(resolved, 0, 0, 0).Subtotal
		res, err := s.codes.ValidateDiscount(ctx, discountCode, subtotal)
		switch {
		case err != nil:
			s.logger.Warn("discount revalidation failed, dropping code",
				zap.Int64("userID", userID), zap.String("code", discountCode), zap.Error(err))
		case res.Status == coupon.StatusValid:
			discount = res.Adjustment
		default:
			s.logger.Info("discount no longer applies",
				zap.Int64("userID", userID), zap.String("code", discountCode), zap.String("status", string(res.Status)))
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.resume(sess, gen, "start"); err != nil {
		return nil, err
	}

	sess.items = resolved
	sess.discount = discount
	sess.resolving = false
	sess.invalidate()
	return sess.view(s.serviceFee), nil
}

// dropSession удаляет оформление, если его не успели заменить.
func (s *Service) dropSession(sess *session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if s.sessions[sess.userID] == sess && !sess.stale(gen) {
		sess.invalidate()
		delete(s.sessions, sess.userID)
	}
}

// GetCheckout возвращает текущее состояние оформления.
func (s *Service) GetCheckout(ctx context.Context, userID int64) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(s.serviceFee), nil
}

// AbandonCheckout отменяет оформление. Запросы, ещё не завершившиеся, будут отброшены.
func (s *Service) AbandonCheckout(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNoCheckout
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.step != StepConfirmed {
		if err := sess.mutable(); errors.Is(err, ErrPaymentInProgress) {
			return err
		}
	}
	sess.invalidate()
	delete(s.sessions, userID)
	return nil
}

// ApplyDiscount применяет промокод площадки. Скидка считается от текущего subtotal.
func (s *Service) ApplyDiscount(ctx context.Context, userID int64, code string) (*View, error) {
	return s.applyCode(ctx, userID, model.SourceDiscount, code)
}

// ApplyReferral применяет реферальный код поставщика.
func (s *Service) ApplyReferral(ctx context.Context, userID int64, code string) (*View, error) {
	return s.applyCode(ctx, userID, model.SourceReferral, code)
}

func (s *Service) applyCode(ctx context.Context, userID int64, source model.AdjustmentSource, code string) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if err := sess.mutable(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	gen := sess.generation
	subtotal := sess.totals(s.serviceFee).Subtotal
	sess.mu.Unlock()

	var res coupon.Result
	if source == model.SourceReferral {
		res, err = s.codes.ValidateReferral(ctx, code)
	} else {
		res, err = s.codes.ValidateDiscount(ctx, code, subtotal)
	}
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.resume(sess, gen, "apply "+string(source)); err != nil {
		return nil, err
	}
	if err := sess.mutable(); err != nil {
		return nil, err
	}
	if res.Status != coupon.StatusValid {
		return nil, &CodeError{Code: coupon.Normalize(code), Status: res.Status}
	}

	if source == model.SourceReferral {
		sess.referral = res.Adjustment
	} else {
		sess.discount = res.Adjustment
	}
	sess.invalidate()
	sess.regenerateContracts(s.serviceFee)
	return sess.view(s.serviceFee), nil
}

// RemoveDiscount снимает промокод.
func (s *Service) RemoveDiscount(ctx context.Context, userID int64) (*View, error) {
	return s.removeCode(userID, model.SourceDiscount)
}

// RemoveReferral снимает реферальный код.
func (s *Service) RemoveReferral(ctx context.Context, userID int64) (*View, error) {
	return s.removeCode(userID, model.SourceReferral)
}

func (s *Service) removeCode(userID int64, source model.AdjustmentSource) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutable(); err != nil {
		return nil, err
	}

	slot := &sess.discount
	if source == model.SourceReferral {
		slot = &sess.referral
	}
	if *slot != nil {
		*slot = nil
		sess.invalidate()
		sess.regenerateContracts(s.serviceFee)
	}
	return sess.view(s.serviceFee), nil
}

// UpdateDetails сохраняет данные пары и мероприятия. Если изменились поля,
// входящие в договоры, тексты договоров формируются заново.
func (s *Service) UpdateDetails(ctx context.Context, userID int64, details model.CheckoutDetails) (*View, error) {
	if err := validation.ValidateDetails(details, s.now()); err != nil {
		return nil, err
	}

	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutable(); err != nil && !errors.Is(err, ErrFeesResolving) {
		return nil, err
	}

	changed := !sess.hasDetails || !sess.details.ContractInputsEqual(details)
	sess.details = details
	sess.hasDetails = true
	if changed && !sess.resolving {
		sess.regenerateContracts(s.serviceFee)
	}
	if sess.step == StepDetails {
		sess.step = StepContracts
	}
	return sess.view(s.serviceFee), nil
}

// BeginContracts начинает шаг подписания: фиксирует типы услуг корзины и формирует договоры.
func (s *Service) BeginContracts(ctx context.Context, userID int64) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if err := sess.mutable(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if !sess.hasDetails {
		sess.mu.Unlock()
		return nil, ErrDetailsRequired
	}
	gen := sess.generation
	serviceTypes := model.ServiceTypes(sess.items)
	sess.mu.Unlock()

	templates := s.templates.Templates(ctx, serviceTypes)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.resume(sess, gen, "begin contracts"); err != nil {
		return nil, err
	}
	if err := sess.mutable(); err != nil {
		return nil, err
	}

	sess.templates = templates
	sess.gate.Begin(serviceTypes, sess.render(s.serviceFee))
	sess.step = StepContracts
	return sess.view(s.serviceFee), nil
}

// DraftSignature сохраняет набранное имя без подтверждения.
func (s *Service) DraftSignature(ctx context.Context, userID int64, serviceType, name string) (*View, error) {
	return s.withGate(userID, func(sess *session) error {
		return sess.gate.SetDraft(serviceType, name)
	})
}

// ConfirmSignature подтверждает подпись. После подписания всех договоров открывается шаг оплаты.
func (s *Service) ConfirmSignature(ctx context.Context, userID int64, serviceType string) (*View, error) {
	return s.withGate(userID, func(sess *session) error {
		if err := sess.gate.Confirm(serviceType, s.now()); err != nil {
			return err
		}
		if sess.gate.Complete() && sess.step == StepContracts {
			sess.step = StepPayment
		}
		return nil
	})
}

// UnsetSignature отменяет подпись для повторного подписания.
func (s *Service) UnsetSignature(ctx context.Context, userID int64, serviceType string) (*View, error) {
	return s.withGate(userID, func(sess *session) error {
		if err := sess.gate.Unset(serviceType); err != nil {
			return err
		}
		if sess.step == StepPayment {
			sess.step = StepContracts
		}
		return nil
	})
}

func (s *Service) withGate(userID int64, fn func(sess *session) error) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutable(); err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	return sess.view(s.serviceFee), nil
}

// CreatePaymentIntent создаёт намерение платежа на итоговую сумму.
// Действующее намерение переиспользуется, пока не изменились входные данные цены.
func (s *Service) CreatePaymentIntent(ctx context.Context, userID int64) (*model.PaymentIntent, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if err := s.checkPayable(sess); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if sess.attempt.Intent != nil {
		intent := *sess.attempt.Intent
		sess.mu.Unlock()
		return &intent, nil
	}
	if sess.attempt.State == payment.StateIntentRequested {
		sess.mu.Unlock()
		return nil, ErrPaymentInProgress
	}
	if err := sess.attempt.Transition(payment.StateIntentRequested); err != nil {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrWrongStep, err)
	}
	gen := sess.generation
	req := payment.IntentRequest{
		UserID:   userID,
		Items:    append([]model.CartLineItem(nil), sess.items...),
		Totals:   sess.totals(s.serviceFee),
		Discount: sess.discount,
		Referral: sess.referral,
	}
	sess.mu.Unlock()

	intent, err := s.payments.CreateIntent(ctx, req)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.resume(sess, gen, "create intent"); err != nil {
		return nil, err
	}
	if err != nil {
		sess.attempt.Fail("payment could not be initialized, please try again")
		return nil, err
	}
	if err := sess.attempt.SetIntent(intent); err != nil {
		return nil, err
	}
	res := *intent
	return &res, nil
}

// checkPayable проверяет предусловия оплаты. Вызывается под sess.mu.
func (s *Service) checkPayable(sess *session) error {
	if err := sess.mutable(); err != nil {
		return err
	}
	if !sess.hasDetails {
		return ErrDetailsRequired
	}
	if !sess.gate.Complete() {
		return ErrContractsUnsigned
	}
	if err := pricing.ValidateItems(sess.items); err != nil {
		return err
	}
	return validation.ValidateSchedule(sess.items, s.now())
}

// UpdateCard сохраняет статус виджета ввода карты.
func (s *Service) UpdateCard(ctx context.Context, userID int64, ready, complete bool) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutable(); err != nil {
		return nil, err
	}
	if sess.attempt.Intent == nil {
		return nil, ErrPaymentNotReady
	}
	sess.attempt.SetCard(ready, complete)
	return sess.view(s.serviceFee), nil
}

// AcceptTerms сохраняет согласие с условиями.
func (s *Service) AcceptTerms(ctx context.Context, userID int64, accepted bool) (*View, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutable(); err != nil {
		return nil, err
	}
	sess.attempt.TermsAccepted = accepted
	return sess.view(s.serviceFee), nil
}

// ConfirmPayment подтверждает оплату, сохраняет договоры и ожидает появления бронирований.
// Корзина очищается только после подтверждения бронирований. Если оплата уже прошла,
// а бронирования не дождались, повторный вызов только повторяет ожидание.
func (s *Service) ConfirmPayment(ctx context.Context, userID int64, paymentMethod string) (*booking.Confirmation, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.step == StepConfirmed {
		conf := sess.confirmation
		sess.mu.Unlock()
		return conf, nil
	}

	charge := sess.attempt.State != payment.StateSucceeded
	var details model.CheckoutDetails
	var signatures []model.ContractSignature
	if charge {
		if err := s.prepareCharge(sess, paymentMethod); err != nil {
			sess.mu.Unlock()
			return nil, err
		}
		details = sess.details
		signatures = sess.gate.Signatures()
	}
	intent := *sess.attempt.Intent
	sess.mu.Unlock()

	if charge {
		// Списание нельзя прервать отключением клиента: его результат должен дойти до сессии.
		_, err := s.payments.Confirm(context.WithoutCancel(ctx), payment.ConfirmRequest{
			IntentID:      intent.ID,
			ClientSecret:  intent.ClientSecret,
			PaymentMethod: paymentMethod,
			Details:       details,
		})
		if err != nil {
			msg := payment.MsgNotCompleted
			var pe *payment.PaymentError
			if errors.As(err, &pe) {
				msg = pe.Message
			}
			sess.mu.Lock()
			sess.attempt.Fail(msg)
			sess.mu.Unlock()
			return nil, err
		}

		s.payments.SaveContracts(context.WithoutCancel(ctx), userID, intent.ID, signatures)

		sess.mu.Lock()
		if err := sess.attempt.Transition(payment.StateSucceeded); err != nil {
			s.logger.Error("payment succeeded but attempt state is inconsistent",
				zap.Int64("userID", userID), zap.String("intentID", intent.ID), zap.Error(err))
			sess.attempt.State = payment.StateSucceeded
		}
		sess.mu.Unlock()
	}

	conf, err := s.bookings.Poll(ctx, intent.BookingIDs)
	if err != nil {
		s.logger.Error("bookings not confirmed after successful payment",
			zap.Int64("userID", userID), zap.String("intentID", intent.ID), zap.Error(err))
		return nil, err
	}

	l := s.cartLock(userID)
	l.Lock()
	if err := s.carts.Delete(ctx, userID); err != nil {
		s.logger.Error("clear cart after booking failed", zap.Int64("userID", userID), zap.Error(err))
	}
	l.Unlock()

	sess.mu.Lock()
	sess.step = StepConfirmed
	sess.confirmation = conf
	sess.mu.Unlock()

	return conf, nil
}

// prepareCharge проверяет готовность к оплате и переводит попытку в confirming. Вызывается под sess.mu.
func (s *Service) prepareCharge(sess *session, paymentMethod string) error {
	if sess.attempt.State == payment.StateConfirming {
		return ErrPaymentInProgress
	}
	if err := s.checkPayable(sess); err != nil {
		return err
	}
	if paymentMethod == "" {
		return validation.Errors{"payment_method": "is required"}
	}
	if !sess.attempt.CanSubmit() {
		return ErrPaymentNotReady
	}
	if sess.attempt.State == payment.StateFailed {
		if err := sess.attempt.Transition(payment.StateCardCollecting); err != nil {
			return err
		}
	}
	return sess.attempt.Transition(payment.StateConfirming)
}
