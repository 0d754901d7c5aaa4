package service

import (
	"sync"

	"github.com/mmeshcher/weddingcart/internal/booking"
	"github.com/mmeshcher/weddingcart/internal/contract"
	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/payment"
	"github.com/mmeshcher/weddingcart/internal/pricing"
)

// Step: шаг оформления заказа.
type Step string

const (
	StepDetails   Step = "details"
	StepContracts Step = "contracts"
	StepPayment   Step = "payment"
	StepConfirmed Step = "confirmed"
)

// session: состояние оформления одного пользователя.
// Все поля защищены mu; generation увеличивается при каждом изменении,
// влияющем на сумму, и отбрасывает результаты запросов, начатых раньше.
type session struct {
	mu         sync.Mutex
	generation uint64

	userID    int64
	step      Step
	resolving bool
	items     []model.CartLineItem

	discount *model.Adjustment
	referral *model.Adjustment

	details    model.CheckoutDetails
	hasDetails bool

	templates map[string]string
	gate      *contract.Gate
	attempt   *payment.Attempt

	confirmation *booking.Confirmation
}

func newSession(userID int64) *session {
	return &session{
		userID:  userID,
		step:    StepDetails,
		gate:    contract.NewGate(),
		attempt: payment.NewAttempt(),
	}
}

func (sess *session) active() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.step != StepConfirmed
}

// invalidate отбрасывает незавершённые запросы и созданное намерение платежа.
func (sess *session) invalidate() {
	sess.generation++
	sess.attempt.Reset()
}

func (sess *session) stale(gen uint64) bool {
	return sess.generation != gen
}

// mutable проверяет, что состояние можно менять: сборы рассчитаны, оплата не отправлена.
func (sess *session) mutable() error {
	switch {
	case sess.step == StepConfirmed:
		return ErrWrongStep
	case sess.attempt.State == payment.StateConfirming || sess.attempt.State == payment.StateSucceeded:
		return ErrPaymentInProgress
	case sess.resolving:
		return ErrFeesResolving
	}
	return nil
}

func (sess *session) adjustments() (discount, referral int64) {
	if sess.discount != nil {
		discount = sess.discount.Amount
	}
	if sess.referral != nil {
		referral = sess.referral.Amount
	}
	return discount, referral
}

func (sess *session) totals(perItemFee int64) model.Totals {
	discount, referral := sess.adjustments()
	return pricing.Calculate(sess.items, discount, referral, perItemFee)
}

// render формирует тексты договоров по текущим позициям, скидкам и данным пары.
func (sess *session) render(perItemFee int64) contract.RenderFunc {
	lines := pricing.Breakdown(sess.items, sess.totals(perItemFee))
	prices := make([]int64, len(lines))
	deposits := make([]int64, len(lines))
	for i, l := range lines {
		prices[i] = l.Price
		deposits[i] = l.Deposit
	}
	return contract.Render(sess.templates, sess.items, prices, deposits, sess.details)
}

func (sess *session) regenerateContracts(perItemFee int64) {
	if sess.gate.Started() {
		sess.gate.Regenerate(sess.render(perItemFee))
	}
}

// View: представление оформления для клиента.
type View struct {
	Generation       uint64                 `json:"generation"`
	Step             Step                   `json:"step"`
	Resolving        bool                   `json:"resolving"`
	Items            []model.CartLineItem   `json:"items"`
	Totals           *model.Totals          `json:"totals,omitempty"`
	Discount         *model.Adjustment      `json:"discount,omitempty"`
	Referral         *model.Adjustment      `json:"referral,omitempty"`
	Details          *model.CheckoutDetails `json:"details,omitempty"`
	Contracts        []contract.Entry       `json:"contracts,omitempty"`
	MissingContracts []string               `json:"missing_contracts,omitempty"`
	Payment          payment.Attempt        `json:"payment"`
	Confirmation     *booking.Confirmation  `json:"confirmation,omitempty"`
}

// view снимает копию состояния. Итоги не считаются, пока сборы не рассчитаны.
func (sess *session) view(perItemFee int64) *View {
	v := &View{
		Generation:   sess.generation,
		Step:         sess.step,
		Resolving:    sess.resolving,
		Items:        append([]model.CartLineItem(nil), sess.items...),
		Discount:     sess.discount,
		Referral:     sess.referral,
		Payment:      *sess.attempt,
		Confirmation: sess.confirmation,
	}
	if !sess.resolving {
		t := sess.totals(perItemFee)
		v.Totals = &t
	}
	if sess.hasDetails {
		d := sess.details
		v.Details = &d
	}
	if sess.gate.Started() {
		v.Contracts = sess.gate.Entries()
		v.MissingContracts = sess.gate.Missing()
	}
	return v
}
