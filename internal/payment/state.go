// Package payment создаёт и подтверждает платежи за бронирования.
package payment

import (
	"errors"

	"github.com/mmeshcher/weddingcart/internal/model"
)

// State: стадия оплаты в рамках одной попытки оформления.
type State string

const (
	StateIdle            State = "idle"
	StateIntentRequested State = "intent_requested"
	StateCardCollecting  State = "card_collecting"
	StateConfirming      State = "confirming"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
)

// ErrIllegalTransition возвращается при недопустимом переходе между стадиями.
var ErrIllegalTransition = errors.New("illegal transition of payment state")

var transitions = map[State][]State{
	StateIdle:            {StateIntentRequested},
	StateIntentRequested: {StateCardCollecting, StateFailed},
	StateCardCollecting:  {StateConfirming},
	StateConfirming:      {StateSucceeded, StateFailed},
	StateFailed:          {StateCardCollecting, StateIntentRequested},
	StateSucceeded:       {},
}

// CanTransitionTo сообщает, допустим ли переход. Сброс в idle разрешён из любой стадии.
func (s State) CanTransitionTo(next State) bool {
	if next == StateIdle {
		return true
	}
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, завершена ли оплата успешно.
func (s State) IsTerminal() bool {
	return s == StateSucceeded
}

// Attempt хранит эфемерное состояние оплаты: намерение и статус виджета карты.
type Attempt struct {
	State         State                `json:"state"`
	Intent        *model.PaymentIntent `json:"intent,omitempty"`
	CardReady     bool                 `json:"card_ready"`
	CardComplete  bool                 `json:"card_complete"`
	TermsAccepted bool                 `json:"terms_accepted"`
	LastError     string               `json:"last_error,omitempty"`
}

// NewAttempt создаёт попытку в стадии idle.
func NewAttempt() *Attempt {
	return &Attempt{State: StateIdle}
}

// Transition переводит попытку в стадию next.
func (a *Attempt) Transition(next State) error {
	if !a.State.CanTransitionTo(next) {
		return ErrIllegalTransition
	}
	a.State = next
	return nil
}

// Reset отбрасывает намерение платежа. Вызывается при любом изменении входных данных цены.
func (a *Attempt) Reset() {
	a.State = StateIdle
	a.Intent = nil
	a.CardReady = false
	a.CardComplete = false
	a.LastError = ""
}

// SetIntent сохраняет созданное намерение и переводит попытку к вводу карты.
func (a *Attempt) SetIntent(intent *model.PaymentIntent) error {
	if err := a.Transition(StateCardCollecting); err != nil {
		return err
	}
	a.Intent = intent
	a.LastError = ""
	return nil
}

// SetCard обновляет статус встроенного виджета карты.
func (a *Attempt) SetCard(ready, complete bool) {
	a.CardReady = ready
	a.CardComplete = complete
}

// CanSubmit сообщает, можно ли отправить платёж на подтверждение.
func (a *Attempt) CanSubmit() bool {
	return a.Intent != nil &&
		(a.State == StateCardCollecting || a.State == StateFailed) &&
		a.CardReady && a.CardComplete && a.TermsAccepted
}

// Fail фиксирует неудачную попытку. Намерение сохраняется для повтора.
func (a *Attempt) Fail(msg string) {
	a.State = StateFailed
	a.LastError = msg
}
