// Package contract управляет подписанием договоров по типам услуг перед оплатой.
package contract

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mmeshcher/weddingcart/internal/model"
)

var (
	// ErrUnknownServiceType возвращается для типа услуг, которого не было в корзине на момент начала подписания.
	ErrUnknownServiceType = errors.New("no contract for service type")
	// ErrEmptySignature возвращается при подтверждении пустой подписи.
	ErrEmptySignature = errors.New("signature must not be empty")
	// ErrAlreadySigned возвращается при попытке изменить подписанный договор без явной отмены подписи.
	ErrAlreadySigned = errors.New("contract already signed")
	// ErrNotStarted возвращается, если шаг подписания ещё не начат.
	ErrNotStarted = errors.New("contract step not started")
)

// State: состояние договора по одному типу услуг.
type State string

const (
	StateUnsigned State = "unsigned"
	StatePending  State = "pending"
	StateSigned   State = "signed"
)

// RenderFunc возвращает текст договора для типа услуг.
type RenderFunc func(serviceType string) string

type entry struct {
	content    string
	draft      string
	signedName string
	signedAt   time.Time
	signedText string
}

func (e *entry) state() State {
	switch {
	case e.signedName != "":
		return StateSigned
	case e.draft != "":
		return StatePending
	default:
		return StateUnsigned
	}
}

// Entry: представление договора для клиента.
type Entry struct {
	ServiceType string     `json:"service_type"`
	State       State      `json:"state"`
	Content     string     `json:"content"`
	Draft       string     `json:"draft,omitempty"`
	SignedName  string     `json:"signed_name,omitempty"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	Stale       bool       `json:"stale"`
}

// Gate хранит состояние подписания договоров. Не потокобезопасен: доступ сериализует владелец.
type Gate struct {
	order   []string
	entries map[string]*entry
}

// NewGate создаёт пустой Gate.
func NewGate() *Gate {
	return &Gate{entries: make(map[string]*entry)}
}

// Begin фиксирует набор типов услуг и формирует тексты договоров.
// Повторный вызов начинает подписание заново.
func (g *Gate) Begin(serviceTypes []string, render RenderFunc) {
	g.order = g.order[:0]
	g.entries = make(map[string]*entry, len(serviceTypes))
	for _, st := range serviceTypes {
		if _, ok := g.entries[st]; ok {
			continue
		}
		g.order = append(g.order, st)
		g.entries[st] = &entry{content: render(st)}
	}
}

// Started сообщает, начат ли шаг подписания.
func (g *Gate) Started() bool {
	return len(g.order) > 0
}

// Regenerate заново формирует тексты. Подписанные договоры остаются подписанными;
// если их текст изменился, они помечаются как устаревшие.
func (g *Gate) Regenerate(render RenderFunc) {
	for _, st := range g.order {
		g.entries[st].content = render(st)
	}
}

// SetDraft сохраняет набранное, но не подтверждённое имя.
func (g *Gate) SetDraft(serviceType, text string) error {
	e, err := g.entry(serviceType)
	if err != nil {
		return err
	}
	if e.signedName != "" {
		return ErrAlreadySigned
	}
	e.draft = text
	return nil
}

// Confirm подтверждает подпись из черновика.
func (g *Gate) Confirm(serviceType string, now time.Time) error {
	e, err := g.entry(serviceType)
	if err != nil {
		return err
	}
	if e.signedName != "" {
		return ErrAlreadySigned
	}
	name := strings.TrimSpace(e.draft)
	if name == "" {
		return ErrEmptySignature
	}
	e.signedName = name
	e.signedAt = now
	e.signedText = e.content
	return nil
}

// Unset отменяет подпись, чтобы договор можно было подписать заново.
func (g *Gate) Unset(serviceType string) error {
	e, err := g.entry(serviceType)
	if err != nil {
		return err
	}
	e.signedName = ""
	e.signedAt = time.Time{}
	e.signedText = ""
	e.draft = ""
	return nil
}

// Complete сообщает, подписаны ли все договоры.
func (g *Gate) Complete() bool {
	return g.Started() && len(g.Missing()) == 0
}

// Missing возвращает типы услуг без подтверждённой подписи.
func (g *Gate) Missing() []string {
	var res []string
	for _, st := range g.order {
		if g.entries[st].signedName == "" {
			res = append(res, st)
		}
	}
	return res
}

// Entries возвращает состояние всех договоров в порядке типов услуг.
func (g *Gate) Entries() []Entry {
	res := make([]Entry, 0, len(g.order))
	for _, st := range g.order {
		e := g.entries[st]
		v := Entry{
			ServiceType: st,
			State:       e.state(),
			Content:     e.content,
			Draft:       e.draft,
			SignedName:  e.signedName,
		}
		if e.signedName != "" {
			at := e.signedAt
			v.SignedAt = &at
			v.Stale = e.signedText != e.content
		}
		res = append(res, v)
	}
	return res
}

// Signatures возвращает подписанные договоры, отсортированные по типу услуг.
// В договор попадает текст, который видел подписант.
func (g *Gate) Signatures() []model.ContractSignature {
	var res []model.ContractSignature
	for _, st := range g.order {
		e := g.entries[st]
		if e.signedName == "" {
			continue
		}
		res = append(res, model.ContractSignature{
			ServiceType:     st,
			SignedName:      e.signedName,
			TemplateContent: e.signedText,
			SignedAt:        e.signedAt,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ServiceType < res[j].ServiceType })
	return res
}

func (g *Gate) entry(serviceType string) (*entry, error) {
	if !g.Started() {
		return nil, ErrNotStarted
	}
	e, ok := g.entries[serviceType]
	if !ok {
		return nil, ErrUnknownServiceType
	}
	return e, nil
}
