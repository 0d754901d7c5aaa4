package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/repository"
)

// DefaultTemplate используется, если у типа услуг нет собственного шаблона.
const DefaultTemplate = `SERVICE AGREEMENT: {{service_type}}

This agreement is made between {{couple_name}} and {{partner_name}} ("Client")
and {{vendor_name}} ("Vendor") for the package "{{package_name}}".

Event date: {{event_date}}
Event location: {{event_location}}

Package price: {{package_price}}
Deposit due today: {{deposit_amount}}

The remaining balance is due to the Vendor before the event date.
By typing their full legal name below the Client accepts these terms.
`

// TemplateStore описывает хранилище шаблонов договоров.
type TemplateStore interface {
	GetContractTemplate(ctx context.Context, serviceType string) (*model.ContractTemplate, error)
}

// Renderer загружает шаблоны и подставляет в них данные пары, поставщика и мероприятия.
type Renderer struct {
	store  TemplateStore
	logger *zap.Logger
}

// NewRenderer создаёт Renderer.
func NewRenderer(store TemplateStore, logger *zap.Logger) *Renderer {
	return &Renderer{store: store, logger: logger}
}

// Templates загружает шаблоны для перечисленных типов услуг.
// При отсутствии шаблона или ошибке хранилища используется DefaultTemplate.
func (r *Renderer) Templates(ctx context.Context, serviceTypes []string) map[string]string {
	res := make(map[string]string, len(serviceTypes))
	for _, st := range serviceTypes {
		tpl, err := r.store.GetContractTemplate(ctx, st)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				r.logger.Warn("contract template lookup failed, using default",
					zap.String("serviceType", st), zap.Error(err))
			}
			res[st] = DefaultTemplate
			continue
		}
		res[st] = tpl.Content
	}
	return res
}

// Render формирует функцию отрисовки договоров для текущего состояния оформления.
func Render(templates map[string]string, items []model.CartLineItem, lines []int64, deposits []int64, details model.CheckoutDetails) RenderFunc {
	return func(serviceType string) string {
		tpl, ok := templates[serviceType]
		if !ok {
			tpl = DefaultTemplate
		}

		var vendors, packages []string
		var price, deposit int64
		eventDate := details.EventDate
		for i, it := range items {
			if it.Package.ServiceType != serviceType {
				continue
			}
			vendors = appendUnique(vendors, it.Vendor.Name)
			packages = appendUnique(packages, it.Package.Name)
			if i < len(lines) {
				price += lines[i]
			}
			if i < len(deposits) {
				deposit += deposits[i]
			}
			if eventDate == "" {
				eventDate = it.EventDate
			}
		}

		return strings.NewReplacer(
			"{{couple_name}}", details.CoupleName,
			"{{partner_name}}", details.PartnerName,
			"{{event_date}}", eventDate,
			"{{event_location}}", details.EventLocation,
			"{{vendor_name}}", strings.Join(vendors, ", "),
			"{{service_type}}", serviceType,
			"{{package_name}}", strings.Join(packages, ", "),
			"{{package_price}}", FormatCents(price),
			"{{deposit_amount}}", FormatCents(deposit),
		).Replace(tpl)
	}
}

// FormatCents форматирует сумму в центах как "$1,234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, ch := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
