// Package model содержит доменные сущности сервиса оформления свадебных заказов.
package model

import "time"

// Currency: единственная поддерживаемая валюта платежей.
const Currency = "usd"

// User представляет зарегистрированного пользователя (пару молодожёнов).
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Package описывает пакет услуг поставщика. Все суммы в центах.
type Package struct {
	ID            string `json:"id"`
	ServiceType   string `json:"service_type"`
	Name          string `json:"name"`
	BasePrice     int64  `json:"base_price"`
	PremiumAmount int64  `json:"premium_amount"`
	TravelFee     int64  `json:"travel_fee"`
}

// LineTotal возвращает стоимость пакета с надбавкой и выездным сбором.
func (p Package) LineTotal() int64 {
	return p.BasePrice + p.PremiumAmount + p.TravelFee
}

// Vendor описывает поставщика услуг.
type Vendor struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	StripeAccountID string `json:"stripe_account_id,omitempty"`
}

// Venue описывает площадку проведения мероприятия.
type Venue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CartLineItem: выбранный пакет поставщика, ожидающий бронирования.
type CartLineItem struct {
	ID             string  `json:"id"`
	Package        Package `json:"package"`
	Vendor         Vendor  `json:"vendor"`
	Venue          *Venue  `json:"venue,omitempty"`
	EventDate      string  `json:"event_date,omitempty"`
	EventStartTime string  `json:"event_start_time,omitempty"`
	EventEndTime   string  `json:"event_end_time,omitempty"`
}

// VenueID возвращает идентификатор площадки или пустую строку.
func (i CartLineItem) VenueID() string {
	if i.Venue == nil {
		return ""
	}
	return i.Venue.ID
}

// Cart: корзина пользователя.
type Cart struct {
	UserID    int64          `json:"user_id"`
	Items     []CartLineItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ServiceTypes возвращает различные типы услуг корзины в порядке первого появления.
func ServiceTypes(items []CartLineItem) []string {
	seen := make(map[string]struct{}, len(items))
	res := make([]string, 0, len(items))
	for _, it := range items {
		st := it.Package.ServiceType
		if _, ok := seen[st]; ok {
			continue
		}
		seen[st] = struct{}{}
		res = append(res, st)
	}
	return res
}

// AdjustmentKind описывает способ расчёта скидки.
type AdjustmentKind string

const (
	AdjustmentPercentage AdjustmentKind = "percentage"
	AdjustmentFixed      AdjustmentKind = "fixed"
)

// AdjustmentSource описывает происхождение скидки.
type AdjustmentSource string

const (
	SourceDiscount AdjustmentSource = "discount"
	SourceReferral AdjustmentSource = "referral"
)

// Adjustment: действующая скидка по промокоду или реферальному коду.
// Magnitude хранит процент или фиксированную сумму, а Amount хранит итоговую скидку в центах.
type Adjustment struct {
	Code             string           `json:"code"`
	Source           AdjustmentSource `json:"source"`
	Kind             AdjustmentKind   `json:"kind"`
	Magnitude        float64          `json:"magnitude"`
	Amount           int64            `json:"amount"`
	SourceVendorName string           `json:"source_vendor_name,omitempty"`
}

// Totals: результат расчёта стоимости корзины.
type Totals struct {
	LineItemCount    int   `json:"line_item_count"`
	Subtotal         int64 `json:"subtotal"`
	TotalDiscount    int64 `json:"total_discount"`
	DiscountedTotal  int64 `json:"discounted_total"`
	DepositAmount    int64 `json:"deposit_amount"`
	ServiceFeeTotal  int64 `json:"service_fee_total"`
	GrandTotal       int64 `json:"grand_total"`
	RemainingBalance int64 `json:"remaining_balance"`
}

// ContractSignature: подписанный договор по одному типу услуг.
type ContractSignature struct {
	ServiceType     string    `json:"service_type"`
	SignedName      string    `json:"signed_name"`
	TemplateContent string    `json:"template_content"`
	SignedAt        time.Time `json:"signed_at"`
}

// ContractTemplate: шаблон договора для типа услуг.
type ContractTemplate struct {
	ServiceType string
	Content     string
}

// Contract: сохранённый договор, привязанный к платежу.
type Contract struct {
	UserID          int64
	PaymentIntentID string
	ContractSignature
}

// PaymentIntent: намерение платежа, созданное на стороне платёжного шлюза.
type PaymentIntent struct {
	ID           string   `json:"intent_id"`
	ClientSecret string   `json:"client_secret"`
	Amount       int64    `json:"amount"`
	Currency     string   `json:"currency"`
	BookingIDs   []string `json:"booking_ids"`
}

// BookingStatus описывает статус бронирования.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
)

// Booking: бронирование позиции корзины. Создаётся в статусе PENDING вместе с намерением
// платежа и становится CONFIRMED после успешной оплаты.
type Booking struct {
	ID              string        `json:"id"`
	UserID          int64         `json:"user_id"`
	PaymentIntentID string        `json:"payment_intent_id"`
	VendorID        string        `json:"vendor_id"`
	PackageID       string        `json:"package_id"`
	ServiceType     string        `json:"service_type"`
	EventDate       string        `json:"event_date,omitempty"`
	TotalAmount     int64         `json:"total_amount"`
	DepositAmount   int64         `json:"deposit_amount"`
	FinalPayment    int64         `json:"final_payment"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Coupon: промокод площадки.
type Coupon struct {
	Code            string
	DiscountPercent float64
	DiscountAmount  int64
	ExpiresAt       *time.Time
}

// ReferralCode: реферальный код поставщика.
type ReferralCode struct {
	Code           string
	VendorID       string
	VendorName     string
	DiscountAmount int64
	ExpiresAt      *time.Time
}

// Address: платёжный адрес.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// CheckoutDetails: персональные, платёжные данные и сведения о мероприятии.
type CheckoutDetails struct {
	CoupleName    string  `json:"couple_name"`
	PartnerName   string  `json:"partner_name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Address       Address `json:"address"`
	EventLocation string  `json:"event_location"`
	EventDate     string  `json:"event_date"`
}

// ContractInputsEqual сообщает, совпадают ли поля, от которых зависит текст договоров.
func (d CheckoutDetails) ContractInputsEqual(o CheckoutDetails) bool {
	return d.CoupleName == o.CoupleName &&
		d.PartnerName == o.PartnerName &&
		d.EventDate == o.EventDate &&
		d.EventLocation == o.EventLocation
}
