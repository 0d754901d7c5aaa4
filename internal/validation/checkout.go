// Package validation содержит функции валидации входных данных оформления заказа.
package validation

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/mmeshcher/weddingcart/internal/model"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Errors: ошибки валидации по полям. Исправляются пользователем.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e Errors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// IsValidEmail проверяет адрес электронной почты.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}

// IsValidPhone проверяет номер телефона: от 10 до 15 цифр, допускаются пробелы, скобки, дефисы и ведущий +.
func IsValidPhone(phone string) bool {
	digits := 0
	for i, ch := range phone {
		switch {
		case unicode.IsDigit(ch):
			digits++
		case ch == '+' && i == 0:
		case ch == ' ' || ch == '-' || ch == '(' || ch == ')' || ch == '.':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}

// ValidateEventDate проверяет, что дата в формате YYYY-MM-DD и не в прошлом.
func ValidateEventDate(date string, now time.Time) error {
	d, err := time.ParseInLocation(dateLayout, date, now.Location())
	if err != nil {
		return fmt.Errorf("must be a date in YYYY-MM-DD format")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return fmt.Errorf("wedding date must not be in the past")
	}
	return nil
}

// ValidateDetails проверяет персональные, платёжные данные и сведения о мероприятии.
func ValidateDetails(d model.CheckoutDetails, now time.Time) error {
	errs := Errors{}

	required := map[string]string{
		"couple_name":         d.CoupleName,
		"partner_name":        d.PartnerName,
		"email":               d.Email,
		"phone":               d.Phone,
		"event_location":      d.EventLocation,
		"event_date":          d.EventDate,
		"address.line1":       d.Address.Line1,
		"address.city":        d.Address.City,
		"address.state":       d.Address.State,
		"address.postal_code": d.Address.PostalCode,
		"address.country":     d.Address.Country,
	}
	for field, v := range required {
		if strings.TrimSpace(v) == "" {
			errs[field] = "is required"
		}
	}

	if _, missing := errs["email"]; !missing && !IsValidEmail(d.Email) {
		errs["email"] = "is not a valid email address"
	}
	if _, missing := errs["phone"]; !missing && !IsValidPhone(d.Phone) {
		errs["phone"] = "is not a valid phone number"
	}
	if _, missing := errs["event_date"]; !missing {
		if err := ValidateEventDate(d.EventDate, now); err != nil {
			errs["event_date"] = err.Error()
		}
	}

	return errs.orNil()
}

// ValidateSchedule проверяет, что у каждой позиции указаны дата, время начала и окончания.
func ValidateSchedule(items []model.CartLineItem, now time.Time) error {
	errs := Errors{}
	for _, it := range items {
		prefix := "items." + it.ID + "."
		if it.EventDate == "" {
			errs[prefix+"event_date"] = "is required"
		} else if err := ValidateEventDate(it.EventDate, now); err != nil {
			errs[prefix+"event_date"] = err.Error()
		}

		start, startErr := time.Parse(timeLayout, it.EventStartTime)
		end, endErr := time.Parse(timeLayout, it.EventEndTime)
		if startErr != nil {
			errs[prefix+"event_start_time"] = "must be a time in HH:MM format"
		}
		if endErr != nil {
			errs[prefix+"event_end_time"] = "must be a time in HH:MM format"
		}
		if startErr == nil && endErr == nil && !end.After(start) {
			errs[prefix+"event_end_time"] = "must be after start time"
		}
	}
	return errs.orNil()
}
