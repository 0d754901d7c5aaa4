// Package gateway предоставляет клиент платёжного шлюза (REST API в формате Stripe).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// StatusSucceeded: статус успешно проведённого платежа.
const StatusSucceeded = "succeeded"

// Ограничения шлюза на метаданные намерения.
const (
	MaxMetadataKeys     = 50
	MaxMetadataValueLen = 500
)

var (
	// ErrNotConfigured возвращается, если адрес шлюза не задан.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrMetadataTooLarge возвращается, если метаданные не укладываются в ограничения шлюза.
	ErrMetadataTooLarge = errors.New("intent metadata exceeds gateway limits")
)

// APIError: ошибка, возвращённая шлюзом. Message предназначено для показа пользователю.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment gateway error (status %d, code %q): %s", e.StatusCode, e.Code, e.Message)
}

// Intent описывает намерение платежа.
type Intent struct {
	ID               string            `json:"id"`
	ClientSecret     string            `json:"client_secret"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *APIError         `json:"last_payment_error,omitempty"`
}

// BillingDetails: платёжные данные держателя карты.
type BillingDetails struct {
	Name       string
	Email      string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза. Таймаут не задаётся: запросы ограничиваются контекстом.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: cleanhttp.DefaultPooledClient(),
	}
}

// CreateIntent создаёт намерение платежа на сумму amount в минимальных единицах валюты.
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	if len(metadata) > MaxMetadataKeys {
		return nil, fmt.Errorf("%w: %d keys", ErrMetadataTooLarge, len(metadata))
	}
	for k, v := range metadata {
		if len(v) > MaxMetadataValueLen {
			return nil, fmt.Errorf("%w: value of %q is %d characters", ErrMetadataTooLarge, k, len(v))
		}
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", metadata[k])
	}

	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ConfirmCardPayment подтверждает оплату картой по client secret намерения.
func (c *Client) ConfirmCardPayment(ctx context.Context, clientSecret, paymentMethod string, billing BillingDetails) (*Intent, error) {
	id := IntentIDFromSecret(clientSecret)
	if id == "" {
		return nil, fmt.Errorf("malformed client secret")
	}

	form := url.Values{}
	form.Set("client_secret", clientSecret)
	form.Set("payment_method", paymentMethod)
	setIfNotEmpty(form, "payment_method_data[billing_details][name]", billing.Name)
	setIfNotEmpty(form, "payment_method_data[billing_details][email]", billing.Email)
	setIfNotEmpty(form, "payment_method_data[billing_details][phone]", billing.Phone)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][line1]", billing.Line1)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][line2]", billing.Line2)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][city]", billing.City)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][state]", billing.State)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][postal_code]", billing.PostalCode)
	setIfNotEmpty(form, "payment_method_data[billing_details][address][country]", billing.Country)

	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(id)+"/confirm", form, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetIntent возвращает текущее состояние намерения.
func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	if intentID == "" {
		return nil, fmt.Errorf("empty intent id")
	}

	var intent Intent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// IntentIDFromSecret извлекает идентификатор намерения из client secret вида "pi_xxx_secret_yyy".
func IntentIDFromSecret(secret string) string {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok {
		return ""
	}
	return id
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr != nil || envelope.Error == nil {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func setIfNotEmpty(form url.Values, key, value string) {
	if value != "" {
		form.Set(key, value)
	}
}
