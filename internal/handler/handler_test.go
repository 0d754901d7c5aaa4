package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/booking"
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

const testWebhookSecret = "whsec_test"

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	cart    *model.Cart
	cartErr error

	view    *service.View
	viewErr error

	lastUserID      int64
	lastCode        string
	lastServiceType string
	lastName        string
	lastDetails     model.CheckoutDetails

	intent    *model.PaymentIntent
	intentErr error

	confirmation *booking.Confirmation
	confirmErr   error
	lastMethod   string

	events     []*gateway.Event
	webhookErr error
}

func (s *stubService) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) GetCart(ctx context.Context, userID int64) (*model.Cart, error) {
	s.lastUserID = userID
	return s.cart, s.cartErr
}

func (s *stubService) AddCartItem(ctx context.Context, userID int64, req service.AddItemRequest) (*model.Cart, error) {
	s.lastUserID = userID
	return s.cart, s.cartErr
}

func (s *stubService) RemoveCartItem(ctx context.Context, userID int64, itemID string) (*model.Cart, error) {
	s.lastUserID = userID
	return s.cart, s.cartErr
}

func (s *stubService) ClearCart(ctx context.Context, userID int64) error {
	return s.cartErr
}

func (s *stubService) result(userID int64) (*service.View, error) {
	s.lastUserID = userID
	return s.view, s.viewErr
}

func (s *stubService) StartCheckout(ctx context.Context, userID int64) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) GetCheckout(ctx context.Context, userID int64) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) AbandonCheckout(ctx context.Context, userID int64) error {
	return s.viewErr
}

func (s *stubService) ApplyDiscount(ctx context.Context, userID int64, code string) (*service.View, error) {
	s.lastCode = code
	return s.result(userID)
}

func (s *stubService) RemoveDiscount(ctx context.Context, userID int64) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) ApplyReferral(ctx context.Context, userID int64, code string) (*service.View, error) {
	s.lastCode = code
	return s.result(userID)
}

func (s *stubService) RemoveReferral(ctx context.Context, userID int64) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) UpdateDetails(ctx context.Context, userID int64, details model.CheckoutDetails) (*service.View, error) {
	s.lastDetails = details
	return s.result(userID)
}

func (s *stubService) BeginContracts(ctx context.Context, userID int64) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) DraftSignature(ctx context.Context, userID int64, serviceType, name string) (*service.View, error) {
	s.lastServiceType = serviceType
	s.lastName = name
	return s.result(userID)
}

func (s *stubService) ConfirmSignature(ctx context.Context, userID int64, serviceType string) (*service.View, error) {
	s.lastServiceType = serviceType
	return s.result(userID)
}

func (s *stubService) UnsetSignature(ctx context.Context, userID int64, serviceType string) (*service.View, error) {
	s.lastServiceType = serviceType
	return s.result(userID)
}

func (s *stubService) CreatePaymentIntent(ctx context.Context, userID int64) (*model.PaymentIntent, error) {
	s.lastUserID = userID
	return s.intent, s.intentErr
}

func (s *stubService) UpdateCard(ctx context.Context, userID int64, ready, complete bool) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) AcceptTerms(ctx context.Context, userID int64, accepted bool) (*service.View, error) {
	return s.result(userID)
}

func (s *stubService) ConfirmPayment(ctx context.Context, userID int64, paymentMethod string) (*booking.Confirmation, error) {
	s.lastUserID = userID
	s.lastMethod = paymentMethod
	return s.confirmation, s.confirmErr
}

func (s *stubService) MaterializeBookings(ctx context.Context, event *gateway.Event) error {
	s.events = append(s.events, event)
	return s.webhookErr
}

func newTestHandler(t *testing.T, svc Service) (*Handler, *middleware.AuthMiddleware) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth, nil, testWebhookSecret), auth
}

func do(t *testing.T, h http.Handler, auth *middleware.AuthMiddleware, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != nil && userID > 0 {
		token, err := auth.IssueToken(userID)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegister_IssuesToken(t *testing.T) {
	svc := &stubService{registerUserID: 5}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	w := do(t, router, nil, 0, http.MethodPost, "/api/user/register", credentialsRequest{Email: "jane@example.com", Password: "password1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := auth.ParseToken(resp.Token)
	if err != nil || id != 5 {
		t.Fatalf("ParseToken = %d, %v", id, err)
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body any
		want int
	}{
		{"duplicate", fmt.Errorf("%w: jane", repository.ErrUserExists), credentialsRequest{"jane@example.com", "password1"}, http.StatusConflict},
		{"weak password", validation.Errors{"password": "too short"}, credentialsRequest{"jane@example.com", "x"}, http.StatusUnprocessableEntity},
		{"missing fields", nil, credentialsRequest{}, http.StatusBadRequest},
		{"storage failure", errors.New("db down"), credentialsRequest{"jane@example.com", "password1"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &stubService{registerErr: tt.err})
			w := do(t, h.SetupRouter(), nil, 0, http.MethodPost, "/api/user/register", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{authErr: service.ErrInvalidCredentials})

	w := do(t, h.SetupRouter(), nil, 0, http.MethodPost, "/api/user/login", credentialsRequest{"jane@example.com", "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCheckoutRoutes_RequireAuth(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	for _, path := range []string{"/api/cart", "/api/checkout"} {
		w := do(t, router, nil, 0, http.MethodGet, path, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, w.Code)
		}
	}
}

func TestStartCheckout(t *testing.T) {
	svc := &stubService{view: &service.View{Step: service.StepDetails, Totals: &model.Totals{GrandTotal: 157500}}}
	h, auth := newTestHandler(t, svc)

	w := do(t, h.SetupRouter(), auth, 3, http.MethodPost, "/api/checkout", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if svc.lastUserID != 3 {
		t.Fatalf("user id = %d, want 3", svc.lastUserID)
	}

	var view service.View
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Totals == nil || view.Totals.GrandTotal != 157500 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestSignatureRoutes_DecodeServiceType(t *testing.T) {
	svc := &stubService{view: &service.View{}}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	w := do(t, router, auth, 1, http.MethodPut, "/api/checkout/contracts/DJ%20Services/draft", signatureRequest{Name: "Jane Doe"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.lastServiceType != "DJ Services" || svc.lastName != "Jane Doe" {
		t.Fatalf("unexpected args: %q %q", svc.lastServiceType, svc.lastName)
	}

	w = do(t, router, auth, 1, http.MethodPost, "/api/checkout/contracts/Photography/sign", nil)
	if w.Code != http.StatusOK || svc.lastServiceType != "Photography" {
		t.Fatalf("sign: status = %d, service type = %q", w.Code, svc.lastServiceType)
	}
}

func TestApplyDiscount_PassesCode(t *testing.T) {
	svc := &stubService{view: &service.View{}}
	h, auth := newTestHandler(t, svc)

	w := do(t, h.SetupRouter(), auth, 1, http.MethodPut, "/api/checkout/discount", codeRequest{Code: "save10"})
	if w.Code != http.StatusOK || svc.lastCode != "save10" {
		t.Fatalf("status = %d, code = %q", w.Code, svc.lastCode)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		message string
	}{
		{"validation", validation.Errors{"email": "is required"}, http.StatusUnprocessableEntity, "validation failed"},
		{"invalid items", &pricing.InvalidItemsError{IDs: []string{"a"}}, http.StatusUnprocessableEntity, ""},
		{"expired code", &service.CodeError{Code: "OLD", Status: coupon.StatusExpired}, http.StatusUnprocessableEntity, "this code has expired"},
		{"no checkout", service.ErrNoCheckout, http.StatusNotFound, ""},
		{"stale", service.ErrStaleCheckout, http.StatusConflict, ""},
		{"fees resolving", service.ErrFeesResolving, http.StatusConflict, ""},
		{"unsigned", service.ErrContractsUnsigned, http.StatusConflict, ""},
		{"lookup unavailable", fmt.Errorf("%w: timeout", coupon.ErrValidationUnavailable), http.StatusServiceUnavailable, ""},
		{"declined", &payment.PaymentError{Message: "Your card was declined."}, http.StatusPaymentRequired, "Your card was declined."},
		{"not confirmed", fmt.Errorf("%w after 3 attempts", booking.ErrNotConfirmed), http.StatusInternalServerError, msgBookingNotConfirmed},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{viewErr: tt.err, confirmErr: tt.err}
			h, auth := newTestHandler(t, svc)
			router := h.SetupRouter()

			w := do(t, router, auth, 1, http.MethodPut, "/api/checkout/referral", codeRequest{Code: "X"})
			if tt.name == "not confirmed" || tt.name == "declined" {
				w = do(t, router, auth, 1, http.MethodPost, "/api/checkout/confirm", confirmRequest{PaymentMethod: "pm"})
			}
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}

			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.message != "" && resp.Error != tt.message {
				t.Fatalf("error = %q, want %q", resp.Error, tt.message)
			}
		})
	}
}

func TestConfirmPayment(t *testing.T) {
	svc := &stubService{confirmation: &booking.Confirmation{
		Bookings:         []model.Booking{{ID: "b-1", FinalPayment: 112500}},
		RemainingBalance: 112500,
	}}
	h, auth := newTestHandler(t, svc)

	w := do(t, h.SetupRouter(), auth, 2, http.MethodPost, "/api/checkout/confirm", confirmRequest{PaymentMethod: "pm_card_visa"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.lastMethod != "pm_card_visa" {
		t.Fatalf("payment method = %q", svc.lastMethod)
	}

	var conf booking.Confirmation
	if err := json.NewDecoder(w.Body).Decode(&conf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conf.RemainingBalance != 112500 {
		t.Fatalf("RemainingBalance = %d", conf.RemainingBalance)
	}
}

func signedWebhook(t *testing.T, payload []byte, secret string, at time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(payload))
	unix := at.Unix()
	req.Header.Set(gateway.SignatureHeader, "t="+strconv.FormatInt(unix, 10)+",v1="+gateway.Sign(payload, secret, unix))
	return req
}

func TestPaymentWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"user_id":"1","item_count":"0"}}}}`)

	t.Run("valid signature", func(t *testing.T) {
		svc := &stubService{}
		h, _ := newTestHandler(t, svc)

		w := httptest.NewRecorder()
		h.SetupRouter().ServeHTTP(w, signedWebhook(t, payload, testWebhookSecret, time.Now()))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if len(svc.events) != 1 || svc.events[0].Data.Object.ID != "pi_1" {
			t.Fatalf("event not delivered: %+v", svc.events)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		svc := &stubService{}
		h, _ := newTestHandler(t, svc)

		w := httptest.NewRecorder()
		h.SetupRouter().ServeHTTP(w, signedWebhook(t, payload, "wrong", time.Now()))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if len(svc.events) != 0 {
			t.Fatalf("unsigned event must not be processed")
		}
	})

	t.Run("processing failure", func(t *testing.T) {
		svc := &stubService{webhookErr: errors.New("db down")}
		h, _ := newTestHandler(t, svc)

		w := httptest.NewRecorder()
		h.SetupRouter().ServeHTTP(w, signedWebhook(t, payload, testWebhookSecret, time.Now()))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
	})
}
