package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestCreateIntent_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/payment_intents" {
			t.Fatalf("path = %s, want /v1/payment_intents", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Fatalf("authorization = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("amount") != "140000" || r.PostForm.Get("currency") != "usd" {
			t.Fatalf("unexpected form: %v", r.PostForm)
		}
		if r.PostForm.Get("metadata[user_id]") != "42" {
			t.Fatalf("metadata not forwarded: %v", r.PostForm)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Intent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret_abc",
			Amount:       140000,
			Currency:     "usd",
			Status:       "requires_payment_method",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	intent, err := client.CreateIntent(ctx, 140000, "usd", map[string]string{"user_id": "42"})
	if err != nil {
		t.Fatalf("CreateIntent error: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret_abc" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestConfirmCardPayment_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_123/confirm" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("payment_method") != "pm_card_visa" {
			t.Fatalf("payment_method = %q", r.PostForm.Get("payment_method"))
		}
		if r.PostForm.Get("payment_method_data[billing_details][email]") != "jane@example.com" {
			t.Fatalf("billing email not sent: %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_123", Status: StatusSucceeded})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	intent, err := client.ConfirmCardPayment(context.Background(), "pi_123_secret_abc", "pm_card_visa", BillingDetails{
		Name:  "Jane Doe",
		Email: "jane@example.com",
	})
	if err != nil {
		t.Fatalf("ConfirmCardPayment error: %v", err)
	}
	if intent.Status != StatusSucceeded {
		t.Fatalf("status = %q, want succeeded", intent.Status)
	}
}

func TestConfirmCardPayment_Declined(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	_, err := client.ConfirmCardPayment(context.Background(), "pi_123_secret_abc", "pm_x", BillingDetails{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Your card was declined." || apiErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestGetIntent_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/v1/payment_intents/pi_123" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "" {
			t.Fatalf("GET must not carry a form body")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_123", Status: StatusSucceeded})
	}))
	defer ts.Close()

	intent, err := NewClient(ts.URL, "sk_test").GetIntent(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("GetIntent error: %v", err)
	}
	if intent.Status != StatusSucceeded {
		t.Fatalf("status = %q, want succeeded", intent.Status)
	}
}

func TestCreateIntent_MetadataLimits(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	tooMany := make(map[string]string, MaxMetadataKeys+1)
	for i := 0; i <= MaxMetadataKeys; i++ {
		tooMany["k"+strconv.Itoa(i)] = "v"
	}
	if _, err := client.CreateIntent(context.Background(), 100, "usd", tooMany); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge for %d keys, got %v", len(tooMany), err)
	}

	tooLong := map[string]string{"note": strings.Repeat("x", MaxMetadataValueLen+1)}
	if _, err := client.CreateIntent(context.Background(), 100, "usd", tooLong); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge for a long value, got %v", err)
	}

	if calls != 0 {
		t.Fatalf("oversized metadata must not reach the gateway, got %d calls", calls)
	}
}

func TestConfirmCardPayment_MalformedSecret(t *testing.T) {
	client := NewClient("http://localhost", "sk_test")
	if _, err := client.ConfirmCardPayment(context.Background(), "garbage", "pm_x", BillingDetails{}); err == nil {
		t.Fatalf("expected error for malformed client secret")
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient("", "")
	_, err := client.CreateIntent(context.Background(), 1, "usd", nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Unix(1_780_000_000, 0)
	sig := Sign(payload, "whsec", now.Unix())
	header := "t=1780000000,v1=" + sig

	if err := VerifySignature(payload, header, "whsec", 5*time.Minute, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(payload, header, "other", 5*time.Minute, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong secret, got %v", err)
	}
	if err := VerifySignature(payload, header, "whsec", 5*time.Minute, now.Add(time.Hour)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for old timestamp, got %v", err)
	}
	if err := VerifySignature(payload, "", "whsec", 0, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for empty header, got %v", err)
	}

	ev, err := ParseEvent(payload, header, "whsec", 0, now)
	if err != nil {
		t.Fatalf("ParseEvent error: %v", err)
	}
	if ev.Type != EventPaymentSucceeded {
		t.Fatalf("type = %q", ev.Type)
	}
}
