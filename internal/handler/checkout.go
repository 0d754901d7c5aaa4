package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/weddingcart/internal/model"
	"github.com/mmeshcher/weddingcart/internal/service"
)

type codeRequest struct {
	Code string `json:"code"`
}

type signatureRequest struct {
	Name string `json:"name"`
}

type cardRequest struct {
	Ready    bool `json:"ready"`
	Complete bool `json:"complete"`
}

type termsRequest struct {
	Accepted bool `json:"accepted"`
}

type confirmRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type viewFunc func(ctx context.Context, userID int64) (*service.View, error)

// respondView выполняет операцию и возвращает обновлённое состояние оформления.
func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, op string, status int, fn viewFunc) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	view, err := fn(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, op)
		return
	}
	writeJSON(w, status, view)
}

func serviceTypeParam(r *http.Request) string {
	raw := chi.URLParam(r, "serviceType")
	if st, err := url.PathUnescape(raw); err == nil {
		return st
	}
	return raw
}

// StartCheckout начинает или перезапускает оформление.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, "start checkout", http.StatusCreated, h.service.StartCheckout)
}

// GetCheckout возвращает состояние оформления.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, "get checkout", http.StatusOK, h.service.GetCheckout)
}

// AbandonCheckout отменяет оформление.
func (h *Handler) AbandonCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.AbandonCheckout(r.Context(), userID); err != nil {
		h.writeServiceError(w, err, "abandon checkout")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDiscount применяет промокод.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondView(w, r, "apply discount", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.ApplyDiscount(ctx, userID, req.Code)
	})
}

// RemoveDiscount снимает промокод.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, "remove discount", http.StatusOK, h.service.RemoveDiscount)
}

// ApplyReferral применяет реферальный код.
func (h *Handler) ApplyReferral(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondView(w, r, "apply referral", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.ApplyReferral(ctx, userID, req.Code)
	})
}

// RemoveReferral снимает реферальный код.
func (h *Handler) RemoveReferral(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, "remove referral", http.StatusOK, h.service.RemoveReferral)
}

// UpdateDetails сохраняет данные пары, платёжный адрес и сведения о мероприятии.
func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutDetails
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondView(w, r, "update details", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.UpdateDetails(ctx, userID, req)
	})
}

// BeginContracts начинает шаг подписания договоров.
func (h *Handler) BeginContracts(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, "begin contracts", http.StatusOK, h.service.BeginContracts)
}

// DraftSignature сохраняет набранное имя подписанта.
func (h *Handler) DraftSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st := serviceTypeParam(r)
	h.respondView(w, r, "draft signature", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.DraftSignature(ctx, userID, st, req.Name)
	})
}

// ConfirmSignature подтверждает подпись договора.
func (h *Handler) ConfirmSignature(w http.ResponseWriter, r *http.Request) {
	st := serviceTypeParam(r)
	h.respondView(w, r, "confirm signature", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.ConfirmSignature(ctx, userID, st)
	})
}

// UnsetSignature отменяет подпись договора.
func (h *Handler) UnsetSignature(w http.ResponseWriter, r *http.Request) {
	st := serviceTypeParam(r)
	h.respondView(w, r, "unset signature", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.UnsetSignature(ctx, userID, st)
	})
}

// CreatePaymentIntent создаёт намерение платежа и возвращает client secret для виджета карты.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	intent, err := h.service.CreatePaymentIntent(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "create payment intent")
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// UpdateCard сохраняет статус виджета карты.
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondView(w, r, "update card", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.UpdateCard(ctx, userID, req.Ready, req.Complete)
	})
}

// AcceptTerms сохраняет согласие с условиями.
func (h *Handler) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondView(w, r, "accept terms", http.StatusOK, func(ctx context.Context, userID int64) (*service.View, error) {
		return h.service.AcceptTerms(ctx, userID, req.Accepted)
	})
}

// ConfirmPayment подтверждает оплату и возвращает подтверждённые бронирования.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := h.service.ConfirmPayment(r.Context(), userID, req.PaymentMethod)
	if err != nil {
		h.writeServiceError(w, err, "confirm payment")
		return
	}
	writeJSON(w, http.StatusOK, conf)
}
