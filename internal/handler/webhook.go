package handler

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/weddingcart/internal/gateway"
)

const (
	maxWebhookBody   = 1 << 20
	webhookTolerance = 5 * time.Minute
)

// PaymentWebhook принимает события платёжного шлюза и создаёт бронирования после успешной оплаты.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if h.webhookSecret == "" {
		h.logger.Error("payment webhook secret not configured")
		writeError(w, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := gateway.ParseEvent(payload, r.Header.Get(gateway.SignatureHeader), h.webhookSecret, webhookTolerance, time.Now())
	if err != nil {
		h.logger.Warn("rejected payment webhook", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}

	if err := h.service.MaterializeBookings(r.Context(), event); err != nil {
		h.logger.Error("materialize bookings error", zap.String("eventID", event.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusOK)
}
