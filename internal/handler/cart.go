package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/weddingcart/internal/service"
)

// GetCart возвращает корзину пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "get cart")
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddCartItem добавляет пакет поставщика в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req service.AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := h.service.AddCartItem(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err, "add cart item")
		return
	}
	writeJSON(w, http.StatusCreated, cart)
}

// RemoveCartItem удаляет позицию из корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.RemoveCartItem(r.Context(), userID, chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeServiceError(w, err, "remove cart item")
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearCart(r.Context(), userID); err != nil {
		h.writeServiceError(w, err, "clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
