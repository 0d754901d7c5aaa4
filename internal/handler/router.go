package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/weddingcart/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Middleware)
	}

	r.Post("/api/webhooks/payment", h.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Route("/api/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/api/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddCartItem)
				r.Delete("/items/{itemID}", h.RemoveCartItem)
			})

			r.Route("/api/checkout", func(r chi.Router) {
				r.Post("/", h.StartCheckout)
				r.Get("/", h.GetCheckout)
				r.Delete("/", h.AbandonCheckout)

				r.Put("/discount", h.ApplyDiscount)
				r.Delete("/discount", h.RemoveDiscount)
				r.Put("/referral", h.ApplyReferral)
				r.Delete("/referral", h.RemoveReferral)

				r.Put("/details", h.UpdateDetails)

				r.Post("/contracts", h.BeginContracts)
				r.Put("/contracts/{serviceType}/draft", h.DraftSignature)
				r.Post("/contracts/{serviceType}/sign", h.ConfirmSignature)
				r.Delete("/contracts/{serviceType}/sign", h.UnsetSignature)

				r.Post("/intent", h.CreatePaymentIntent)
				r.Put("/card", h.UpdateCard)
				r.Put("/terms", h.AcceptTerms)
				r.Post("/confirm", h.ConfirmPayment)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
