package api

import (
	"net/http"
	"time"

	"github.com/catedral-dev/catedral/sudoapi"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/riandyrn/otelchi"
)

type API struct {
	base *sudoapi.BaseAPI
}

// New declares a new API instance
func New(base *sudoapi.BaseAPI) *API {
	return &API{base}
}

func (s *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(otelchi.Middleware("catedral", otelchi.WithChiRoutes(r)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: flags.CORSOrigins.Value(),
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)

	r.Group(func(r chi.Router) {
		// Gateway calls are bounded separately; this only caps the whole request.
		r.Use(middleware.Timeout(45 * time.Second))

		r.Route("/donations", func(r chi.Router) {
			r.Post("/", s.createDonation)
			r.Post("/status", s.donationStatus)
			r.Post("/{id}/checkout", s.createCheckout)
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", s.charge)
			r.Post("/intent", s.createIntent)
		})
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/payment-provider", s.mercadoPagoWebhook)
			r.Post("/stripe", s.stripeWebhook)
		})
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.campaigns)
			r.Get("/{slug}", s.campaign)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.MustBeAdmin)
			r.Get("/gateways/{gateway}/settings", s.gatewaySettings)
			r.Put("/gateways/{gateway}/settings", s.updateGatewaySettings)
			r.Get("/donations", s.adminDonations)
			r.Get("/notifications", s.paymentNotifications)
			r.Get("/flags", s.adminFlags)
			r.Get("/campaigns", s.adminCampaigns)
			r.Post("/campaigns", s.createCampaign)
			r.Patch("/campaigns/{id}", s.updateCampaign)
		})
	})

	return r
}

func (s *API) healthz(w http.ResponseWriter, r *http.Request) {
	returnData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.base.Ping(r.Context()); err != nil {
		returnData(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	returnData(w, http.StatusOK, map[string]string{"status": "ok"})
}
