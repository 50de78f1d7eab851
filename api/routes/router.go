package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tripops-backend/api/controllers"
	"github.com/angelmondragon/tripops-backend/api/middleware"
	"github.com/angelmondragon/tripops-backend/internal/drivers"
	"github.com/angelmondragon/tripops-backend/internal/trips"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/config"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs. Idempotency and
// Gatherer are optional.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Readiness   map[string]controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Trips       trips.Service
	Wallets     wallets.Service
	Drivers     drivers.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Routes stay flat inside the group: group middleware wraps each
		// endpoint, so the idempotency rules see the full route pattern.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(p.Idempotency, logg))

			r.Post("/trips", controllers.TripCreate(p.Trips, logg))
			r.Get("/trips/{tripId}", controllers.TripGet(p.Trips, logg))
			r.Delete("/trips/{tripId}", controllers.TripDelete(p.Trips, logg))
			r.Put("/trips/{tripId}/crew", controllers.TripAssignCrew(p.Trips, logg))
			r.Post("/trips/{tripId}/type", controllers.TripChangeType(p.Trips, logg))
			r.Post("/trips/{tripId}/cascade/retry", controllers.TripRetryCascade(p.Trips, logg))
			r.Put("/trips/{tripId}/orders", controllers.TripAttachOrders(p.Trips, logg))
			r.Put("/trips/{tripId}/voucher", controllers.TripUpdateVoucher(p.Trips, logg))

			r.Get("/wallets/{walletId}", controllers.WalletGet(p.Wallets, logg))
			r.Post("/wallets/{walletId}/credits", controllers.WalletCredit(p.Wallets, logg))

			r.Get("/drivers/{driverId}", controllers.DriverGet(p.Drivers, logg))
			r.Post("/drivers/{driverId}/leave-requests", controllers.DriverRequestLeave(p.Drivers, logg))
		})
	})

	return r
}
