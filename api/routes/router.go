package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gemtrade-backend/api/controllers"
	"github.com/angelmondragon/gemtrade-backend/api/middleware"
	"github.com/angelmondragon/gemtrade-backend/internal/clients"
	"github.com/angelmondragon/gemtrade-backend/internal/inventory"
	"github.com/angelmondragon/gemtrade-backend/internal/sales"
	"github.com/angelmondragon/gemtrade-backend/pkg/config"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/redis"
)

// NewRouter wires every HTTP surface. redisClient may be nil, in which case
// idempotency keys are not enforced and readiness skips redis.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	salesService sales.Service,
	inventoryService inventory.Service,
	clientService clients.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	deps := map[string]controllers.Pinger{"db": dbP}
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		deps["redis"] = redisClient
		idemStore = redisClient
	}
	idem := middleware.Idempotency(idemStore, cfg.Eventing.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		// Only routes that move stock or rewrite a sale take an Idempotency-Key.
		r.With(idem).Post("/sales", controllers.SaleCreate(salesService, logg))
		r.Get("/sales", controllers.SaleList(salesService, logg))
		r.Get("/sales/{saleId}", controllers.SaleDetail(salesService, logg))
		r.With(idem).Put("/sales/{saleId}", controllers.SaleUpdate(salesService, logg))
		r.With(idem).Delete("/sales/{saleId}", controllers.SaleDelete(salesService, logg))

		r.Post("/inventory", controllers.InventoryCreate(inventoryService, logg))
		r.Get("/inventory", controllers.InventoryList(inventoryService, logg))
		r.Get("/inventory/code/{gemCode}", controllers.InventoryByCode(inventoryService, logg))
		r.Get("/inventory/{itemId}", controllers.InventoryDetail(inventoryService, logg))
		r.Patch("/inventory/{itemId}", controllers.InventoryUpdate(inventoryService, logg))
		r.With(idem).Post("/inventory/{itemId}/adjust", controllers.InventoryAdjust(inventoryService, logg))
		r.Get("/inventory/{itemId}/movements", controllers.InventoryMovements(inventoryService, logg))

		r.Route("/clients", func(r chi.Router) {
			r.Post("/", controllers.ClientCreate(clientService, logg))
			r.Get("/", controllers.ClientList(clientService, logg))
			r.Get("/{clientId}", controllers.ClientDetail(clientService, logg))
		})
	})

	return r
}
