package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shoptrace/shoptrace-api/api/controllers"
	"github.com/shoptrace/shoptrace-api/api/middleware"
	ordersvc "github.com/shoptrace/shoptrace-api/internal/orders"
	productsvc "github.com/shoptrace/shoptrace-api/internal/products"
	"github.com/shoptrace/shoptrace-api/pkg/config"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	"github.com/shoptrace/shoptrace-api/pkg/metrics"
	"github.com/shoptrace/shoptrace-api/pkg/telemetry"
)

// Deps carries everything the router wires into its handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Telemetry    *telemetry.Telemetry
	HTTPMetrics  *metrics.HTTPMetrics
	PromRegistry *prometheus.Registry
	Store        controllers.Pinger
	Cache        controllers.Pinger
	Orders       ordersvc.Service
	Products     productsvc.Service
}

// NewRouter assembles the HTTP surface of the API.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger, deps.Telemetry),
		middleware.Metrics(deps.HTTPMetrics),
	)

	r.Get("/health", controllers.Health(deps.Config, deps.Logger, deps.Store, deps.Cache))

	if deps.PromRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", controllers.CreateOrder(deps.Orders, deps.Logger))
		r.Get("/{orderID}", controllers.GetOrder(deps.Orders, deps.Logger))
		r.Get("/user/{userID}", controllers.ListUserOrders(deps.Orders, deps.Logger))
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(deps.Products, deps.Logger))
		r.Get("/{productID}", controllers.GetProduct(deps.Products, deps.Logger))
	})

	if deps.Telemetry != nil {
		return otelhttp.NewHandler(r, "http.server",
			otelhttp.WithTracerProvider(deps.Telemetry.Provider()),
		)
	}
	return r
}
