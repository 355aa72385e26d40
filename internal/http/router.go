package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
	"github.com/smallbiznis/smallbiznis-checkout/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/smallbiznis-checkout/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-checkout/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, paymentHandler *handler.PaymentHandler, rateLimiter *middleware.RateLimiter, registry *prometheus.Registry, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", paymentHandler.Health)
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	payments := r.Group(cfg.RoutePrefix)
	{
		payments.POST("/order", paymentHandler.CreateOrder)
		payments.GET("/order/:trackingId/status", paymentHandler.OrderStatus)
		payments.POST("/ipn", paymentHandler.IPN)
		payments.GET("/ipn", paymentHandler.IPN)
	}

	return r
}
