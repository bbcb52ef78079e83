package http

import (
	"github.com/gin-gonic/gin"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/http/middleware"
	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(wh *WebhookHandler, ih *InvoiceHandler, sh *ShippingHandler, th *TokenHandler, authz *middleware.Authz) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.MetricsMiddleware())

	l := logging.New("http")
	r.Use(middleware.Logging(l))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/v1/token", th.IssueToken)

	// Payment webhooks authenticate via the shared client credential of
	// the checkout integration.
	r.POST("/v1/webhooks/payment", authz.Require("invoices.write"), wh.PaymentCompleted)

	v1 := r.Group("/v1")
	{
		v1.GET("/invoices/:id/pdf", authz.Require("invoices.read"), ih.GetPDF)
		v1.GET("/invoices/:id/payment-status", authz.Require("invoices.read"), ih.PaymentStatus)
		v1.POST("/invoices/:id/send", authz.Require("invoices.write"), ih.Send)
		v1.POST("/invoices/:id/cancel", authz.Require("invoices.write"), ih.Cancel)
	}

	if sh != nil {
		ship := r.Group("/v1")
		{
			ship.POST("/shipments/awb", authz.Require("shipping.write"), sh.CreateAWB)
			ship.GET("/shipments/awb/:awb/label", authz.Require("shipping.read"), sh.GetLabel)
			ship.GET("/shipments/awb/:awb/tracking", authz.Require("shipping.read"), sh.Track)
			ship.GET("/shipping/counties", authz.Require("shipping.read"), sh.Counties)
			ship.GET("/shipping/cities", authz.Require("shipping.read"), sh.Cities)
			ship.GET("/shipping/services", authz.Require("shipping.read"), sh.Services)
			ship.GET("/shipping/pickup-points", authz.Require("shipping.read"), sh.PickupPoints)
		}
	}

	return r
}
