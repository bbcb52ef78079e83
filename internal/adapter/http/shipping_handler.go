package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/cache"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/sameday"
	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
)

// ShippingHandler exposes the carrier operations the admin UI needs:
// AWB creation, label download, tracking and geolocation lookups.
type ShippingHandler struct {
	carrier  *sameday.Client
	tracking *cache.RedisTrackingCache // optional
}

func NewShippingHandler(carrier *sameday.Client, tracking *cache.RedisTrackingCache) *ShippingHandler {
	return &ShippingHandler{carrier: carrier, tracking: tracking}
}

// CreateAWB handles POST /v1/shipments/awb.
func (h *ShippingHandler) CreateAWB(c *gin.Context) {
	var req sameday.AWBRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	res, err := h.carrier.CreateAWB(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"awbNumber":     res.AWBNumber,
		"parcelNumbers": res.ParcelNumbers,
		"cost":          res.Cost,
		"currency":      res.Currency,
	})
}

// GetLabel handles GET /v1/shipments/awb/:awb/label.
func (h *ShippingHandler) GetLabel(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	pdf, err := h.carrier.GetAWBLabel(ctx, c.Param("awb"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Track handles GET /v1/shipments/awb/:awb/tracking, serving from the
// short-lived cache when a recent lookup exists.
func (h *ShippingHandler) Track(c *gin.Context) {
	awb := c.Param("awb")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if h.tracking != nil {
		if payload, ok, err := h.tracking.Get(ctx, awb); err == nil && ok {
			c.Data(http.StatusOK, "application/json", payload)
			return
		}
	}

	res, err := h.carrier.TrackAWB(ctx, awb)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.tracking != nil {
		if payload, err := json.Marshal(res); err == nil {
			if err := h.tracking.Set(ctx, awb, payload); err != nil {
				logging.From(c).Warn("tracking cache write failed", "awb", awb, "err", err)
			}
		}
	}
	c.JSON(http.StatusOK, res)
}

// Counties handles GET /v1/shipping/counties.
func (h *ShippingHandler) Counties(c *gin.Context) {
	h.list(c, func(ctx context.Context) (any, error) { return h.carrier.GetCounties(ctx) })
}

// Cities handles GET /v1/shipping/cities?county=.
func (h *ShippingHandler) Cities(c *gin.Context) {
	county := c.Query("county")
	h.list(c, func(ctx context.Context) (any, error) { return h.carrier.GetCities(ctx, county) })
}

// Services handles GET /v1/shipping/services.
func (h *ShippingHandler) Services(c *gin.Context) {
	h.list(c, func(ctx context.Context) (any, error) { return h.carrier.GetServices(ctx) })
}

// PickupPoints handles GET /v1/shipping/pickup-points.
func (h *ShippingHandler) PickupPoints(c *gin.Context) {
	h.list(c, func(ctx context.Context) (any, error) { return h.carrier.GetPickupPoints(ctx) })
}

func (h *ShippingHandler) list(c *gin.Context, fetch func(ctx context.Context) (any, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	out, err := fetch(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// No automatic fallback here: carrier failures surface so ops can use
// the manual-AWB path.
func (h *ShippingHandler) fail(c *gin.Context, err error) {
	var authErr *sameday.AuthenticationError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "carrier_auth_failed"})
		return
	}
	var apiErr *sameday.CarrierAPIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "carrier_error", "detail": apiErr.RawBody})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
