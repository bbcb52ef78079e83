package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
)

// WebhookHandler receives normalized payment-completion callbacks from
// the storefront's payment integrations (Stripe, Revolut).
type WebhookHandler struct {
	svc *usecase.InvoiceService
}

func NewWebhookHandler(svc *usecase.InvoiceService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

type paymentWebhookReq struct {
	OrderID  string `json:"orderId" binding:"required"`
	EventID  string `json:"eventId"`
	Provider string `json:"provider"`
	Status   string `json:"status" binding:"required"`
	Method   string `json:"method"`
}

type paymentWebhookResp struct {
	InvoiceID string `json:"invoiceId"`
	Number    string `json:"number"`
	Status    string `json:"status"`
}

// PaymentCompleted handles POST /v1/webhooks/payment.
func (h *WebhookHandler) PaymentCompleted(c *gin.Context) {
	var req paymentWebhookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	inv, err := h.svc.GenerateInvoiceAfterPayment(ctx, req.OrderID, usecase.PaymentEvent{
		EventID:  req.EventID,
		Provider: req.Provider,
		Status:   req.Status,
		Method:   req.Method,
	})
	if err != nil {
		logging.From(c).Error("invoice generation failed", "order_id", req.OrderID, "err", err)
		status := http.StatusInternalServerError
		switch {
		case usecase.IsNotFound(err):
			status = http.StatusNotFound
		case errors.Is(err, usecase.ErrDuplicateEvent):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, paymentWebhookResp{
		InvoiceID: inv.ID,
		Number:    inv.Number,
		Status:    string(inv.Status),
	})
}
