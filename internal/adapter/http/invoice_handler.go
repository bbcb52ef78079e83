package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
)

type InvoiceHandler struct {
	svc *usecase.InvoiceService
}

func NewInvoiceHandler(svc *usecase.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

// GetPDF handles GET /v1/invoices/:id/pdf. Local invoices have no stored
// rendering, so absence of provider data answers 204, not an error.
func (h *InvoiceHandler) GetPDF(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	pdf, err := h.svc.GetInvoicePDF(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if pdf == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdf)
}

type sendInvoiceReq struct {
	To string `json:"to"`
}

// Send handles POST /v1/invoices/:id/send.
func (h *InvoiceHandler) Send(c *gin.Context) {
	var req sendInvoiceReq
	_ = c.ShouldBindJSON(&req)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	sent, err := h.svc.SendInvoiceByEmail(ctx, c.Param("id"), req.To)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

// PaymentStatus handles GET /v1/invoices/:id/payment-status.
func (h *InvoiceHandler) PaymentStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	paid, err := h.svc.CheckInvoicePaymentStatus(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paid": paid})
}

// Cancel handles POST /v1/invoices/:id/cancel.
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	if err := h.svc.CancelInvoice(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InvoiceHandler) fail(c *gin.Context, err error) {
	if usecase.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
