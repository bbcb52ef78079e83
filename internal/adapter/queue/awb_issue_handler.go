package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/sameday"
	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
	"github.com/shopspring/decimal"
)

// AWBIssueConfig carries the fixed carrier parameters for storefront
// shipments.
type AWBIssueConfig struct {
	PickupPoint string
	ServiceID   int
}

// AWBIssueHandler consumes invoice.issued events and raises a waybill for
// the paid order. Carrier failures nack/requeue; ops fall back to the
// manual-AWB path when the carrier stays down.
type AWBIssueHandler struct {
	orders  usecase.OrderGateway
	carrier *sameday.Client
	cfg     AWBIssueConfig
	log     *slog.Logger
}

func NewAWBIssueHandler(orders usecase.OrderGateway, carrier *sameday.Client, cfg AWBIssueConfig) *AWBIssueHandler {
	return &AWBIssueHandler{
		orders:  orders,
		carrier: carrier,
		cfg:     cfg,
		log:     logging.New("awb-issue"),
	}
}

// HandleIssued is intended to be used with the JSON adapter
// (queue.JSONHandler[usecase.InvoiceIssuedMsg]).
func (h *AWBIssueHandler) HandleIssued(ctx context.Context, msg usecase.InvoiceIssuedMsg) error {
	order, err := h.orders.GetOrder(ctx, msg.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		// Nothing a redelivery can fix.
		h.log.Warn("order gone, dropping awb command", "order_id", msg.OrderID)
		return nil
	}
	if order.FulfillmentStatus != entity.FulfillmentProcessing {
		h.log.Info("order not awaiting shipment, skipping", "order_id", order.ID,
			"fulfillment_status", order.FulfillmentStatus)
		return nil
	}

	res, err := h.carrier.CreateAWB(ctx, sameday.AWBRequest{
		PickupPoint: h.cfg.PickupPoint,
		Service:     h.cfg.ServiceID,
		PackageType: 0, // parcel
		Recipient: sameday.AWBRecipient{
			Name:       order.ShippingAddress.Name,
			Phone:      order.ShippingAddress.Phone,
			County:     order.ShippingAddress.County,
			City:       order.ShippingAddress.City,
			Address:    order.ShippingAddress.Street,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		Parcels:        []sameday.AWBParcel{{Weight: decimal.NewFromInt(1)}},
		CashOnDelivery: decimal.Zero,
		ClientRef:      fmt.Sprintf("order:%s invoice:%s", order.ID, msg.Number),
	})
	if err != nil {
		return err
	}

	h.log.Info("awb created", "order_id", order.ID, "awb", res.AWBNumber,
		"cost", res.Cost, "currency", res.Currency)
	return h.orders.UpdateOrderStatuses(ctx, order.ID, order.PaymentStatus, entity.FulfillmentShipped)
}
