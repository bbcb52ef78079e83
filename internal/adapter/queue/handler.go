package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler consumes one delivery. Nil means ACK; an error means NACK,
// with requeue policy decided by the Router. Deliveries may arrive more
// than once, so handlers must tolerate replays.
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}
