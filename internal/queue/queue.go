package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// DispatchQueue carries campaign ids from the API server to the worker.
const DispatchQueue = "campaign_dispatch"

// Publisher is the narrow interface the service layer depends on.
type Publisher interface {
	PublishDispatch(campaignID int) error
}

type dispatchJob struct {
	CampaignID int `json:"campaign_id"`
}

// AMQPQueue wraps one connection/channel pair against the dispatch queue.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

func Dial(url string, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		DispatchQueue, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &AMQPQueue{conn: conn, ch: ch, log: log}, nil
}

func (q *AMQPQueue) PublishDispatch(campaignID int) error {
	body, err := json.Marshal(dispatchJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",            // exchange
		DispatchQueue, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume delivers campaign ids to handle until ctx is done. Messages are
// acked manually: a handler error requeues the message once, then drops it
// (boot-time recovery re-publishes stuck campaigns, so a dropped message is
// not a lost campaign).
func (q *AMQPQueue) Consume(ctx context.Context, handle func(campaignID int) error) error {
	msgs, err := q.ch.Consume(
		DispatchQueue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume channel closed")
			}
			var job dispatchJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				q.log.Warn("invalid dispatch job, dropping", zap.Error(err))
				d.Ack(false)
				continue
			}
			if err := handle(job.CampaignID); err != nil {
				q.log.Error("dispatch job failed",
					zap.Int("campaign_id", job.CampaignID),
					zap.Bool("redelivered", d.Redelivered),
					zap.Error(err),
				)
				d.Nack(false, !d.Redelivered)
				continue
			}
			d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
