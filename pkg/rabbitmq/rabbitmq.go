package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	amqp "github.com/streadway/amqp"

	"kasir/internal/models"
)

// StockAlertQueue is the queue low-stock alerts are published to.
const StockAlertQueue = "stock_alerts"

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
}

// NewClient connects to RabbitMQ, opens a channel and declares the stock
// alert queue.
func NewClient(cfg Config) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		StockAlertQueue, // name
		true,            // durable (persists messages across broker restarts)
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare %s queue: %w", StockAlertQueue, err)
	}

	log.Info().Str("queue", StockAlertQueue).Msg("RabbitMQ client connected")

	return &Client{
		conn:    conn,
		channel: ch,
	}, nil
}

// Publish sends a message to the given exchange and routing key.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	err := c.channel.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishLowStockAlert pushes a low-stock notification for the product onto
// the stock alert queue.
func (c *Client) PublishLowStockAlert(product *models.Product) error {
	threshold := models.DefaultMinStockLevel
	if product.MinStockLevel != nil {
		threshold = *product.MinStockLevel
	}
	payload := map[string]interface{}{
		"product_id":     product.ID,
		"name":           product.Name,
		"stock_quantity": product.StockQuantity,
		"threshold":      threshold,
		"alerted_at":     time.Now().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stock alert: %w", err)
	}
	// Default exchange routes directly to the queue by name.
	return c.Publish("", StockAlertQueue, body)
}

// ConsumeStockAlerts starts consuming the stock alert queue, invoking
// handler per delivery. Messages are acked on a nil handler error and
// nacked (requeued) otherwise. Blocks until the channel closes.
func (c *Client) ConsumeStockAlerts(handler func(msg amqp.Delivery) error) error {
	msgs, err := c.channel.Consume(
		StockAlertQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for msg := range msgs {
		if err := handler(msg); err != nil {
			log.Warn().Err(err).Msg("stock alert handler failed, requeueing")
			if nackErr := msg.Nack(false, true); nackErr != nil {
				log.Error().Err(nackErr).Msg("failed to nack message")
			}
			continue
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ack message")
		}
	}
	return nil
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			return fmt.Errorf("failed to close channel: %w", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return nil
}
