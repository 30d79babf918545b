// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"docgate/internal/metrics"
	"docgate/internal/model"
)

// channel is the part of *amqp.Channel the client drives.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueInspect(name string) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitClient publishes usage events to per-tenant durable queues. One AMQP
// channel is shared and guarded by mu.
type RabbitClient struct {
	conn   *amqp.Connection
	URL    string
	logger *zap.Logger

	mu       sync.Mutex
	channel  channel
	declared map[string]bool
}

func NewRabbitClient(url string, logger *zap.Logger) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	c := newClient(ch, logger)
	c.conn = conn
	c.URL = url
	return c, nil
}

func newClient(ch channel, logger *zap.Logger) *RabbitClient {
	return &RabbitClient{
		channel:  ch,
		logger:   logger,
		declared: make(map[string]bool),
	}
}

// QueueName is the durable usage queue of a tenant.
func QueueName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_usage", tenantID)
}

// DLQName receives usage events the consumer rejected.
func DLQName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_usage_dlq", tenantID)
}

// GetConnection is used by consumers to open their own channels.
func (r *RabbitClient) GetConnection() *amqp.Connection {
	return r.conn
}

// DeclareQueue creates the tenant's dead-letter queue and then its usage
// queue routed to it. Repeated calls on the same client are no-ops.
func (r *RabbitClient) DeclareQueue(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.declareLocked(tenantID)
}

func (r *RabbitClient) declareLocked(tenantID string) error {
	if r.declared[tenantID] {
		return nil
	}

	queues := []struct {
		name string
		args amqp.Table
	}{
		{name: DLQName(tenantID)},
		{name: QueueName(tenantID), args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DLQName(tenantID),
		}},
	}
	for _, q := range queues {
		if _, err := r.channel.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	r.declared[tenantID] = true
	r.logger.Info("usage queues declared", zap.String("tenant", tenantID))
	return nil
}

// Publish routes msg to the tenant's usage queue through the default exchange.
func (r *RabbitClient) Publish(tenantID string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.declareLocked(tenantID); err != nil {
		return err
	}
	queueName := QueueName(tenantID)
	if err := r.channel.Publish("", queueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	return nil
}

// PublishUsageEvent sends ev as a persistent JSON message.
func (r *RabbitClient) PublishUsageEvent(ctx context.Context, ev model.UsageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode usage event: %w", err)
	}
	return r.Publish(ev.TenantID.String(), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Timestamp:    ev.CreatedAt,
		Type:         string(ev.Kind),
		Body:         body,
	})
}

func (r *RabbitClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.channel.Close(); err != nil {
		return err
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// UpdateQueueDepth refreshes the queue depth gauge for a tenant.
func (r *RabbitClient) UpdateQueueDepth(tenantID string) {
	r.mu.Lock()
	q, err := r.channel.QueueInspect(QueueName(tenantID))
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("failed to inspect usage queue", zap.String("tenant", tenantID), zap.Error(err))
		return
	}

	metrics.QueueDepth.WithLabelValues(tenantID).Set(float64(q.Messages))
}
