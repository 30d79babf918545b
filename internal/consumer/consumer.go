// internal/consumer/consumer.go
package consumer

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"docgate/internal/messaging"
	"docgate/internal/worker"
)

// MessageHandlerFunc processes one delivery and must ack or nack it.
type MessageHandlerFunc func(ctx context.Context, tenantID string, delivery amqp.Delivery)

// Consumer drains one tenant's usage queue into a shared worker pool.
type Consumer struct {
	tenantID string
	tag      string
	channel  *amqp.Channel
	handler  MessageHandlerFunc
	pool     *worker.WorkerPool
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func newConsumer(tenantID string, pool *worker.WorkerPool, handler MessageHandlerFunc, logger *zap.Logger) *Consumer {
	return &Consumer{
		tenantID: tenantID,
		tag:      "usage-" + tenantID,
		handler:  handler,
		pool:     pool,
		logger:   logger.With(zap.String("tenant", tenantID)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// StartConsumer opens a channel on conn with a prefetch equal to the pool size
// and begins consuming the tenant's usage queue. The queue must already exist.
func StartConsumer(conn *amqp.Connection, tenantID string, pool *worker.WorkerPool, handler MessageHandlerFunc, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("tenant %s: failed to open channel: %w", tenantID, err)
	}
	if err := ch.Qos(pool.Size(), 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("tenant %s: failed to set prefetch: %w", tenantID, err)
	}

	c := newConsumer(tenantID, pool, handler, logger)
	c.channel = ch

	deliveries, err := ch.Consume(messaging.QueueName(tenantID), c.tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("tenant %s: failed to start consuming: %w", tenantID, err)
	}

	go c.run(deliveries)

	c.logger.Info("started usage consumer", zap.String("queue", messaging.QueueName(tenantID)))
	return c, nil
}

func (c *Consumer) TenantID() string {
	return c.tenantID
}

// run hands deliveries to the pool until Stop is called or the broker closes
// the delivery channel.
func (c *Consumer) run(deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Info("delivery channel closed")
				return
			}
			err := c.pool.Submit(ctx, func(jobCtx context.Context) {
				c.handler(jobCtx, c.tenantID, d)
			})
			if err != nil {
				// Requeue so the message survives a shutdown.
				_ = d.Nack(false, true)
			}
		case <-c.stop:
			if c.channel != nil {
				_ = c.channel.Cancel(c.tag, false)
			}
			return
		}
	}
}

// Stop cancels consumption and waits for the dispatch loop to exit. Jobs
// already handed to the pool keep running.
func (c *Consumer) Stop() {
	close(c.stop)
	<-c.done
	if c.channel != nil {
		_ = c.channel.Close()
	}
	c.logger.Info("stopped usage consumer")
}
