package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"soknad-workers/internal/common/config"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
)

const (
	fieldKey   = "key"
	fieldValue = "value"
	batchSize  = 10
)

// StreamConsumer reads the inbound stream as a member of a consumer group.
// A message is acknowledged only after every handler succeeded, or when the
// error policy decides to drop or dead-letter it. Unacknowledged messages are
// reclaimed once they have been idle for ClaimMinIdle.
type StreamConsumer struct {
	rdb        *redis.Client
	cfg        config.BusConfig
	dispatcher Dispatcher
	errHandler *errors.ErrorHandler
	logger     logger.Logger
	metrics    *metrics.Metrics
}

func NewStreamConsumer(rdb *redis.Client, cfg config.BusConfig, d Dispatcher, log logger.Logger, m *metrics.Metrics) *StreamConsumer {
	log = log.WithFields(map[string]interface{}{
		"component": "stream-consumer",
		"stream":    cfg.InboundStream,
		"group":     cfg.Group,
	})
	return &StreamConsumer{
		rdb:        rdb,
		cfg:        cfg,
		dispatcher: d,
		errHandler: errors.NewErrorHandler(log, cfg.MaxDeliveries),
		logger:     log,
		metrics:    m,
	}
}

// EnsureGroup creates the stream and consumer group if they are missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.InboundStream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled, with cfg.Workers concurrent consumers.
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("%s-%d", c.cfg.Consumer, i)
		p.Go(func(ctx context.Context) error {
			return c.loop(ctx, consumer)
		})
	}

	c.logger.Info("stream consumers started", map[string]interface{}{"workers": workers})
	return p.Wait()
}

func (c *StreamConsumer) loop(ctx context.Context, consumer string) error {
	for ctx.Err() == nil {
		if _, err := c.Poll(ctx, consumer); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("stream poll failed", map[string]interface{}{
				"error":    err,
				"consumer": consumer,
			})
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
	return nil
}

// Poll reclaims idle pending messages, then reads new ones, and processes
// them. It returns how many messages were processed.
func (c *StreamConsumer) Poll(ctx context.Context, consumer string) (int, error) {
	processed := 0

	claimed, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.InboundStream,
		Group:    c.cfg.Group,
		Consumer: consumer,
		MinIdle:  config.GetDuration(c.cfg.ClaimMinIdleMs),
		Start:    "0-0",
		Count:    batchSize,
	}).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("xautoclaim: %w", err)
	}
	for _, xm := range claimed {
		c.process(ctx, xm, c.deliveries(ctx, xm.ID))
		processed++
	}

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: consumer,
		Streams:  []string{c.cfg.InboundStream, ">"},
		Count:    batchSize,
		Block:    config.GetDuration(c.cfg.BlockMs),
	}).Result()
	if err == redis.Nil {
		return processed, nil
	}
	if err != nil {
		return processed, fmt.Errorf("xreadgroup: %w", err)
	}

	for _, s := range streams {
		for _, xm := range s.Messages {
			c.process(ctx, xm, 1)
			processed++
		}
	}
	return processed, nil
}

func (c *StreamConsumer) process(ctx context.Context, xm redis.XMessage, deliveries int64) {
	msg := Message{
		ID:         xm.ID,
		Key:        stringField(xm.Values, fieldKey),
		Value:      []byte(stringField(xm.Values, fieldValue)),
		Deliveries: deliveries,
	}

	err := c.dispatcher.Dispatch(ctx, msg)
	if err == nil {
		c.ack(ctx, msg.ID, "ack")
		return
	}

	switch c.errHandler.HandleMessageError(msg.ID, deliveries, err) {
	case errors.Drop:
		c.ack(ctx, msg.ID, errors.Drop.String())
	case errors.DeadLetter:
		if dlqErr := c.deadLetter(ctx, msg, err); dlqErr != nil {
			c.logger.Error("dead-letter publish failed, message stays pending", map[string]interface{}{
				"error":     dlqErr,
				"messageId": msg.ID,
			})
			c.metrics.BusDispositions.WithLabelValues(errors.Redeliver.String()).Inc()
			return
		}
		c.ack(ctx, msg.ID, errors.DeadLetter.String())
	default:
		c.metrics.BusDispositions.WithLabelValues(errors.Redeliver.String()).Inc()
	}
}

func (c *StreamConsumer) ack(ctx context.Context, id, disposition string) {
	if err := c.rdb.XAck(ctx, c.cfg.InboundStream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Error("xack failed", map[string]interface{}{"error": err, "messageId": id})
		return
	}
	c.metrics.BusDispositions.WithLabelValues(disposition).Inc()
}

func (c *StreamConsumer) deadLetter(ctx context.Context, msg Message, cause error) error {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DeadLetterStream,
		Values: map[string]interface{}{
			fieldKey:     msg.Key,
			fieldValue:   msg.Value,
			"originalId": msg.ID,
			"deliveries": msg.Deliveries,
			"error":      cause.Error(),
		},
	}).Err()
}

// deliveries reads the delivery counter of a reclaimed message. Claiming
// already incremented it.
func (c *StreamConsumer) deliveries(ctx context.Context, id string) int64 {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.InboundStream,
		Group:  c.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 2
	}
	return pending[0].RetryCount
}

func stringField(values map[string]interface{}, name string) string {
	switch v := values[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// StreamPublisher appends records to a Redis stream, trimmed to about maxLen.
type StreamPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(rdb *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, key string, value []byte) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{fieldKey: key, fieldValue: value},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
