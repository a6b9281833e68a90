package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
)

const (
	fetchBatchSize    = 10
	fetchMaxWait      = 5 * time.Second
	fetchErrorBackoff = 1 * time.Second
	submitNakDelay    = 5 * time.Second
)

// ackable is the subset of *nats.Msg the consumer acts on.
type ackable interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// Consumer pulls reconcile jobs from JetStream and hands them to the worker pool.
type Consumer struct {
	client    ClientInterface
	submitter usecase.JobSubmitter
	cfg       config.QueueConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	stopWg sync.WaitGroup
}

// NewConsumer creates a consumer. Call Setup before Start.
func NewConsumer(client ClientInterface, submitter usecase.JobSubmitter, cfg config.QueueConfig, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		client:    client,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger.Named("reconcile_consumer"),
	}
}

// Setup creates or updates the stream and the durable consumer.
func (c *Consumer) Setup(ctx context.Context) error {
	if err := c.client.SetupStream(ctx, StreamConfig(c.cfg)); err != nil {
		return fmt.Errorf("failed to setup reconcile stream '%s': %w", c.cfg.Stream, err)
	}
	consumerCfg := ConsumerConfig(c.cfg)
	if err := c.client.SetupConsumer(ctx, c.cfg.Stream, consumerCfg); err != nil {
		return fmt.Errorf("failed to setup reconcile consumer '%s': %w", consumerCfg.Durable, err)
	}
	c.logger.Info("Reconcile queue setup complete",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer", consumerCfg.Durable),
	)
	return nil
}

// Start binds the pull subscription and runs the fetch loop in the background.
func (c *Consumer) Start(ctx context.Context) error {
	durable := ConsumerConfig(c.cfg).Durable
	sub, err := c.client.SubscribePull(c.cfg.Stream, c.cfg.Subject, durable)
	if err != nil {
		return fmt.Errorf("failed to create reconcile pull subscription: %w", err)
	}

	derivedCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.stopWg.Add(1)
	go c.fetchLoop(derivedCtx, sub)

	c.logger.Info("Reconcile consumer started", zap.String("subject", c.cfg.Subject), zap.String("durable", durable))
	return nil
}

// Stop ends the fetch loop and waits for it to return.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.stopWg.Wait()
	c.logger.Info("Reconcile consumer stopped")
}

func (c *Consumer) fetchLoop(ctx context.Context, sub *nats.Subscription) {
	defer c.stopWg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		observer.IncQueueFetchRequest()
		msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				if ctx.Err() != nil {
					return
				}
			}
			observer.IncQueueFetchError()
			c.logger.Error("Fetch from reconcile stream failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(msg.Data, msg)
		}
	}
}

// handle decodes one job and submits it. Fatal errors, undecodable payloads
// among them, terminate the message. Any other failure NAKs with a delay.
// Everything else is ACKed once submitted.
func (c *Consumer) handle(data []byte, msg ackable) {
	job, err := decodeJob(data)
	if err == nil {
		if job.RequestedBy == "" {
			job.RequestedBy = "queue"
		}
		err = c.submitter.SubmitJob(*job)
	}

	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Error("Failed to ACK message", zap.String("intake_id", job.IntakeID), zap.Error(ackErr))
			return
		}
		observer.IncQueueMessage("ack")
	case apperrors.IsFatal(err):
		c.logger.Error("Terminating reconcile job", zap.Error(err), zap.ByteString("data", data))
		if termErr := msg.Term(); termErr != nil {
			c.logger.Error("Failed to terminate message", zap.Error(termErr))
		}
		observer.IncQueueMessage("term")
	default:
		c.logger.Warn("Reconcile pool rejected job, retrying later",
			zap.String("intake_id", job.IntakeID),
			zap.Error(err),
		)
		if nakErr := msg.NakWithDelay(submitNakDelay); nakErr != nil {
			c.logger.Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncQueueMessage("nak")
	}
}

func decodeJob(data []byte) (*model.ReconcileJob, error) {
	job, err := model.ParseReconcileJob(data)
	if err != nil {
		return nil, apperrors.NewFatal(err, "decode reconcile job")
	}
	return job, nil
}
