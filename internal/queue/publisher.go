package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

// HeaderIntakeID carries the intake id on published jobs.
const HeaderIntakeID = "Intake-Id"

// Publisher sends reconcile jobs to the JetStream subject.
type Publisher struct {
	client  ClientInterface
	subject string
}

// NewPublisher creates a publisher for subject.
func NewPublisher(client ClientInterface, subject string) *Publisher {
	return &Publisher{client: client, subject: subject}
}

// Dispatch publishes job. Every call gets its own message id, so a requeue
// of the same intake is never deduplicated by the stream.
func (p *Publisher) Dispatch(ctx context.Context, job model.ReconcileJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = utils.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: encode reconcile job: %w", apperrors.ErrQueue, err)
	}

	headers := map[string]string{
		"Nats-Msg-Id":  uuid.NewString(),
		HeaderIntakeID: job.IntakeID,
	}
	if err := p.client.Publish(ctx, p.subject, data, headers); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrQueue, err)
	}

	observer.IncQueueMessage("published")
	logger.FromContext(ctx).Debug("Published reconcile job",
		zap.String("subject", p.subject),
		zap.String("intake_id", job.IntakeID),
		zap.String("requested_by", job.RequestedBy),
	)
	return nil
}
