package queue

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
)

// StreamConfig builds the reconcile job stream definition.
func StreamConfig(cfg config.QueueConfig) *nats.StreamConfig {
	maxAgeDays := cfg.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	return &nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    time.Duration(maxAgeDays) * 24 * time.Hour,
	}
}

// ConsumerConfig builds the durable pull consumer definition.
func ConsumerConfig(cfg config.QueueConfig) *nats.ConsumerConfig {
	durable := cfg.Consumer
	if durable == "" {
		durable = strings.ReplaceAll(cfg.Subject, ".", "_") + "_worker"
	}
	ackWait := cfg.AckWait
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}
	maxDeliver := cfg.MaxDeliver
	if maxDeliver == 0 {
		maxDeliver = 5
	}
	return &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: cfg.Subject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
}
