package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

const (
	FiredQueueName     = "alarm-fired"
	DismissedQueueName = "alarm-dismissed"
)

type FiredEvent struct {
	DispatchKey string    `json:"dispatchKey"`
	FiredAt     time.Time `json:"firedAt"`
}

type DismissedEvent struct {
	AlarmID     string    `json:"alarmId"`
	DismissedAt time.Time `json:"dismissedAt"`
}

// Publisher hands fired timer keys and stop actions to the delivery process through redis
type Publisher struct {
	Queue        rmq.Queue
	DismissQueue rmq.Queue
}

func OpenPublisher(connection rmq.Connection) (*Publisher, error) {
	firedQueue, err := connection.OpenQueue(FiredQueueName)
	if err != nil {
		return nil, err
	}
	dismissQueue, err := connection.OpenQueue(DismissedQueueName)
	if err != nil {
		return nil, err
	}

	return &Publisher{Queue: firedQueue, DismissQueue: dismissQueue}, nil
}

func (p *Publisher) Publish(event FiredEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Queue.PublishBytes(payload)
}

// Fire matches the timer callback signature
func (p *Publisher) Fire(key string) {
	event := FiredEvent{
		DispatchKey: key,
		FiredAt:     time.Now(),
	}

	if err := p.Publish(event); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to publish fired alarm")
	}
}

// Dismiss forwards the stop action. The delivery process decides whether the alarm was
// ringing, so true only means the request was queued.
func (p *Publisher) Dismiss(alarmID string) bool {
	payload, err := json.Marshal(DismissedEvent{AlarmID: alarmID, DismissedAt: time.Now()})
	if err != nil {
		return false
	}

	if err := p.DismissQueue.PublishBytes(payload); err != nil {
		log.Error().Err(err).Str("alarm", alarmID).Msg("Failed to publish dismiss")
		return false
	}

	return true
}

type FiredBatchConsumer struct {
	Pipeline *Pipeline
}

func NewFiredBatchConsumer(pipeline *Pipeline) *FiredBatchConsumer {
	return &FiredBatchConsumer{Pipeline: pipeline}
}

func (c *FiredBatchConsumer) Consume(batch rmq.Deliveries) {
	payloads := batch.Payloads()

	for _, payload := range payloads {
		var event FiredEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Str("payload", payload).Msg("Failed to decode fired alarm event")
			continue
		}

		log.Debug().Str("key", event.DispatchKey).Time("firedAt", event.FiredAt).Msg("Received fired alarm")

		if err := c.Pipeline.HandleFired(context.Background(), event.DispatchKey); err != nil {
			log.Error().Err(err).Str("key", event.DispatchKey).Msg("Failed to deliver alarm")
		}
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to consume from queue")
		}
	}
}

type DismissedBatchConsumer struct {
	Pipeline *Pipeline
}

func NewDismissedBatchConsumer(pipeline *Pipeline) *DismissedBatchConsumer {
	return &DismissedBatchConsumer{Pipeline: pipeline}
}

func (c *DismissedBatchConsumer) Consume(batch rmq.Deliveries) {
	for _, payload := range batch.Payloads() {
		var event DismissedEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Str("payload", payload).Msg("Failed to decode dismiss event")
			continue
		}

		if !c.Pipeline.Dismiss(event.AlarmID) {
			log.Debug().Str("alarm", event.AlarmID).Msg("Dismissed alarm was not ringing")
		}
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to consume from queue")
		}
	}
}
