package producer

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/radieske/pickem-pools-poc/internal/shared/kafka"
	"github.com/radieske/pickem-pools-poc/pkg/contracts/events"
)

type KafkaPublisher struct {
	LockedWriter  *kafkago.Writer
	ResultsWriter *kafkago.Writer
}

func NewKafkaPublisher(locked, results *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{LockedWriter: locked, ResultsWriter: results}
}

// PublishPicksLocked publica o evento chaveado por pool (ordem por partição)
func (p *KafkaPublisher) PublishPicksLocked(ctx context.Context, e events.PicksLocked) error {
	if e.LockedAt.IsZero() {
		e.LockedAt = time.Now().UTC()
	}
	b, _ := json.Marshal(e)
	return kafka.WriteJSON(ctx, p.LockedWriter, e.PoolID, b)
}

func (p *KafkaPublisher) PublishResultsUpdated(ctx context.Context, e events.ResultsUpdated) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	b, _ := json.Marshal(e)
	return p.ResultsWriter.WriteMessages(ctx, kafkago.Message{Value: b})
}
