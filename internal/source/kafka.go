package source

import (
	"context"
	"sync"

	"github.com/IBM/sarama"

	"streamloader/internal/log"
)

// Kafka streams batches from a Kafka topic via a consumer group, batching
// records per partition and committing offsets only when the pipeline acks
// the corresponding Token, never ahead of it.
type Kafka struct {
	brokers []string
	topic   string
	group   string
	batching BatchingParams
	logger  log.Modular

	consumerGroup sarama.ConsumerGroup
	cancel        context.CancelFunc
}

// NewKafka constructs a Kafka source. brokers is the seed broker list;
// group is the consumer group id (the loader's consumer-app name).
func NewKafka(brokers []string, topic, group string, batching BatchingParams, logger log.Modular) (*Kafka, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true
	cg, err := sarama.NewConsumerGroup(brokers, group, cfg)
	if err != nil {
		return nil, err
	}
	return &Kafka{brokers: brokers, topic: topic, group: group, batching: batching, logger: logger, consumerGroup: cg}, nil
}

// Stream implements Source.
func (k *Kafka) Stream(ctx context.Context) (<-chan TokenedEvents, error) {
	out := make(chan TokenedEvents)
	streamCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel

	handler := &kafkaBatchHandler{out: out, ctx: streamCtx, batching: k.batching}

	go func() {
		defer close(out)
		for streamCtx.Err() == nil {
			if err := k.consumerGroup.Consume(streamCtx, []string{k.topic}, handler); err != nil {
				k.logger.Errorf("kafka consume loop error: %v", err)
				return
			}
		}
	}()

	go func() {
		for err := range k.consumerGroup.Errors() {
			k.logger.Errorf("kafka consumer group error: %v", err)
		}
	}()

	return out, nil
}

// Close implements Source.
func (k *Kafka) Close() error {
	if k.cancel != nil {
		k.cancel()
	}
	return k.consumerGroup.Close()
}

type kafkaBatchHandler struct {
	out      chan<- TokenedEvents
	ctx      context.Context
	batching BatchingParams
	mu       sync.Mutex
}

// Setup implements sarama.ConsumerGroupHandler.
func (h *kafkaBatchHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (h *kafkaBatchHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler, batching messages
// from a single partition claim and marking offsets only after the batch's
// Token is acked, so a crash before ack causes redelivery from the last
// committed offset.
func (h *kafkaBatchHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	batcher := newByteBatcher(h.batching.MaxBytes, h.batching.MaxDelay)
	defer batcher.stop()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m := msg
			batcher.add(m.Value, func() {
				sess.MarkMessage(m, "")
				sess.Commit()
			}, func(te TokenedEvents) {
				select {
				case h.out <- te:
				case <-h.ctx.Done():
				}
			})
		case <-h.ctx.Done():
			return nil
		}
	}
}
