package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	kafka "github.com/segmentio/kafka-go"

	"orderflow/logger"
)

// KafkaEmitter publishes status events to a Kafka topic keyed by symbol.
// Emit only enqueues into an internal buffer; a single writer goroutine does
// the network work, and events are dropped with a counter when the buffer is
// full so the dispatch path never blocks on the broker.
type KafkaEmitter struct {
	writer  *kafka.Writer
	buf     chan Event
	dropped atomic.Int64
	written atomic.Int64

	ctx     context.Context
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

// NewKafkaEmitter builds an emitter for the given brokers and topic. buffer
// is the internal queue size between Emit and the writer goroutine.
func NewKafkaEmitter(brokers []string, topic string, buffer int) (*KafkaEmitter, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka emitter: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka emitter: empty topic")
	}
	if buffer <= 0 {
		buffer = 256
	}
	ke := &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		buf:    make(chan Event, buffer),
		stopCh: make(chan struct{}),
		log:    logger.GetLogger(),
	}
	ke.log.WithComponent("kafka_emitter").WithFields(logger.Fields{
		"brokers": brokers,
		"topic":   topic,
		"buffer":  buffer,
	}).Debug("kafka emitter initialized")
	return ke, nil
}

// Start launches the writer goroutine.
func (ke *KafkaEmitter) Start(ctx context.Context) error {
	ke.mu.Lock()
	if ke.running {
		ke.mu.Unlock()
		return fmt.Errorf("kafka emitter already running")
	}
	ke.running = true
	ke.ctx = ctx
	ke.mu.Unlock()

	ke.wg.Add(1)
	go ke.run()
	return nil
}

// Stop flushes buffered events and closes the Kafka writer.
func (ke *KafkaEmitter) Stop() {
	ke.mu.Lock()
	if !ke.running {
		ke.mu.Unlock()
		return
	}
	ke.running = false
	ke.mu.Unlock()

	close(ke.stopCh)
	ke.wg.Wait()

	if err := ke.writer.Close(); err != nil {
		ke.log.WithComponent("kafka_emitter").WithError(err).Warn("failed to close kafka writer")
	}
	ke.log.WithComponent("kafka_emitter").WithFields(logger.Fields{
		"written": ke.written.Load(),
		"dropped": ke.dropped.Load(),
	}).Info("kafka emitter stopped")
}

// Emit enqueues the event, dropping it when the buffer is full.
func (ke *KafkaEmitter) Emit(ev Event) {
	ke.mu.Lock()
	running := ke.running
	ke.mu.Unlock()
	if !running {
		ke.dropped.Add(1)
		return
	}
	select {
	case ke.buf <- ev:
	default:
		ke.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the buffer was
// full or the emitter was stopped.
func (ke *KafkaEmitter) Dropped() int64 {
	return ke.dropped.Load()
}

func (ke *KafkaEmitter) run() {
	defer ke.wg.Done()

	for {
		select {
		case ev := <-ke.buf:
			ke.write(ev)
		case <-ke.stopCh:
			// Drain whatever Emit managed to buffer before the stop.
			for {
				select {
				case ev := <-ke.buf:
					ke.write(ev)
				default:
					return
				}
			}
		case <-ke.ctx.Done():
			return
		}
	}
}

func (ke *KafkaEmitter) write(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		ke.log.WithComponent("kafka_emitter").WithError(err).Warn("failed to marshal event")
		return
	}
	msg := kafka.Message{Key: []byte(ev.Symbol), Value: data}
	if err := ke.writer.WriteMessages(context.Background(), msg); err != nil {
		ke.log.WithComponent("kafka_emitter").WithError(err).WithFields(logger.Fields{
			"order_id": ev.OrderID,
			"symbol":   ev.Symbol,
		}).Warn("failed to write event to kafka")
		return
	}
	ke.written.Add(1)
}
