// README: Event sinks: structured log, Kafka topic, Mongo audit collection and in-memory capture.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, evs []Event) error {
	for _, ev := range evs {
		s.logger.Info("event",
			zap.String("event_id", string(ev.ID)),
			zap.String("type", string(ev.Type)),
			zap.String("order_id", string(ev.OrderID)),
			zap.String("bid_id", string(ev.BidID)),
			zap.String("actor", ev.Actor),
			zap.String("from", ev.From),
			zap.String("to", ev.To),
			zap.String("note", ev.Note),
			zap.Time("at", ev.At),
		)
	}
	return nil
}

// KafkaSink publishes each event as JSON keyed by order id so one order stays on one partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, evs []Event) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.OrderID), Value: payload, Time: ev.At})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

type MongoSink struct {
	coll *mongo.Collection
}

func NewMongoSink(client *mongo.Client, dbName string) *MongoSink {
	return &MongoSink{coll: client.Database(dbName).Collection("order_events")}
}

func (s *MongoSink) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "at", Value: 1}},
	})
	return err
}

func (s *MongoSink) Name() string { return "mongo" }

func (s *MongoSink) Write(ctx context.Context, evs []Event) error {
	docs := make([]any, len(evs))
	for i, ev := range evs {
		docs[i] = ev
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongo insert events: %w", err)
	}
	return nil
}

// MemorySink keeps every event; used by tests and the in-memory deployment.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Write(_ context.Context, evs []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evs...)
	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Recorder is a synchronous Emitter for tests.
type Recorder struct {
	MemorySink
}

func (r *Recorder) Emit(evs ...Event) {
	_ = r.Write(context.Background(), evs)
}
