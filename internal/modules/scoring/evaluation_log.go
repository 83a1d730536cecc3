// README: Evaluation history kept per order (memory and MongoDB).
package scoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medbid/internal/types"
)

type EvaluationLog interface {
	Save(ctx context.Context, ev *Evaluation) error
	// Latest returns nil when the order was never evaluated.
	Latest(ctx context.Context, orderID types.ID) (*Evaluation, error)
}

type MemoryEvaluationLog struct {
	mu     sync.RWMutex
	latest map[types.ID]Evaluation
}

func NewMemoryEvaluationLog() *MemoryEvaluationLog {
	return &MemoryEvaluationLog{latest: map[types.ID]Evaluation{}}
}

func (s *MemoryEvaluationLog) Save(_ context.Context, ev *Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[ev.OrderID] = *ev
	return nil
}

func (s *MemoryEvaluationLog) Latest(_ context.Context, orderID types.ID) (*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.latest[orderID]
	if !ok {
		return nil, nil
	}
	out := ev
	return &out, nil
}

type MongoEvaluationLog struct {
	coll *mongo.Collection
}

func NewMongoEvaluationLog(client *mongo.Client, dbName string) *MongoEvaluationLog {
	return &MongoEvaluationLog{coll: client.Database(dbName).Collection("bid_evaluations")}
}

func (s *MongoEvaluationLog) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "evaluated_at", Value: -1}},
	})
	return err
}

func (s *MongoEvaluationLog) Save(ctx context.Context, ev *Evaluation) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.coll.InsertOne(ctx, ev)
	return err
}

func (s *MongoEvaluationLog) Latest(ctx context.Context, orderID types.ID) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "evaluated_at", Value: -1}})
	var ev Evaluation
	err := s.coll.FindOne(ctx, bson.M{"order_id": orderID}, opts).Decode(&ev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
