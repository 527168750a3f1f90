package wlparser

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink stores one document per folder label.
type MongoSink struct {
	Collection *mongo.Collection
	BulkWrite  bool
}

// NewMongoSink creates a MongoDB sink.
func NewMongoSink(collection *mongo.Collection) *MongoSink {
	return &MongoSink{
		Collection: collection,
		BulkWrite:  true,
	}
}

// Setup creates the unique label index.
func (s *MongoSink) Setup(ctx context.Context) error {
	if s.Collection == nil {
		return fmt.Errorf("mongo sink requires Collection")
	}
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "label", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoSink) Description() string {
	if s.Collection == nil {
		return "MongoSink()"
	}
	return fmt.Sprintf("MongoSink(%s)", s.Collection.Name())
}

// Put replaces the document of every label, inserting when missing.
func (s *MongoSink) Put(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	if s.Collection == nil {
		return fmt.Errorf("mongo sink requires Collection")
	}

	deduped := dedupeReports(reports)
	if s.BulkWrite {
		models := make([]mongo.WriteModel, 0, len(deduped))
		for _, r := range deduped {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"label": r.Label}).
				SetReplacement(r).
				SetUpsert(true))
		}
		_, err := s.Collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		return err
	}
	for _, r := range deduped {
		_, err := s.Collection.ReplaceOne(ctx, bson.M{"label": r.Label}, r, options.Replace().SetUpsert(true))
		if err != nil {
			return err
		}
	}
	return nil
}

// Get fetches reports in label order.
func (s *MongoSink) Get(ctx context.Context, labels []string) ([]*Report, error) {
	if len(labels) == 0 {
		return []*Report{}, nil
	}
	if s.Collection == nil {
		return nil, fmt.Errorf("mongo sink requires Collection")
	}

	out := make([]*Report, 0, len(labels))
	for _, label := range labels {
		var report Report
		err := s.Collection.FindOne(ctx, bson.M{"label": label}).Decode(&report)
		if errors.Is(err, mongo.ErrNoDocuments) {
			out = append(out, nil)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &report)
	}
	return out, nil
}
