package wlparser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink stores each report as a JSON string under "{prefix}::{label}".
type RedisSink struct {
	Client    redis.UniversalClient
	Prefix    string
	Separator string
	// TTL expires stored reports; zero keeps them forever.
	TTL time.Duration
}

// NewRedisSink creates a Redis sink.
func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "wlparser"
	}
	return &RedisSink{
		Client:    client,
		Prefix:    prefix,
		Separator: "::",
	}
}

func (s *RedisSink) Description() string {
	return fmt.Sprintf("RedisSink(%s)", s.Prefix)
}

// Put writes all reports in one pipeline.
func (s *RedisSink) Put(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	if s.Client == nil {
		return fmt.Errorf("redis sink requires Client")
	}

	pipe := s.Client.TxPipeline()
	for _, r := range dedupeReports(reports) {
		data, err := encodeReport(r)
		if err != nil {
			return err
		}
		pipe.Set(ctx, s.key(r.Label), data, s.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Get fetches reports in label order.
func (s *RedisSink) Get(ctx context.Context, labels []string) ([]*Report, error) {
	if len(labels) == 0 {
		return []*Report{}, nil
	}
	if s.Client == nil {
		return nil, fmt.Errorf("redis sink requires Client")
	}

	keys := make([]string, 0, len(labels))
	for _, label := range labels {
		keys = append(keys, s.key(label))
	}
	values, err := s.Client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]*Report, 0, len(labels))
	for i, label := range labels {
		raw, ok := values[i].(string)
		if !ok {
			out = append(out, nil)
			continue
		}
		report, err := decodeReport(label, []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}

func (s *RedisSink) key(label string) string {
	sep := s.Separator
	if sep == "" {
		sep = "::"
	}
	return strings.Join([]string{s.Prefix, label}, sep)
}
