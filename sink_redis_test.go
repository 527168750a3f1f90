package wlparser

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedisSink(t *testing.T, prefix string) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	sink := NewRedisSink(client, prefix)

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return sink, server
}

func TestRedisSink_PutGet(t *testing.T) {
	sink, server := newMiniRedisSink(t, "test")
	ctx := context.Background()

	if err := sink.Put(ctx, sampleReports()); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if !server.Exists("test::w1") || !server.Exists("test::w2") {
		t.Fatalf("expected keys under prefix, have %v", server.Keys())
	}

	got, err := sink.Get(ctx, []string{"w1", "nope", "w2"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0] == nil || got[0].Entries[1].Key != "HOBL_result" {
		t.Fatalf("unexpected w1: %+v", got[0])
	}
	if got[1] != nil {
		t.Fatalf("expected nil for missing label")
	}
	if got[2] == nil || got[2].Outcome != "INDETERMINATE" {
		t.Fatalf("unexpected w2: %+v", got[2])
	}
}

func TestRedisSink_TTL(t *testing.T) {
	sink, server := newMiniRedisSink(t, "")
	sink.TTL = time.Minute

	if err := sink.Put(context.Background(), sampleReports()[:1]); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if ttl := server.TTL("wlparser::w1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	server.FastForward(2 * time.Minute)
	got, err := sink.Get(context.Background(), []string{"w1"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got[0] != nil {
		t.Fatalf("expected expired report")
	}
}

func TestRedisSink_RequiresClient(t *testing.T) {
	sink := NewRedisSink(nil, "x")
	if err := sink.Put(context.Background(), sampleReports()); err == nil {
		t.Fatalf("expected put error without client")
	}
	if _, err := sink.Get(context.Background(), []string{"a"}); err == nil {
		t.Fatalf("expected get error without client")
	}
	if got := sink.Description(); got != "RedisSink(x)" {
		t.Fatalf("unexpected description: %s", got)
	}
}
