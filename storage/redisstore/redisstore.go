// Package redisstore keeps subject markings in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/workflow/workflow"
)

// DefaultPrefix namespaces marking keys.
const DefaultPrefix = "workflow:marking:"

// maxSwapAttempts bounds retries when WATCH reports a concurrent write that
// did not change the compared marking.
const maxSwapAttempts = 3

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// MarkingStore keeps each marking as a JSON list under
// <prefix><subject type>:<subject id>:<property>. Subjects must implement
// workflow.SubjectIdentifier.
type MarkingStore struct {
	client   redis.UniversalClient
	prefix   string
	property string
}

// NewMarkingStore creates a store. Empty prefix and property fall back to
// DefaultPrefix and workflow.DefaultMarkingProperty.
func NewMarkingStore(client redis.UniversalClient, prefix, property string) *MarkingStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if property == "" {
		property = workflow.DefaultMarkingProperty
	}
	return &MarkingStore{client: client, prefix: prefix, property: property}
}

// Factory adapts the store for workflow.RegisterMarkingStore.
func Factory(client redis.UniversalClient, prefix string) workflow.MarkingStoreFactory {
	return func(singleState bool, property string) (workflow.MarkingStore, error) {
		if client == nil {
			return nil, fmt.Errorf("redis client is not configured")
		}
		return NewMarkingStore(client, prefix, property), nil
	}
}

// Key returns the Redis key holding subject's marking.
func (s *MarkingStore) Key(subject any) (string, error) {
	id, err := workflow.IDOf(subject)
	if err != nil {
		return "", err
	}
	return s.prefix + workflow.TypeOf(subject) + ":" + id + ":" + s.property, nil
}

// Marking reads the stored places; a missing key is an empty marking.
func (s *MarkingStore) Marking(ctx context.Context, subject any) (workflow.Marking, error) {
	key, err := s.Key(subject)
	if err != nil {
		return workflow.Marking{}, err
	}
	return read(ctx, s.client, key)
}

func (s *MarkingStore) SetMarking(ctx context.Context, subject any, marking workflow.Marking, payload map[string]any) error {
	key, err := s.Key(subject)
	if err != nil {
		return err
	}
	data, err := encode(marking)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("write marking: %w", err)
	}
	return nil
}

// CompareAndSwap writes next inside a WATCH transaction that aborts when the
// key changes between the read and the write.
func (s *MarkingStore) CompareAndSwap(ctx context.Context, subject any, old, next workflow.Marking, payload map[string]any) error {
	key, err := s.Key(subject)
	if err != nil {
		return err
	}
	data, err := encode(next)
	if err != nil {
		return err
	}

	swap := func(tx *redis.Tx) error {
		current, err := read(ctx, tx, key)
		if err != nil {
			return err
		}
		if !current.Equal(old) {
			return fmt.Errorf("%w: %s", workflow.ErrMarkingConflict, key)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for range maxSwapAttempts {
		err := s.client.Watch(ctx, swap, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, workflow.ErrMarkingConflict) {
			return fmt.Errorf("swap marking: %w", err)
		}
		return err
	}
	return fmt.Errorf("%w: %s", workflow.ErrMarkingConflict, key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func read(ctx context.Context, client getter, key string) (workflow.Marking, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return workflow.Marking{}, nil
	}
	if err != nil {
		return workflow.Marking{}, fmt.Errorf("read marking: %w", err)
	}

	var places []string
	if err := json.Unmarshal(raw, &places); err != nil {
		return workflow.Marking{}, fmt.Errorf("decode marking: %w", err)
	}
	return workflow.NewMarking(places...), nil
}

func encode(marking workflow.Marking) ([]byte, error) {
	places := marking.Places()
	if places == nil {
		places = []string{}
	}
	data, err := json.Marshal(places)
	if err != nil {
		return nil, fmt.Errorf("encode marking: %w", err)
	}
	return data, nil
}

var (
	_ workflow.MarkingStore      = (*MarkingStore)(nil)
	_ workflow.CompareAndSwapper = (*MarkingStore)(nil)
)
