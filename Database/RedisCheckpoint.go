package Database

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"Washoku/Dataset"

	"github.com/go-redis/redis/v8"
)

const checkpointKeyPrefix = "washoku:checkpoint:"

// RedisCheckpointStore keeps collection checkpoints as gob blobs, one key per class.
type RedisCheckpointStore struct {
	client *redis.Client
}

func NewRedisCheckpointStore(client *redis.Client) *RedisCheckpointStore {
	return &RedisCheckpointStore{client: client}
}

func (s *RedisCheckpointStore) Load(ctx context.Context, class string) (*Dataset.Checkpoint, error) {
	blob, err := s.client.Get(ctx, checkpointKeyPrefix+class).Bytes()
	if err == redis.Nil {
		return nil, Dataset.ErrNoCheckpoint
	}
	if err != nil {
		return nil, err
	}

	var cp Dataset.Checkpoint
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint for %q: %w", class, err)
	}
	if cp.Downloaded == nil {
		cp.Downloaded = make(map[string]string)
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) Save(ctx context.Context, cp *Dataset.Checkpoint) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return err
	}
	return s.client.Set(ctx, checkpointKeyPrefix+cp.Class, buf.Bytes(), 0).Err()
}

func (s *RedisCheckpointStore) Clear(ctx context.Context, class string) error {
	return s.client.Del(ctx, checkpointKeyPrefix+class).Err()
}
