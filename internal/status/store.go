package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"wabridge/internal/config"
	"wabridge/internal/constants"
)

// Store holds a single StatusRecord slot. Save replaces the slot.
type Store interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context) (Record, error)
}

// NewStore builds the store selected by status.store. rdb may be nil unless
// the redis store is configured.
func NewStore(cfg config.StatusConfig, rdb *redis.Client) (Store, error) {
	switch cfg.Store {
	case "", constants.StoreTypeFile:
		return NewFileStore(cfg.FilePath), nil
	case constants.StoreTypeRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis status store requires a redis client")
		}
		return NewRedisStore(rdb, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown status store %q", cfg.Store)
	}
}

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = constants.DefaultStatusFile
	}
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Save writes to a temp file in the target directory and renames it over the
// previous record, so readers never observe a partial document.
func (s *FileStore) Save(_ context.Context, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp status file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write status record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync status record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp status file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod status file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("failed to read status file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("failed to decode status file: %w", err)
	}
	return record, nil
}

type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = constants.DefaultStatusRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Save(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store status in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("failed to load status from redis: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("failed to decode status from redis: %w", err)
	}
	return record, nil
}
