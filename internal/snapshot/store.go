package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sensorcap/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrNotFound 设备还没有已保存的快照（首次运行）
var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "sensorcap:snapshot:"

// KVStore 抽象的 KV 存储（用于在单元测试中替换 Redis）
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore 基于 go-redis 的 KV 实现
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNotFound
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Store 设备配置快照存储
// 每台设备一份快照，整体替换，跨进程重启保留
type Store struct {
	kv     KVStore
	logger *zap.Logger
}

// NewStore 创建快照存储
func NewStore(kv KVStore, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Get 读取设备的上一份快照，不存在时返回 ErrNotFound
func (s *Store) Get(ctx context.Context, device string) (*models.ConfigSnapshot, error) {
	val, err := s.kv.Get(ctx, keyPrefix+device)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap models.ConfigSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Replace 原子替换设备快照（快照不设置 TTL）
func (s *Store) Replace(ctx context.Context, snap *models.ConfigSnapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.kv.Set(ctx, keyPrefix+snap.Device, string(jsonData), 0); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	s.logger.Debug("Snapshot replaced",
		zap.String("device", snap.Device),
		zap.Int("port_count", len(snap.Ports)),
	)
	return nil
}
