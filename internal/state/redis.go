package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "DelegateGuard/internal/errors"
)

// RedisConfig 描述 Redis 状态存储的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	Retention time.Duration
}

// RedisTracker 将执行历史写入 Redis，支持多实例共享状态。
//
// 每个委托人使用两把键：
//   - <prefix>last:<principal>    最近一次执行的 Unix 纳秒时间戳
//   - <prefix>events:<principal>  有序集合，score 为执行时间
type RedisTracker struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisTracker 创建 Redis 跟踪器并验证连通性。
func NewRedisTracker(cfg RedisConfig) (*RedisTracker, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "guard:"
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(CodeStateUnavailable, err, "连接 Redis 失败")
	}
	return &RedisTracker{client: client, prefix: prefix, retention: retention}, nil
}

var _ Tracker = (*RedisTracker)(nil)

func (t *RedisTracker) lastKey(principal string) string {
	return t.prefix + "last:" + strings.ToLower(strings.TrimSpace(principal))
}

func (t *RedisTracker) eventsKey(principal string) string {
	return t.prefix + "events:" + strings.ToLower(strings.TrimSpace(principal))
}

// LastExecution 读取最近一次执行时间。
func (t *RedisTracker) LastExecution(ctx context.Context, principal string) (*time.Time, error) {
	raw, err := t.client.Get(ctx, t.lastKey(principal)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(CodeStateUnavailable, err, "读取最近执行时间失败")
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, xerrors.Wrap(CodeStateUnavailable, err, "解析最近执行时间失败")
	}
	last := time.Unix(0, nanos).UTC()
	return &last, nil
}

// Snapshot 读取保留窗口内的执行历史。
func (t *RedisTracker) Snapshot(ctx context.Context, principal string) (Snapshot, error) {
	last, err := t.LastExecution(ctx, principal)
	if err != nil {
		return Snapshot{}, err
	}
	cutoff := time.Now().Add(-t.retention)
	members, err := t.client.ZRangeByScore(ctx, t.eventsKey(principal), &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return Snapshot{}, xerrors.Wrap(CodeStateUnavailable, err, "读取执行历史失败")
	}
	snap := Snapshot{LastExecution: last}
	for _, member := range members {
		nanos, parseErr := strconv.ParseInt(member, 10, 64)
		if parseErr != nil {
			continue
		}
		snap.RecentEvents = append(snap.RecentEvents, time.Unix(0, nanos).UTC())
	}
	return snap, nil
}

// RecordExecution 以事务方式写入执行记录并裁剪过期事件。
func (t *RedisTracker) RecordExecution(ctx context.Context, principal string, ts time.Time) error {
	lastKey := t.lastKey(principal)
	eventsKey := t.eventsKey(principal)
	nanos := ts.UnixNano()

	err := t.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, lastKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		newest := nanos
		if err == nil {
			if existing, parseErr := strconv.ParseInt(current, 10, 64); parseErr == nil && existing > newest {
				newest = existing
			}
		}
		cutoff := ts.Add(-t.retention).UnixNano()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lastKey, strconv.FormatInt(newest, 10), t.retention*2)
			pipe.ZAdd(ctx, eventsKey, redis.Z{
				Score:  float64(nanos),
				Member: fmt.Sprintf("%d", nanos),
			})
			pipe.ZRemRangeByScore(ctx, eventsKey, "-inf", strconv.FormatInt(cutoff, 10))
			pipe.Expire(ctx, eventsKey, t.retention*2)
			return nil
		})
		return err
	}, lastKey, eventsKey)
	if err != nil {
		return xerrors.Wrap(CodeStateUnavailable, err, "记录执行历史失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (t *RedisTracker) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}
