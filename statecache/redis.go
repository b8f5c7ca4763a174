package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "floorcore:wc:"

// RedisStore holds the live workcenter state in Redis for cheap dashboard reads.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func metaKey(id int64) string  { return keyPrefix + strconv.FormatInt(id, 10) + ":meta" }
func stepsKey(id int64) string { return keyPrefix + strconv.FormatInt(id, 10) + ":steps" }
func countKey(id int64) string { return keyPrefix + strconv.FormatInt(id, 10) + ":count" }
func indexKey() string         { return keyPrefix + "ids" }

func (r *RedisStore) UpdateMeta(ctx context.Context, id int64, meta *WorkcenterMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, metaKey(id), data, 0)
	pipe.SAdd(ctx, indexKey(), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetMeta(ctx context.Context, id int64) (*WorkcenterMeta, error) {
	data, err := r.client.Get(ctx, metaKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta WorkcenterMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("statecache: corrupt meta for wc %d: %w", id, err)
	}
	return &meta, nil
}

func (r *RedisStore) SetActiveSteps(ctx context.Context, id int64, steps []ActiveStep) error {
	data, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, stepsKey(id), data, 0)
	pipe.Set(ctx, countKey(id), len(steps), 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetActiveSteps(ctx context.Context, id int64) ([]ActiveStep, error) {
	data, err := r.client.Get(ctx, stepsKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var steps []ActiveStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("statecache: corrupt steps for wc %d: %w", id, err)
	}
	return steps, nil
}

func (r *RedisStore) GetCount(ctx context.Context, id int64) (int, error) {
	n, err := r.client.Get(ctx, countKey(id)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *RedisStore) GetAllWorkcenterIDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, indexKey()).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FlushAll drops every cached workcenter key. Used before a full resync.
func (r *RedisStore) FlushAll(ctx context.Context) {
	ids, err := r.GetAllWorkcenterIDs(ctx)
	if err != nil {
		return
	}
	for _, id := range ids {
		r.client.Del(ctx, metaKey(id), stepsKey(id), countKey(id))
	}
	r.client.Del(ctx, indexKey())
}
