package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"forge/internal/pipeline"

	"github.com/go-redis/redis/v8"
)

const redisUpdateRetries = 8

// RedisStore keeps each pipeline as a JSON value and a sorted set of ids by
// creation time for listing. Updates are optimistic: WATCH the key, mutate,
// then write in MULTI, retrying when another writer got there first.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "forge:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + "pipeline:" + id
}

func (r *RedisStore) index() string {
	return r.prefix + "pipelines"
}

func (r *RedisStore) Create(ctx context.Context, p *pipeline.Pipeline) error {
	data, err := json.Marshal(p)
	if err != nil {
		return storageErr(err)
	}
	ok, err := r.client.SetNX(ctx, r.key(p.ID), data, 0).Result()
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		return storageErr(fmt.Errorf("pipeline %s already exists", p.ID))
	}
	err = r.client.ZAdd(ctx, r.index(), &redis.Z{
		Score:  float64(p.CreatedAt.UnixNano()),
		Member: p.ID,
	}).Err()
	if err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return decodePipeline(data)
}

func (r *RedisStore) Update(ctx context.Context, id string, mutate func(p *pipeline.Pipeline) error) (*pipeline.Pipeline, error) {
	key := r.key(id)
	for i := 0; i < redisUpdateRetries; i++ {
		var (
			out       *pipeline.Pipeline
			mutateErr error
		)
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			p, err := decodePipeline(data)
			if err != nil {
				return err
			}
			if err := mutate(p); err != nil {
				mutateErr = err
				return err
			}
			next, err := json.Marshal(p)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			if err != nil {
				return err
			}
			out = p
			return nil
		}, key)

		switch {
		case mutateErr != nil:
			return nil, mutateErr
		case err == nil:
			return out, nil
		case errors.Is(err, redis.Nil):
			return nil, pipeline.ErrNotFound
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return nil, storageErr(err)
		}
	}
	return nil, storageErr(fmt.Errorf("pipeline %s: too many concurrent updates", id))
}

func (r *RedisStore) List(ctx context.Context, filter pipeline.ListFilter) ([]*pipeline.Pipeline, error) {
	ids, err := r.client.ZRevRange(ctx, r.index(), 0, -1).Result()
	if err != nil {
		return nil, storageErr(err)
	}
	if len(ids) == 0 {
		return []*pipeline.Pipeline{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]*pipeline.Pipeline, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodePipeline([]byte(s))
		if err != nil {
			return nil, err
		}
		if !filter.Match(p) {
			continue
		}
		out = append(out, p)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func decodePipeline(data []byte) (*pipeline.Pipeline, error) {
	var p pipeline.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, storageErr(err)
	}
	if p.Results == nil {
		p.Results = map[string]string{}
	}
	p.Request.UserID = p.UserID
	return &p, nil
}
