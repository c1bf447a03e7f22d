package db

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

/*
RedisPersistence stores the snapshot under a single Redis key
*/
type RedisPersistence struct {
	client redis.UniversalClient
	key    string
}

/*
NewRedisPersistence uses key as the slot
*/
func NewRedisPersistence(client redis.UniversalClient, key string) *RedisPersistence {
	return &RedisPersistence{client: client, key: key}
}

/*
Save overwrites the key with the encoded snapshot
*/
func (p *RedisPersistence) Save(ctx context.Context, records []VectorRecord) error {
	data, err := encodeSnapshot(records)
	if err != nil {
		return p.warn("save", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return p.warn("save", err)
	}
	return nil
}

/*
Load reads the key. A missing key is an empty store.
*/
func (p *RedisPersistence) Load(ctx context.Context) ([]VectorRecord, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, p.warn("load", err)
	}

	records, err := decodeSnapshot(data)
	if err != nil {
		return nil, p.warn("load", err)
	}
	return records, nil
}

func (p *RedisPersistence) warn(op string, err error) error {
	return &PersistenceWarning{Op: op, Slot: "redis:" + p.key, Err: err}
}
