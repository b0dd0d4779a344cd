package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/lexdex/internal/db"
)

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// MGet retrieves many keys in one round trip. Missing keys yield nil entries.
func (s *Store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmd := s.b().Mget().Key(keys...).Build()
	msgs, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}

	out := make([][]byte, len(keys))
	for i := range msgs {
		if i >= len(out) || msgs[i].IsNil() {
			continue
		}
		data, err := msgs[i].AsBytes()
		if err != nil {
			return nil, &db.Error{Op: db.OpMGet, Err: err}
		}
		out[i] = data
	}
	return out, nil
}

// SetNX stores value at key only if the key does not exist yet.
// A non-positive ttl stores the key without expiry.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var cmd rueidis.Completed
	if secs := int64(ttl / time.Second); secs > 0 {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Nx().ExSeconds(secs).Build()
	} else {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Nx().Build()
	}

	err := s.do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, &db.Error{Op: db.OpSet, Err: err}
	}
	return true, nil
}

// Del removes keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := s.b().Del().Key(keys...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}
