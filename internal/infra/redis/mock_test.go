package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// fakeRedis implements RedisClient over plain maps and records the TTLs
// it was handed.
type fakeRedis struct {
	kv      map[string]string
	lists   map[string][]string
	ttls    map[string]time.Duration
	failErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		kv:    make(map[string]string),
		lists: make(map[string][]string),
		ttls:  make(map[string]time.Duration),
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (f *fakeRedis) Ping(context.Context) error { return f.failErr }

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.kv[key] = asString(value)
	f.ttls[key] = expiration
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	if f.failErr != nil {
		return "", f.failErr
	}
	v, ok := f.kv[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) error {
	if f.failErr != nil {
		return f.failErr
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], asString(v))
	}
	return nil
}

func (f *fakeRedis) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	list := f.lists[key]
	if start == 0 && stop == -1 {
		return append([]string(nil), list...), nil
	}
	if stop < 0 {
		stop = int64(len(list)) + stop
	}
	if start > stop || start >= int64(len(list)) {
		return nil, nil
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.ttls[key] = expiration
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	if f.failErr != nil {
		return f.failErr
	}
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.lists, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }
