package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps containers in Redis under a key prefix:
//
//	<prefix>:c:<id>       document bytes
//	<prefix>:c:<id>:meta  hash of kind, owner, created_at
//	<prefix>:refs:<id>    set of child ids
//	<prefix>:names        hash name -> id
//	<prefix>:apps         hash app key -> root id
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store over an existing client.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) dataKey(id string) string { return s.prefix + ":c:" + id }
func (s *RedisStore) metaKey(id string) string { return s.prefix + ":c:" + id + ":meta" }
func (s *RedisStore) refsKey(id string) string { return s.prefix + ":refs:" + id }
func (s *RedisStore) namesKey() string         { return s.prefix + ":names" }
func (s *RedisStore) appsKey() string          { return s.prefix + ":apps" }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Login returns the root container of appKey, allocating it on first use.
func (s *RedisStore) Login(ctx context.Context, appKey string) (string, error) {
	id, err := s.rdb.HGet(ctx, s.appsKey(), appKey).Result()
	if err == nil {
		return id, nil
	}
	if err != redis.Nil {
		return "", unavailable("login", err)
	}

	id, err = s.Create(ctx, ContainerSpec{Kind: KindApp, Owner: appKey})
	if err != nil {
		return "", err
	}
	ok, err := s.rdb.HSetNX(ctx, s.appsKey(), appKey, id).Result()
	if err != nil {
		return "", unavailable("login", err)
	}
	if ok {
		return id, nil
	}

	// another process won the race
	_ = s.Delete(ctx, id)
	winner, err := s.rdb.HGet(ctx, s.appsKey(), appKey).Result()
	if err != nil {
		return "", unavailable("login", err)
	}
	return winner, nil
}

// Create allocates an empty container.
func (s *RedisStore) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	id := uuid.NewString()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.metaKey(id), map[string]interface{}{
			"kind":       spec.Kind,
			"owner":      spec.Owner,
			"created_at": time.Now().Unix(),
		})
		pipe.Set(ctx, s.dataKey(id), "", 0)
		return nil
	})
	if err != nil {
		return "", unavailable("create", err)
	}
	return id, nil
}

// Get reads the document of a container.
func (s *RedisStore) Get(ctx context.Context, id string) (Result, error) {
	data, err := s.rdb.Get(ctx, s.dataKey(id)).Bytes()
	if err == redis.Nil {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, unavailable("get", err)
	}
	if len(data) == 0 {
		return Result{}, nil
	}
	return Result{Data: data, Found: true}, nil
}

// Put replaces the document of a container.
func (s *RedisStore) Put(ctx context.Context, id string, data []byte) error {
	if err := s.rdb.Set(ctx, s.dataKey(id), data, 0).Err(); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// Delete removes the container, its metadata and its reference set.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.dataKey(id), s.metaKey(id), s.refsKey(id)).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// AddRef records childID as referenced by parentID.
func (s *RedisStore) AddRef(ctx context.Context, parentID, childID string) error {
	if err := s.rdb.SAdd(ctx, s.refsKey(parentID), childID).Err(); err != nil {
		return unavailable("add ref", err)
	}
	return nil
}

// RemoveRef drops the reference from parentID to childID.
func (s *RedisStore) RemoveRef(ctx context.Context, parentID, childID string) error {
	if err := s.rdb.SRem(ctx, s.refsKey(parentID), childID).Err(); err != nil {
		return unavailable("remove ref", err)
	}
	return nil
}

// Refs lists the children referenced by parentID.
func (s *RedisStore) Refs(ctx context.Context, parentID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.refsKey(parentID)).Result()
	if err != nil {
		return nil, unavailable("refs", err)
	}
	return ids, nil
}

// Resolve looks up the container bound to name.
func (s *RedisStore) Resolve(ctx context.Context, name string) (string, bool, error) {
	id, err := s.rdb.HGet(ctx, s.namesKey(), name).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("resolve", err)
	}
	return id, true, nil
}

// Bind sets name to id if name is unbound.
func (s *RedisStore) Bind(ctx context.Context, name, id string) (bool, error) {
	ok, err := s.rdb.HSetNX(ctx, s.namesKey(), name, id).Result()
	if err != nil {
		return false, unavailable("bind", err)
	}
	if ok {
		return true, nil
	}
	current, found, err := s.Resolve(ctx, name)
	if err != nil {
		return false, err
	}
	return found && current == id, nil
}

// Rebind points name at id unconditionally.
func (s *RedisStore) Rebind(ctx context.Context, name, id string) error {
	if err := s.rdb.HSet(ctx, s.namesKey(), name, id).Err(); err != nil {
		return unavailable("rebind", err)
	}
	return nil
}

// Unbind removes name from the index.
func (s *RedisStore) Unbind(ctx context.Context, name string) error {
	if err := s.rdb.HDel(ctx, s.namesKey(), name).Err(); err != nil {
		return unavailable("unbind", err)
	}
	return nil
}

// Names returns the whole name index.
func (s *RedisStore) Names(ctx context.Context) (map[string]string, error) {
	names, err := s.rdb.HGetAll(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, unavailable("names", err)
	}
	return names, nil
}
