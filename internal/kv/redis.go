package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/pkg/idgen"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned when a Redis transaction's write lease expired
// before commit. Nothing from that transaction was written.
var ErrLeaseLost = errors.New("kv: redis write lease lost")

// RedisOptions tunes the write lease used to serialize Update transactions.
type RedisOptions struct {
	LockKey  string        // default "proofledger:lock"
	LeaseTTL time.Duration // default 10s
	Retry    time.Duration // poll interval while waiting for the lease, default 20ms
}

// Redis is a Store backed by a Redis server. Writers take a SETNX lease,
// buffer their writes, and commit them with MULTI/EXEC under WATCH of the
// lease key so an expired lease aborts the commit.
type Redis struct {
	client *redis.Client
	opts   RedisOptions
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	if opts.LockKey == "" {
		opts.LockKey = "proofledger:lock"
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 20 * time.Millisecond
	}
	return &Redis{client: client, opts: opts}
}

// OpenRedis dials addr and checks connectivity.
func OpenRedis(ctx context.Context, addr, password string, db int, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedis(client, opts), nil
}

// View reads live keys without the lease. Point reads are consistent; a scan
// interleaved with a commit is not.
func (r *Redis) View(ctx context.Context, fn func(Reader) error) error {
	return fn(&redisTx{ctx: ctx, client: r.client})
}

func (r *Redis) Update(ctx context.Context, fn func(Tx) error) error {
	token := idgen.New()
	if err := r.acquire(ctx, token); err != nil {
		return err
	}
	defer r.release(context.WithoutCancel(ctx), token)

	tx := &redisTx{ctx: ctx, client: r.client, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		return nil
	}

	return r.client.Watch(ctx, func(rtx *redis.Tx) error {
		owner, err := rtx.Get(ctx, r.opts.LockKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("checking lease: %w", err)
		}
		if owner != token {
			return ErrLeaseLost
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range tx.writes {
				pipe.Set(ctx, k, v, 0)
			}
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return ErrLeaseLost
		}
		return err
	}, r.opts.LockKey)
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) acquire(ctx context.Context, token string) error {
	ticker := time.NewTicker(r.opts.Retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, r.opts.LockKey, token, r.opts.LeaseTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquiring lease: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(ctx context.Context, token string) {
	_ = releaseScript.Run(ctx, r.client, []string{r.opts.LockKey}, token).Err()
}

type redisTx struct {
	ctx    context.Context
	client *redis.Client
	writes map[string][]byte
}

func (t *redisTx) Get(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return append([]byte(nil), v...), nil
	}
	v, err := t.client.Get(t.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (t *redisTx) Put(key string, value []byte) error {
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *redisTx) Scan(prefix string, fn func(string, []byte) error) error {
	seen := make(map[string]struct{})
	var keys []string
	iter := t.client.Scan(t.ctx, 0, globEscape(prefix)+"*", 500).Iterator()
	for iter.Next(t.ctx) {
		k := iter.Val()
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	for k := range t.writes {
		if _, dup := seen[k]; !dup && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := t.Get(k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
