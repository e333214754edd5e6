package crowdsale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds each call on top of whatever deadline the caller set.
const redisOpTimeout = 3 * time.Second

// NewRedisClient connects to Redis and pings it before returning.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisStorage keeps crowdsales as JSON values. Layout under prefix:
//
//	<prefix>:crowdsale:<address>              record
//	<prefix>:crowdsales                       sorted set of addresses by creation time
//	<prefix>:crowdsale:<address>:purchases    list of purchases
//	<prefix>:crowdsale:<address>:withdrawals  list of withdrawals
//
// It also stores the host bank state, see redis_state.go.
type RedisStorage struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStorage(rdb redis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "crowdsale"
	}
	return &RedisStorage{rdb: rdb, prefix: prefix}
}

func (r *RedisStorage) recordKey(address string) string {
	return r.prefix + ":crowdsale:" + address
}

func (r *RedisStorage) indexKey() string {
	return r.prefix + ":crowdsales"
}

func (r *RedisStorage) purchasesKey(address string) string {
	return r.recordKey(address) + ":purchases"
}

func (r *RedisStorage) withdrawalsKey(address string) string {
	return r.recordKey(address) + ":withdrawals"
}

func (r *RedisStorage) Set(ctx context.Context, c *Crowdsale) error {
	if c.Address.IsZero() {
		return ErrEmptyID
	}
	return r.save(ctx, c, "", nil)
}

// SavePurchase writes c and appends p in one MULTI/EXEC.
func (r *RedisStorage) SavePurchase(ctx context.Context, c *Crowdsale, p *Purchase) error {
	if c.Address.IsZero() || p.ID == "" {
		return ErrEmptyID
	}
	return r.save(ctx, c, r.purchasesKey(c.Address.String()), p)
}

// SaveWithdrawal writes c and appends w in one MULTI/EXEC.
func (r *RedisStorage) SaveWithdrawal(ctx context.Context, c *Crowdsale, w *Withdrawal) error {
	if c.Address.IsZero() || w.ID == "" {
		return ErrEmptyID
	}
	return r.save(ctx, c, r.withdrawalsKey(c.Address.String()), w)
}

// save stores the record and, when listKey is set, pushes entry onto it.
func (r *RedisStorage) save(ctx context.Context, c *Crowdsale, listKey string, entry any) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode crowdsale: %w", err)
	}
	var item []byte
	if listKey != "" {
		if item, err = json.Marshal(entry); err != nil {
			return fmt.Errorf("failed to encode %s: %w", listKey, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	address := c.Address.String()
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(address), data, 0)
		pipe.ZAddNX(ctx, r.indexKey(), redis.Z{Score: float64(c.CreatedAt.UnixNano()), Member: address})
		if listKey != "" {
			pipe.RPush(ctx, listKey, item)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store crowdsale: %w", err)
	}
	return nil
}

func (r *RedisStorage) Read(ctx context.Context, address string) (*Crowdsale, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	data, err := r.rdb.Get(ctx, r.recordKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read crowdsale: %w", err)
	}
	var c Crowdsale
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode crowdsale: %w", err)
	}
	return &c, nil
}

func (r *RedisStorage) GetAll(ctx context.Context) ([]*Crowdsale, error) {
	addresses, err := func() ([]string, error) {
		ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		return r.rdb.ZRange(ctx, r.indexKey(), 0, -1).Result()
	}()
	if err != nil {
		return nil, fmt.Errorf("failed to list crowdsales: %w", err)
	}
	all := make([]*Crowdsale, 0, len(addresses))
	for _, address := range addresses {
		c, err := r.Read(ctx, address)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, c)
	}
	return all, nil
}

func (r *RedisStorage) Purchases(ctx context.Context, address string) ([]*Purchase, error) {
	var out []*Purchase
	err := r.list(ctx, r.purchasesKey(address), func(data []byte) error {
		var p Purchase
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		out = append(out, &p)
		return nil
	})
	return out, err
}

func (r *RedisStorage) Withdrawals(ctx context.Context, address string) ([]*Withdrawal, error) {
	var out []*Withdrawal
	err := r.list(ctx, r.withdrawalsKey(address), func(data []byte) error {
		var w Withdrawal
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		out = append(out, &w)
		return nil
	})
	return out, err
}

func (r *RedisStorage) list(ctx context.Context, key string, decode func([]byte) error) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	items, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	for _, item := range items {
		if err := decode([]byte(item)); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
	}
	return nil
}
