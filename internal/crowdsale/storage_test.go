package crowdsale

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStorage connects to REDIS_ADDR when set and to an in-process
// server otherwise. Each call gets its own key prefix.
func newRedisStorage(t *testing.T) *RedisStorage {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	rdb, err := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStorage(rdb, "test:"+uuid.NewString())
}

func testStorages(t *testing.T) map[string]Storage {
	return map[string]Storage{
		"local": NewLocalStorage(),
		"redis": newRedisStorage(t),
	}
}

func TestStorage_SetRead(t *testing.T) {
	ctx := context.Background()
	for name, storage := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			key, err := solana.NewRandomPrivateKey()
			require.NoError(t, err)
			c := &Crowdsale{Address: key.PublicKey(), Owner: newKey(t).PublicKey(), Cost: 4, CreatedAt: time.Now(), Version: 1}

			require.NoError(t, storage.Set(ctx, c))

			got, err := storage.Read(ctx, c.Address.String())
			require.NoError(t, err)
			assert.Equal(t, uint32(4), got.Cost)
			assert.Equal(t, c.Owner, got.Owner)

			// mutating the returned copy leaves the stored record alone
			got.Cost = 99
			again, err := storage.Read(ctx, c.Address.String())
			require.NoError(t, err)
			assert.Equal(t, uint32(4), again.Cost)

			_, err = storage.Read(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, storage.Set(ctx, &Crowdsale{}), ErrEmptyID)
		})
	}
}

func TestStorage_GetAllKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	for name, storage := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now()
			var want []solana.PublicKey
			for i := 0; i < 3; i++ {
				key, err := solana.NewRandomPrivateKey()
				require.NoError(t, err)
				c := &Crowdsale{Address: key.PublicKey(), CreatedAt: base.Add(time.Duration(i) * time.Second)}
				require.NoError(t, storage.Set(ctx, c))
				want = append(want, c.Address)
			}
			// updating an existing record must not move it
			first, err := storage.Read(ctx, want[0].String())
			require.NoError(t, err)
			first.Version++
			first.CreatedAt = base.Add(time.Hour)
			require.NoError(t, storage.Set(ctx, first))

			all, err := storage.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			for i, c := range all {
				assert.Equal(t, want[i], c.Address)
			}
		})
	}
}

func TestStorage_SavePurchaseAndWithdrawal(t *testing.T) {
	ctx := context.Background()
	for name, storage := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			key, err := solana.NewRandomPrivateKey()
			require.NoError(t, err)
			c := &Crowdsale{Address: key.PublicKey(), CreatedAt: time.Now(), Version: 1}
			require.NoError(t, storage.Set(ctx, c))

			c.TokensSold, c.Version = 1, 2
			require.NoError(t, storage.SavePurchase(ctx, c, &Purchase{ID: uuid.NewString(), Crowdsale: c.Address, Tokens: 1}))
			c.TokensSold, c.Version = 3, 3
			require.NoError(t, storage.SavePurchase(ctx, c, &Purchase{ID: uuid.NewString(), Crowdsale: c.Address, Tokens: 2}))

			assert.ErrorIs(t, storage.SavePurchase(ctx, c, &Purchase{Crowdsale: c.Address}), ErrEmptyID)
			assert.ErrorIs(t, storage.SavePurchase(ctx, &Crowdsale{}, &Purchase{ID: uuid.NewString()}), ErrEmptyID)

			got, err := storage.Read(ctx, c.Address.String())
			require.NoError(t, err)
			assert.Equal(t, uint64(3), got.TokensSold)
			assert.Equal(t, 3, got.Version)

			purchases, err := storage.Purchases(ctx, c.Address.String())
			require.NoError(t, err)
			require.Len(t, purchases, 2)
			assert.Equal(t, uint64(1), purchases[0].Tokens)
			assert.Equal(t, uint64(2), purchases[1].Tokens)

			c.Balance, c.Version = 0, 4
			require.NoError(t, storage.SaveWithdrawal(ctx, c, &Withdrawal{ID: uuid.NewString(), Crowdsale: c.Address, Lamports: 9}))
			withdrawals, err := storage.Withdrawals(ctx, c.Address.String())
			require.NoError(t, err)
			require.Len(t, withdrawals, 1)
			assert.Equal(t, uint64(9), withdrawals[0].Lamports)

			got, err = storage.Read(ctx, c.Address.String())
			require.NoError(t, err)
			assert.Equal(t, 4, got.Version)

			empty, err := storage.Purchases(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestRedisStorage_GetAllSkipsMissingRecords(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	kept := &Crowdsale{Address: newKey(t).PublicKey(), CreatedAt: time.Now()}
	gone := &Crowdsale{Address: newKey(t).PublicKey(), CreatedAt: time.Now().Add(time.Second)}
	require.NoError(t, storage.Set(ctx, kept))
	require.NoError(t, storage.Set(ctx, gone))
	require.NoError(t, storage.rdb.Del(ctx, storage.recordKey(gone.Address.String())).Err())

	all, err := storage.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.Address, all[0].Address)
}

func TestRedisStorage_HonoursCallerContext(t *testing.T) {
	storage := newRedisStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := storage.Set(ctx, &Crowdsale{Address: newKey(t).PublicKey(), CreatedAt: time.Now()})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = storage.Read(ctx, newKey(t).PublicKey().String())
	assert.ErrorIs(t, err, context.Canceled)
}
