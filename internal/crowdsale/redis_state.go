package crowdsale

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"api_crowdsale/internal/host"
)

// RedisStorage keeps the host bank next to the records so both survive a
// restart. Layout under prefix:
//
//	<prefix>:bank:lamports    hash address -> lamports
//	<prefix>:bank:mints       hash address -> mint JSON
//	<prefix>:bank:tokens      hash address -> token account JSON
//	<prefix>:bank:signatures  set of accepted signatures
var _ host.StateStore = (*RedisStorage)(nil)

func (r *RedisStorage) bankKey(name string) string {
	return r.prefix + ":bank:" + name
}

func (r *RedisStorage) LoadState(ctx context.Context) (*host.State, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	var lamports, mints, tokens *redis.MapStringStringCmd
	var signatures *redis.StringSliceCmd
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		lamports = pipe.HGetAll(ctx, r.bankKey("lamports"))
		mints = pipe.HGetAll(ctx, r.bankKey("mints"))
		tokens = pipe.HGetAll(ctx, r.bankKey("tokens"))
		signatures = pipe.SMembers(ctx, r.bankKey("signatures"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read bank state: %w", err)
	}

	s := &host.State{
		Lamports: make(map[solana.PublicKey]uint64, len(lamports.Val())),
		Mints:    make(map[solana.PublicKey]host.Mint, len(mints.Val())),
		Tokens:   make(map[solana.PublicKey]host.TokenAccount, len(tokens.Val())),
	}
	for field, value := range lamports.Val() {
		key, err := solana.PublicKeyFromBase58(field)
		if err != nil {
			return nil, fmt.Errorf("invalid account %q: %w", field, err)
		}
		if s.Lamports[key], err = strconv.ParseUint(value, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid balance for %s: %w", field, err)
		}
	}
	for field, value := range mints.Val() {
		var m host.Mint
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			return nil, fmt.Errorf("failed to decode mint %s: %w", field, err)
		}
		s.Mints[m.Address] = m
	}
	for field, value := range tokens.Val() {
		var a host.TokenAccount
		if err := json.Unmarshal([]byte(value), &a); err != nil {
			return nil, fmt.Errorf("failed to decode token account %s: %w", field, err)
		}
		s.Tokens[a.Address] = a
	}
	for _, value := range signatures.Val() {
		sig, err := solana.SignatureFromBase58(value)
		if err != nil {
			return nil, fmt.Errorf("invalid signature %q: %w", value, err)
		}
		s.Signatures = append(s.Signatures, sig)
	}
	return s, nil
}

func (r *RedisStorage) SaveState(ctx context.Context, change *host.State) error {
	return r.writeState(ctx, change, false)
}

func (r *RedisStorage) ReplaceState(ctx context.Context, s *host.State) error {
	return r.writeState(ctx, s, true)
}

func (r *RedisStorage) writeState(ctx context.Context, s *host.State, replace bool) error {
	lamports := make(map[string]any, len(s.Lamports))
	for k, v := range s.Lamports {
		lamports[k.String()] = strconv.FormatUint(v, 10)
	}
	mints := make(map[string]any, len(s.Mints))
	for k, v := range s.Mints {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode mint: %w", err)
		}
		mints[k.String()] = data
	}
	tokens := make(map[string]any, len(s.Tokens))
	for k, v := range s.Tokens {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode token account: %w", err)
		}
		tokens[k.String()] = data
	}
	signatures := make([]any, 0, len(s.Signatures))
	for _, sig := range s.Signatures {
		signatures = append(signatures, sig.String())
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if replace {
			pipe.Del(ctx, r.bankKey("lamports"), r.bankKey("mints"), r.bankKey("tokens"), r.bankKey("signatures"))
		}
		if len(lamports) > 0 {
			pipe.HSet(ctx, r.bankKey("lamports"), lamports)
		}
		if len(mints) > 0 {
			pipe.HSet(ctx, r.bankKey("mints"), mints)
		}
		if len(tokens) > 0 {
			pipe.HSet(ctx, r.bankKey("tokens"), tokens)
		}
		if len(signatures) > 0 {
			pipe.SAdd(ctx, r.bankKey("signatures"), signatures...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store bank state: %w", err)
	}
	return nil
}
