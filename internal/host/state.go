package host

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// State is a set of bank accounts and seen signatures. SaveState receives
// only what one commit wrote; LoadState and ReplaceState work on the whole
// bank.
type State struct {
	Lamports   map[solana.PublicKey]uint64
	Mints      map[solana.PublicKey]Mint
	Tokens     map[solana.PublicKey]TokenAccount
	Signatures []solana.Signature
}

// StateStore keeps bank state across restarts.
type StateStore interface {
	// LoadState returns everything saved so far. An empty store yields an
	// empty State.
	LoadState(ctx context.Context) (*State, error)
	// SaveState upserts the accounts and signatures in change.
	SaveState(ctx context.Context, change *State) error
	// ReplaceState discards whatever is stored and writes s.
	ReplaceState(ctx context.Context, s *State) error
}

// Persist loads the state saved in store and saves every later commit back
// to it. Call it before the bank serves any invocation.
func (b *Bank) Persist(ctx context.Context, store StateStore) error {
	s, err := store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bank state: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range s.Lamports {
		b.lamports[k] = v
	}
	for k, v := range s.Mints {
		b.mints[k] = v
	}
	for k, v := range s.Tokens {
		b.tokens[k] = v
	}
	for _, sig := range s.Signatures {
		b.signatures[sig] = struct{}{}
	}
	b.store = store

	b.logger.Info("bank state loaded",
		zap.Int("accounts", len(s.Lamports)),
		zap.Int("mints", len(s.Mints)),
		zap.Int("token_accounts", len(s.Tokens)),
		zap.Int("signatures", len(s.Signatures)),
	)
	return nil
}

// snapshot copies the whole bank. Callers hold b.mu.
func (b *Bank) snapshot() *State {
	s := &State{
		Lamports:   make(map[solana.PublicKey]uint64, len(b.lamports)),
		Mints:      make(map[solana.PublicKey]Mint, len(b.mints)),
		Tokens:     make(map[solana.PublicKey]TokenAccount, len(b.tokens)),
		Signatures: make([]solana.Signature, 0, len(b.signatures)),
	}
	for k, v := range b.lamports {
		s.Lamports[k] = v
	}
	for k, v := range b.mints {
		s.Mints[k] = v
	}
	for k, v := range b.tokens {
		s.Tokens[k] = v
	}
	for sig := range b.signatures {
		s.Signatures = append(s.Signatures, sig)
	}
	return s
}

// commit applies tx, saves what it wrote and then runs its hooks. If any
// step fails the transaction is undone in memory and the store is put back
// to match. Callers hold b.mu.
func (b *Bank) commit(ctx context.Context, tx *Tx, sig solana.Signature) error {
	undo := tx.apply()
	change := tx.change()
	if sig != (solana.Signature{}) {
		b.signatures[sig] = struct{}{}
		change.Signatures = []solana.Signature{sig}
	}
	rollback := func() {
		undo()
		delete(b.signatures, sig)
		b.restoreStore(ctx)
	}

	if b.store != nil {
		if err := b.store.SaveState(ctx, change); err != nil {
			rollback()
			return fmt.Errorf("failed to save bank state: %w", err)
		}
	}
	for _, hook := range tx.hooks {
		if err := hook(ctx); err != nil {
			rollback()
			return err
		}
	}
	return nil
}

// restoreStore overwrites the store with the in-memory bank. It runs even
// when ctx is already done.
func (b *Bank) restoreStore(ctx context.Context) {
	if b.store == nil {
		return
	}
	if err := b.store.ReplaceState(context.WithoutCancel(ctx), b.snapshot()); err != nil {
		b.logger.Error("failed to restore bank state after rollback", zap.Error(err))
	}
}
