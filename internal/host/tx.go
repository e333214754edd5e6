package host

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Tx is the view a program gets during Invoke. Writes are staged and
// reach the bank only on commit.
type Tx struct {
	bank     *Bank
	signer   solana.PublicKey
	signers  map[solana.PublicKey]struct{}
	lamports map[solana.PublicKey]uint64
	tokens   map[solana.PublicKey]TokenAccount
	mints    map[solana.PublicKey]Mint
	hooks    []func(ctx context.Context) error
}

func newTx(b *Bank, signer solana.PublicKey) *Tx {
	return &Tx{
		bank:     b,
		signer:   signer,
		signers:  map[solana.PublicKey]struct{}{signer: {}},
		lamports: map[solana.PublicKey]uint64{},
		tokens:   map[solana.PublicKey]TokenAccount{},
		mints:    map[solana.PublicKey]Mint{},
	}
}

// Signer returns the key that signed the instruction.
func (tx *Tx) Signer() solana.PublicKey {
	return tx.signer
}

// OnCommit registers fn to run after the staged changes are applied and
// saved. If fn fails the whole transaction is undone.
func (tx *Tx) OnCommit(fn func(ctx context.Context) error) {
	tx.hooks = append(tx.hooks, fn)
}

func (tx *Tx) isSigner(key solana.PublicKey) bool {
	_, ok := tx.signers[key]
	return ok
}

// SignWithSeeds derives the program address for seeds and lets the
// program act as that address for the rest of the transaction.
func (tx *Tx) SignWithSeeds(seeds [][]byte) (solana.PublicKey, error) {
	addr, _, err := tx.bank.FindProgramAddress(seeds)
	if err != nil {
		return solana.PublicKey{}, err
	}
	tx.signers[addr] = struct{}{}
	return addr, nil
}

func (tx *Tx) Lamports(key solana.PublicKey) uint64 {
	if v, ok := tx.lamports[key]; ok {
		return v
	}
	return tx.bank.lamports[key]
}

// Transfer moves lamports between accounts. from must have signed.
func (tx *Tx) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if !tx.isSigner(from) {
		return ErrMissingSignature
	}
	if lamports == 0 || from.Equals(to) {
		return nil
	}
	src := tx.Lamports(from)
	if src < lamports {
		return ErrInsufficientFunds
	}
	dst, err := add(tx.Lamports(to), lamports)
	if err != nil {
		return err
	}
	tx.lamports[from] = src - lamports
	tx.lamports[to] = dst
	return nil
}

func (tx *Tx) Mint(address solana.PublicKey) (Mint, error) {
	if m, ok := tx.mints[address]; ok {
		return m, nil
	}
	m, ok := tx.bank.mints[address]
	if !ok {
		return Mint{}, ErrMintNotFound
	}
	return m, nil
}

func (tx *Tx) TokenAccount(address solana.PublicKey) (TokenAccount, error) {
	if a, ok := tx.tokens[address]; ok {
		return a, nil
	}
	a, ok := tx.bank.tokens[address]
	if !ok {
		return TokenAccount{}, ErrAccountNotFound
	}
	return a, nil
}

// CreateAssociatedTokenAccount returns owner's associated account for mint,
// creating it if it does not exist yet.
func (tx *Tx) CreateAssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if _, err := tx.Mint(mint); err != nil {
		return solana.PublicKey{}, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if _, err := tx.TokenAccount(ata); err == nil {
		return ata, nil
	}
	tx.tokens[ata] = TokenAccount{Address: ata, Mint: mint, Owner: owner}
	return ata, nil
}

// TransferTokens moves amount between two accounts of the same mint. The
// source owner must have signed.
func (tx *Tx) TransferTokens(source, destination solana.PublicKey, amount uint64) error {
	src, err := tx.TokenAccount(source)
	if err != nil {
		return err
	}
	dst, err := tx.TokenAccount(destination)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return ErrMintMismatch
	}
	if !tx.isSigner(src.Owner) {
		return ErrMissingSignature
	}
	if amount == 0 || source.Equals(destination) {
		return nil
	}
	if src.Amount < amount {
		return ErrInsufficientTokens
	}
	if dst.Amount, err = add(dst.Amount, amount); err != nil {
		return err
	}
	src.Amount -= amount
	tx.tokens[source] = src
	tx.tokens[destination] = dst
	return nil
}

// MintTo issues new tokens into owner's associated account. The mint
// authority must have signed.
func (tx *Tx) MintTo(mint, owner solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	m, err := tx.Mint(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !tx.isSigner(m.Authority) {
		return solana.PublicKey{}, ErrMissingSignature
	}
	ata, err := tx.CreateAssociatedTokenAccount(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	acc, err := tx.TokenAccount(ata)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if m.Supply, err = add(m.Supply, amount); err != nil {
		return solana.PublicKey{}, err
	}
	if acc.Amount, err = add(acc.Amount, amount); err != nil {
		return solana.PublicKey{}, err
	}
	tx.mints[mint] = m
	tx.tokens[ata] = acc
	return ata, nil
}

// apply writes the staged changes into the bank and returns a func that
// puts the previous values back.
func (tx *Tx) apply() (undo func()) {
	b := tx.bank
	prevLamports := make(map[solana.PublicKey]uint64, len(tx.lamports))
	for k, v := range tx.lamports {
		prevLamports[k] = b.lamports[k]
		b.lamports[k] = v
	}
	prevTokens := make(map[solana.PublicKey]*TokenAccount, len(tx.tokens))
	for k, v := range tx.tokens {
		if old, ok := b.tokens[k]; ok {
			prevTokens[k] = &old
		} else {
			prevTokens[k] = nil
		}
		b.tokens[k] = v
	}
	prevMints := make(map[solana.PublicKey]*Mint, len(tx.mints))
	for k, v := range tx.mints {
		if old, ok := b.mints[k]; ok {
			prevMints[k] = &old
		} else {
			prevMints[k] = nil
		}
		b.mints[k] = v
	}

	return func() {
		for k, v := range prevLamports {
			if v == 0 {
				delete(b.lamports, k)
				continue
			}
			b.lamports[k] = v
		}
		for k, v := range prevTokens {
			if v == nil {
				delete(b.tokens, k)
				continue
			}
			b.tokens[k] = *v
		}
		for k, v := range prevMints {
			if v == nil {
				delete(b.mints, k)
				continue
			}
			b.mints[k] = *v
		}
	}
}

// change returns what the transaction wrote. The maps are shared with tx,
// which is never written again once committed.
func (tx *Tx) change() *State {
	return &State{
		Lamports: tx.lamports,
		Mints:    tx.mints,
		Tokens:   tx.tokens,
	}
}
