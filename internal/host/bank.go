package host

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrInsufficientTokens = errors.New("insufficient token balance")
var ErrMissingSignature = errors.New("missing required signature")
var ErrAccountNotFound = errors.New("account not found")
var ErrMintNotFound = errors.New("mint not found")
var ErrMintMismatch = errors.New("token account mint mismatch")
var ErrOverflow = errors.New("arithmetic overflow")

// Mint describes a token and who may issue it.
type Mint struct {
	Address   solana.PublicKey `json:"address"`
	Authority solana.PublicKey `json:"authority"`
	Decimals  uint8            `json:"decimals"`
	Supply    uint64           `json:"supply"`
}

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Address solana.PublicKey `json:"address"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// Bank is the execution environment programs run against. It owns every
// lamport and token balance and runs one invocation at a time.
type Bank struct {
	mu         sync.Mutex
	programID  solana.PublicKey
	lamports   map[solana.PublicKey]uint64
	mints      map[solana.PublicKey]Mint
	tokens     map[solana.PublicKey]TokenAccount
	signatures map[solana.Signature]struct{}
	store      StateStore
	logger     *zap.Logger
}

// NewBank creates an empty bank hosting the given program.
func NewBank(programID solana.PublicKey, logger *zap.Logger) *Bank {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bank{
		programID:  programID,
		lamports:   map[solana.PublicKey]uint64{},
		mints:      map[solana.PublicKey]Mint{},
		tokens:     map[solana.PublicKey]TokenAccount{},
		signatures: map[solana.Signature]struct{}{},
		logger:     logger,
	}
}

func (b *Bank) ProgramID() solana.PublicKey {
	return b.programID
}

// FindProgramAddress derives the program address for seeds under the hosted program.
func (b *Bank) FindProgramAddress(seeds [][]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, b.programID)
}

// Invoke verifies ix and runs fn against a staged transaction. Staged
// changes are applied only if fn returns nil and, when the bank is
// persisted, only once they are saved.
func (b *Bank) Invoke(ctx context.Context, ix Instruction, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ix.Program.Equals(b.programID) {
		return ErrProgramMismatch
	}
	return b.invoke(ctx, ix, fn)
}

func (b *Bank) invoke(ctx context.Context, ix Instruction, fn func(tx *Tx) error) error {
	if err := ix.Verify(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.signatures[ix.Signature]; seen {
		return ErrDuplicateSignature
	}
	// the lock may have been contended
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTx(b, ix.Signer)
	if err := fn(tx); err != nil {
		b.logger.Debug("invocation rolled back",
			zap.String("instruction", ix.Name),
			zap.String("signer", ix.Signer.String()),
			zap.Error(err),
		)
		return err
	}
	if err := b.commit(ctx, tx, ix.Signature); err != nil {
		b.logger.Warn("invocation undone after commit failure",
			zap.String("instruction", ix.Name),
			zap.String("signer", ix.Signer.String()),
			zap.Error(err),
		)
		return err
	}

	b.logger.Debug("invocation committed",
		zap.String("instruction", ix.Name),
		zap.String("signer", ix.Signer.String()),
		zap.String("signature", ix.Signature.String()),
	)
	return nil
}

// MintToInstruction builds the token program instruction that issues
// amount tokens of mint to owner.
func MintToInstruction(mint, owner solana.PublicKey, amount uint64, nonce string) Instruction {
	return Instruction{
		Program: solana.TokenProgramID,
		Name:    "mint_to",
		Args:    []string{mint.String(), owner.String(), strconv.FormatUint(amount, 10)},
		Nonce:   nonce,
	}
}

// MintTo runs a signed mint_to instruction and returns the credited token account.
func (b *Bank) MintTo(ctx context.Context, auth Authorization, mint, owner solana.PublicKey, amount uint64) (TokenAccount, error) {
	if err := ctx.Err(); err != nil {
		return TokenAccount{}, err
	}
	ix := auth.Apply(MintToInstruction(mint, owner, amount, auth.Nonce))

	var acc TokenAccount
	err := b.invoke(ctx, ix, func(tx *Tx) error {
		ata, err := tx.MintTo(mint, owner, amount)
		if err != nil {
			return err
		}
		acc, err = tx.TokenAccount(ata)
		return err
	})
	if err != nil {
		return TokenAccount{}, err
	}
	b.logger.Info("tokens minted",
		zap.String("mint", mint.String()),
		zap.String("owner", owner.String()),
		zap.Uint64("amount", amount),
	)
	return acc, nil
}

// Airdrop credits lamports out of thin air, as a devnet faucet does.
func (b *Bank) Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := newTx(b, to)
	balance, err := add(tx.Lamports(to), lamports)
	if err != nil {
		return 0, err
	}
	tx.lamports[to] = balance
	if err := b.commit(ctx, tx, solana.Signature{}); err != nil {
		return 0, err
	}
	b.logger.Info("airdrop", zap.String("to", to.String()), zap.Uint64("lamports", lamports))
	return balance, nil
}

// CreateMint registers a new mint at a fresh random address.
func (b *Bank) CreateMint(ctx context.Context, authority solana.PublicKey, decimals uint8) (Mint, error) {
	if err := ctx.Err(); err != nil {
		return Mint{}, err
	}
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Mint{}, fmt.Errorf("failed to generate mint address: %w", err)
	}
	mint := Mint{
		Address:   key.PublicKey(),
		Authority: authority,
		Decimals:  decimals,
	}

	b.mu.Lock()
	tx := newTx(b, authority)
	tx.mints[mint.Address] = mint
	err = b.commit(ctx, tx, solana.Signature{})
	b.mu.Unlock()
	if err != nil {
		return Mint{}, err
	}

	b.logger.Info("mint created",
		zap.String("mint", mint.Address.String()),
		zap.String("authority", authority.String()),
		zap.Uint8("decimals", decimals),
	)
	return mint, nil
}

func (b *Bank) Balance(key solana.PublicKey) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lamports[key]
}

func (b *Bank) GetMint(address solana.PublicKey) (Mint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mints[address]
	if !ok {
		return Mint{}, ErrMintNotFound
	}
	return m, nil
}

// TokenBalance returns the amount held in owner's associated account for mint.
func (b *Bank) TokenBalance(owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mints[mint]; !ok {
		return 0, ErrMintNotFound
	}
	return b.tokens[ata].Amount, nil
}

func add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}
