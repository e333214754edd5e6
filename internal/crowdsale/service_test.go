package crowdsale

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_crowdsale/internal/host"
)

var testProgram = solana.MustPublicKeyFromBase58("HciPz9qoNEBBWga6KWomnDovANbQWnTAT5iFSNW7Ji3K")

type fixture struct {
	svc     *Service
	bank    *host.Bank
	creator solana.PrivateKey
	buyer   solana.PrivateKey
	mint    host.Mint
}

func newKey(t *testing.T) solana.PrivateKey {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key solana.PrivateKey, ix host.Instruction) host.Authorization {
	require.NoError(t, ix.Sign(key))
	return host.Authorization{Signer: ix.Signer, Signature: ix.Signature, Nonce: ix.Nonce}
}

func newFixture(t *testing.T, decimals uint8) *fixture {
	return newFixtureWith(t, decimals, NewLocalStorage(), nil)
}

// newFixtureWith builds a fixture over storage. A non-nil state store
// persists the bank.
func newFixtureWith(t *testing.T, decimals uint8, storage Storage, state host.StateStore) *fixture {
	logger := zaptest.NewLogger(t)
	bank := host.NewBank(testProgram, logger)
	if state != nil {
		require.NoError(t, bank.Persist(context.Background(), state))
	}
	f := &fixture{
		svc:     NewService(storage, bank, logger),
		bank:    bank,
		creator: newKey(t),
		buyer:   newKey(t),
	}
	mint, err := bank.CreateMint(context.Background(), f.creator.PublicKey(), decimals)
	require.NoError(t, err)
	f.mint = mint
	return f
}

func (f *fixture) initialize(t *testing.T, id solana.PublicKey, cost uint32) (*Crowdsale, error) {
	nonce := uuid.NewString()
	auth := sign(t, f.creator, InitializeInstruction(testProgram, id, f.mint.Address, cost, nonce))
	return f.svc.Initialize(context.Background(), auth, id, f.mint.Address, cost)
}

func (f *fixture) buy(t *testing.T, key solana.PrivateKey, address solana.PublicKey, amount uint32) (*Purchase, error) {
	nonce := uuid.NewString()
	auth := sign(t, key, BuyTokensInstruction(testProgram, address, amount, nonce))
	return f.svc.BuyTokens(context.Background(), auth, address, amount)
}

func (f *fixture) withdraw(t *testing.T, key solana.PrivateKey, address solana.PublicKey) (*Withdrawal, error) {
	nonce := uuid.NewString()
	auth := sign(t, key, WithdrawInstruction(testProgram, address, nonce))
	return f.svc.Withdraw(context.Background(), auth, address)
}

// fund puts tokens into the treasury the way the owner would after initialize.
func (f *fixture) fund(t *testing.T, c *Crowdsale, amount uint64) {
	nonce := uuid.NewString()
	ix := host.MintToInstruction(f.mint.Address, c.Authority, amount, nonce)
	auth := sign(t, f.creator, ix)
	acc, err := f.bank.MintTo(context.Background(), auth, f.mint.Address, c.Authority, amount)
	require.NoError(t, err)
	require.Equal(t, c.TokenAccount, acc.Address)
}

func TestNewService(t *testing.T) {
	storage := NewLocalStorage()
	logger := zaptest.NewLogger(t)

	svc := NewService(storage, host.NewBank(testProgram, logger), logger)

	if svc == nil {
		t.Fatal("NewService returned nil")
	}
	assert.NotNil(t, svc.storage)
	assert.NotNil(t, svc.logger)
	assert.Equal(t, testProgram, svc.ProgramID())
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, 0)
	id := newKey(t).PublicKey()

	c, err := f.initialize(t, id, 5)
	require.NoError(t, err)

	addrs, err := DeriveAddresses(testProgram, id)
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, uint32(5), c.Cost)
	assert.Equal(t, addrs.Crowdsale, c.Address)
	assert.Equal(t, addrs.Authority, c.Authority)
	assert.Equal(t, f.creator.PublicKey(), c.Owner)
	assert.Equal(t, f.mint.Address, c.MintAccount)
	assert.Equal(t, uint64(0), c.Balance)
	assert.Equal(t, 1, c.Version)

	ata, _, err := solana.FindAssociatedTokenAddress(c.Authority, f.mint.Address)
	require.NoError(t, err)
	assert.Equal(t, ata, c.TokenAccount)

	stored, err := f.svc.GetCrowdsale(context.Background(), c.Address)
	require.NoError(t, err)
	assert.Equal(t, c.Cost, stored.Cost)
}

func TestInitialize_Rejections(t *testing.T) {
	f := newFixture(t, 0)
	id := newKey(t).PublicKey()

	_, err := f.initialize(t, id, 0)
	assert.ErrorIs(t, err, ErrInvalidCost)

	_, err = f.initialize(t, solana.PublicKey{}, 1)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = f.initialize(t, id, 1)
	require.NoError(t, err)
	_, err = f.initialize(t, id, 2)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	nonce := uuid.NewString()
	other := newKey(t).PublicKey()
	missingMint := newKey(t).PublicKey()
	auth := sign(t, f.creator, InitializeInstruction(testProgram, other, missingMint, 1, nonce))
	_, err = f.svc.Initialize(context.Background(), auth, other, missingMint, 1)
	assert.ErrorIs(t, err, host.ErrMintNotFound)
}

func TestInitialize_SignatureMustCoverArguments(t *testing.T) {
	f := newFixture(t, 0)
	id := newKey(t).PublicKey()

	nonce := uuid.NewString()
	auth := sign(t, f.creator, InitializeInstruction(testProgram, id, f.mint.Address, 1, nonce))
	_, err := f.svc.Initialize(context.Background(), auth, id, f.mint.Address, 1000)
	assert.ErrorIs(t, err, host.ErrInvalidSignature)
}

func TestBuyTokens(t *testing.T) {
	f := newFixture(t, 2)
	c, err := f.initialize(t, newKey(t).PublicKey(), 10)
	require.NoError(t, err)
	f.fund(t, c, 10_000)

	_, err = f.bank.Airdrop(context.Background(), f.buyer.PublicKey(), 1_000)
	require.NoError(t, err)

	p, err := f.buy(t, f.buyer, c.Address, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), p.Lamports)
	assert.Equal(t, uint64(700), p.Tokens)
	assert.Equal(t, f.buyer.PublicKey(), p.Buyer)

	assert.Equal(t, uint64(930), f.bank.Balance(f.buyer.PublicKey()))
	assert.Equal(t, uint64(70), f.bank.Balance(c.Address))
	bal, err := f.bank.TokenBalance(f.buyer.PublicKey(), f.mint.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), bal)
	treasury, err := f.bank.TokenBalance(c.Authority, f.mint.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_300), treasury)

	stored, err := f.svc.GetCrowdsale(context.Background(), c.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), stored.Balance)
	assert.Equal(t, uint64(70), stored.TotalRaised)
	assert.Equal(t, uint64(700), stored.TokensSold)
	assert.Equal(t, 2, stored.Version)
}

func TestBuyTokens_Failures(t *testing.T) {
	f := newFixture(t, 0)
	c, err := f.initialize(t, newKey(t).PublicKey(), 10)
	require.NoError(t, err)

	_, err = f.buy(t, f.buyer, c.Address, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.buy(t, f.buyer, c.Address, 1)
	assert.ErrorIs(t, err, host.ErrInsufficientFunds)

	_, err = f.bank.Airdrop(context.Background(), f.buyer.PublicKey(), 100)
	require.NoError(t, err)
	_, err = f.buy(t, f.buyer, c.Address, 1)
	assert.ErrorIs(t, err, host.ErrInsufficientTokens)
	// the lamport leg rolled back with the token leg
	assert.Equal(t, uint64(100), f.bank.Balance(f.buyer.PublicKey()))
	assert.Equal(t, uint64(0), f.bank.Balance(c.Address))

	_, err = f.buy(t, f.buyer, newKey(t).PublicKey(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.svc.GetCrowdsale(context.Background(), c.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.Balance)
	assert.Equal(t, 1, stored.Version)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, 0)
	c, err := f.initialize(t, newKey(t).PublicKey(), 3)
	require.NoError(t, err)
	f.fund(t, c, 100)
	_, err = f.bank.Airdrop(context.Background(), f.buyer.PublicKey(), 1_000)
	require.NoError(t, err)

	_, err = f.buy(t, f.buyer, c.Address, 10)
	require.NoError(t, err)
	_, err = f.buy(t, f.buyer, c.Address, 5)
	require.NoError(t, err)

	_, err = f.withdraw(t, f.buyer, c.Address)
	assert.ErrorIs(t, err, ErrUnauthorized)

	w, err := f.withdraw(t, f.creator, c.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(45), w.Lamports)
	assert.Equal(t, f.creator.PublicKey(), w.Owner)
	assert.Equal(t, uint64(45), f.bank.Balance(f.creator.PublicKey()))
	assert.Equal(t, uint64(0), f.bank.Balance(c.Address))

	stored, err := f.svc.GetCrowdsale(context.Background(), c.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.Balance)
	assert.Equal(t, uint64(45), stored.TotalRaised)

	_, err = f.withdraw(t, f.creator, c.Address)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)

	list, err := f.svc.Withdrawals(context.Background(), c.Address)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// failingStorage fails record writes while err is set.
type failingStorage struct {
	Storage
	err error
}

func (s *failingStorage) SavePurchase(ctx context.Context, c *Crowdsale, p *Purchase) error {
	if s.err != nil {
		return s.err
	}
	return s.Storage.SavePurchase(ctx, c, p)
}

func (s *failingStorage) SaveWithdrawal(ctx context.Context, c *Crowdsale, w *Withdrawal) error {
	if s.err != nil {
		return s.err
	}
	return s.Storage.SaveWithdrawal(ctx, c, w)
}

func TestBuyTokens_StorageFailureLeavesNoTrace(t *testing.T) {
	storage := &failingStorage{Storage: NewLocalStorage()}
	f := newFixtureWith(t, 0, storage, nil)
	ctx := context.Background()
	c, err := f.initialize(t, newKey(t).PublicKey(), 10)
	require.NoError(t, err)
	f.fund(t, c, 100)
	_, err = f.bank.Airdrop(ctx, f.buyer.PublicKey(), 1_000)
	require.NoError(t, err)

	storage.err = errors.New("disk full")
	auth := sign(t, f.buyer, BuyTokensInstruction(testProgram, c.Address, 5, uuid.NewString()))
	_, err = f.svc.BuyTokens(ctx, auth, c.Address, 5)
	assert.ErrorIs(t, err, storage.err)

	assert.Equal(t, uint64(1_000), f.bank.Balance(f.buyer.PublicKey()))
	assert.Equal(t, uint64(0), f.bank.Balance(c.Address))
	tokens, err := f.bank.TokenBalance(f.buyer.PublicKey(), f.mint.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tokens)
	treasury, err := f.bank.TokenBalance(c.Authority, f.mint.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), treasury)

	stored, err := f.svc.GetCrowdsale(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.Balance)
	assert.Equal(t, uint64(0), stored.TokensSold)
	assert.Equal(t, 1, stored.Version)
	_, meta, err := f.svc.SearchPurchases(ctx, c.Address, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.Quantity)

	// the same signed request goes through once storage is back
	storage.err = nil
	p, err := f.svc.BuyTokens(ctx, auth, c.Address, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), p.Lamports)
	assert.Equal(t, uint64(950), f.bank.Balance(f.buyer.PublicKey()))
}

func TestWithdraw_StorageFailureLeavesNoTrace(t *testing.T) {
	storage := &failingStorage{Storage: NewLocalStorage()}
	f := newFixtureWith(t, 0, storage, nil)
	ctx := context.Background()
	c, err := f.initialize(t, newKey(t).PublicKey(), 10)
	require.NoError(t, err)
	f.fund(t, c, 100)
	_, err = f.bank.Airdrop(ctx, f.buyer.PublicKey(), 1_000)
	require.NoError(t, err)
	_, err = f.buy(t, f.buyer, c.Address, 5)
	require.NoError(t, err)

	storage.err = errors.New("disk full")
	_, err = f.withdraw(t, f.creator, c.Address)
	assert.ErrorIs(t, err, storage.err)

	assert.Equal(t, uint64(0), f.bank.Balance(f.creator.PublicKey()))
	assert.Equal(t, uint64(50), f.bank.Balance(c.Address))
	stored, err := f.svc.GetCrowdsale(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stored.Balance)
	assert.Equal(t, 2, stored.Version)
	list, err := f.svc.Withdrawals(ctx, c.Address)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSearchPurchases(t *testing.T) {
	f := newFixture(t, 0)
	c, err := f.initialize(t, newKey(t).PublicKey(), 2)
	require.NoError(t, err)
	f.fund(t, c, 100)

	other := newKey(t)
	for _, k := range []solana.PrivateKey{f.buyer, other} {
		_, err := f.bank.Airdrop(context.Background(), k.PublicKey(), 100)
		require.NoError(t, err)
	}
	_, err = f.buy(t, f.buyer, c.Address, 3)
	require.NoError(t, err)
	_, err = f.buy(t, other, c.Address, 4)
	require.NoError(t, err)
	_, err = f.buy(t, f.buyer, c.Address, 1)
	require.NoError(t, err)

	all, meta, err := f.svc.SearchPurchases(context.Background(), c.Address, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, PurchasesMetadata{Quantity: 3, Tokens: 8, Lamports: 16}, meta)

	buyer := f.buyer.PublicKey()
	mine, meta, err := f.svc.SearchPurchases(context.Background(), c.Address, &buyer)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Equal(t, PurchasesMetadata{Quantity: 2, Tokens: 4, Lamports: 8}, meta)

	_, _, err = f.svc.SearchPurchases(context.Background(), newKey(t).PublicKey(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScale(t *testing.T) {
	v, err := scale(3, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000_000_000), v)

	_, err = scale(1, 20)
	assert.ErrorIs(t, err, host.ErrOverflow)

	_, err = scale(^uint64(0), 1)
	assert.ErrorIs(t, err, host.ErrOverflow)
}
