package crowdsale

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"api_crowdsale/internal/host"
	"api_crowdsale/internal/metrics"
)

var ErrInvalidID = errors.New("invalid crowdsale id")
var ErrInvalidCost = errors.New("cost must be greater than zero")
var ErrInvalidAmount = errors.New("amount must be greater than zero")
var ErrAlreadyInitialized = errors.New("crowdsale already initialized")
var ErrUnauthorized = errors.New("signer is not the crowdsale owner")
var ErrNothingToWithdraw = errors.New("nothing to withdraw")

// Service runs the crowdsale program against a host bank and keeps the
// sale records in a Storage backend.
type Service struct {
	storage Storage
	bank    *host.Bank
	logger  *zap.Logger
	now     func() time.Time
}

// PurchasesMetadata summarises a purchase search.
type PurchasesMetadata struct {
	Quantity int    `json:"quantity"`
	Tokens   uint64 `json:"tokens"`
	Lamports uint64 `json:"lamports"`
}

// NewService creates a new Service.
func NewService(storage Storage, bank *host.Bank, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	return &Service{
		storage: storage,
		bank:    bank,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) ProgramID() solana.PublicKey {
	return s.bank.ProgramID()
}

// Initialize creates the crowdsale for id selling mint at cost lamports per
// token. The signer becomes the owner.
func (s *Service) Initialize(ctx context.Context, auth host.Authorization, id, mint solana.PublicKey, cost uint32) (c *Crowdsale, err error) {
	defer func() { metrics.ObserveInstruction("initialize", err) }()

	if id.IsZero() {
		return nil, ErrInvalidID
	}
	if cost == 0 {
		return nil, ErrInvalidCost
	}
	addrs, err := DeriveAddresses(s.bank.ProgramID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to derive crowdsale addresses: %w", err)
	}

	ix := auth.Apply(InitializeInstruction(s.bank.ProgramID(), id, mint, cost, auth.Nonce))
	err = s.bank.Invoke(ctx, ix, func(tx *host.Tx) error {
		if _, err := s.storage.Read(ctx, addrs.Crowdsale.String()); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		tokenAccount, err := tx.CreateAssociatedTokenAccount(addrs.Authority, mint)
		if err != nil {
			return err
		}

		now := s.now()
		c = &Crowdsale{
			Address:      addrs.Crowdsale,
			ID:           id,
			Cost:         cost,
			MintAccount:  mint,
			TokenAccount: tokenAccount,
			Authority:    addrs.Authority,
			Owner:        tx.Signer(),
			CreatedAt:    now,
			UpdatedAt:    now,
			Version:      1,
		}
		tx.OnCommit(func(ctx context.Context) error {
			if err := s.storage.Set(ctx, c); err != nil {
				return fmt.Errorf("failed to save crowdsale: %w", err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		s.logger.Error("failed to initialize crowdsale",
			zap.String("id", id.String()),
			zap.String("signer", auth.Signer.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("crowdsale initialized",
		zap.String("crowdsale", c.Address.String()),
		zap.String("owner", c.Owner.String()),
		zap.String("mint", mint.String()),
		zap.Uint32("cost", cost),
	)
	return c, nil
}

// BuyTokens charges the signer amount × cost lamports and sends them amount
// whole tokens from the treasury.
func (s *Service) BuyTokens(ctx context.Context, auth host.Authorization, address solana.PublicKey, amount uint32) (p *Purchase, err error) {
	defer func() { metrics.ObserveInstruction("buy_tokens", err) }()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	ix := auth.Apply(BuyTokensInstruction(s.bank.ProgramID(), address, amount, auth.Nonce))
	err = s.bank.Invoke(ctx, ix, func(tx *host.Tx) error {
		c, err := s.storage.Read(ctx, address.String())
		if err != nil {
			return err
		}
		mint, err := tx.Mint(c.MintAccount)
		if err != nil {
			return err
		}

		lamports := uint64(amount) * uint64(c.Cost)
		tokens, err := scale(uint64(amount), mint.Decimals)
		if err != nil {
			return err
		}

		buyer := tx.Signer()
		if err := tx.Transfer(buyer, c.Address, lamports); err != nil {
			return err
		}
		buyerAccount, err := tx.CreateAssociatedTokenAccount(buyer, c.MintAccount)
		if err != nil {
			return err
		}
		if _, err := tx.SignWithSeeds(authoritySeeds(c.ID)); err != nil {
			return err
		}
		if err := tx.TransferTokens(c.TokenAccount, buyerAccount, tokens); err != nil {
			return err
		}

		c.Balance += lamports
		c.TotalRaised += lamports
		c.TokensSold += tokens
		c.UpdatedAt = s.now()
		c.Version++

		p = &Purchase{
			ID:        uuid.NewString(),
			Crowdsale: c.Address,
			Buyer:     buyer,
			Amount:    amount,
			Tokens:    tokens,
			Lamports:  lamports,
			Signature: auth.Signature.String(),
			CreatedAt: c.UpdatedAt,
		}
		tx.OnCommit(func(ctx context.Context) error {
			if err := s.storage.SavePurchase(ctx, c, p); err != nil {
				return fmt.Errorf("failed to save purchase: %w", err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		s.logger.Error("failed to buy tokens",
			zap.String("crowdsale", address.String()),
			zap.String("buyer", auth.Signer.String()),
			zap.Uint32("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.LamportsRaisedTotal.Add(float64(p.Lamports))
	metrics.TokensSoldTotal.Add(float64(p.Tokens))
	s.logger.Info("tokens purchased",
		zap.String("purchase_id", p.ID),
		zap.String("crowdsale", address.String()),
		zap.String("buyer", p.Buyer.String()),
		zap.Uint64("tokens", p.Tokens),
		zap.Uint64("lamports", p.Lamports),
	)
	return p, nil
}

// Withdraw moves every lamport held by the crowdsale to its owner.
func (s *Service) Withdraw(ctx context.Context, auth host.Authorization, address solana.PublicKey) (w *Withdrawal, err error) {
	defer func() { metrics.ObserveInstruction("withdraw", err) }()

	ix := auth.Apply(WithdrawInstruction(s.bank.ProgramID(), address, auth.Nonce))
	err = s.bank.Invoke(ctx, ix, func(tx *host.Tx) error {
		c, err := s.storage.Read(ctx, address.String())
		if err != nil {
			return err
		}
		if !tx.Signer().Equals(c.Owner) {
			return ErrUnauthorized
		}

		lamports := tx.Lamports(c.Address)
		if lamports == 0 {
			return ErrNothingToWithdraw
		}
		if _, err := tx.SignWithSeeds(crowdsaleSeeds(c.ID)); err != nil {
			return err
		}
		if err := tx.Transfer(c.Address, c.Owner, lamports); err != nil {
			return err
		}

		c.Balance = 0
		c.UpdatedAt = s.now()
		c.Version++

		w = &Withdrawal{
			ID:        uuid.NewString(),
			Crowdsale: c.Address,
			Owner:     c.Owner,
			Lamports:  lamports,
			Signature: auth.Signature.String(),
			CreatedAt: c.UpdatedAt,
		}
		tx.OnCommit(func(ctx context.Context) error {
			if err := s.storage.SaveWithdrawal(ctx, c, w); err != nil {
				return fmt.Errorf("failed to save withdrawal: %w", err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		s.logger.Error("failed to withdraw",
			zap.String("crowdsale", address.String()),
			zap.String("signer", auth.Signer.String()),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.LamportsWithdrawnTotal.Add(float64(w.Lamports))
	s.logger.Info("funds withdrawn",
		zap.String("withdrawal_id", w.ID),
		zap.String("crowdsale", address.String()),
		zap.Uint64("lamports", w.Lamports),
	)
	return w, nil
}

func (s *Service) GetCrowdsale(ctx context.Context, address solana.PublicKey) (*Crowdsale, error) {
	return s.storage.Read(ctx, address.String())
}

func (s *Service) ListCrowdsales(ctx context.Context) ([]*Crowdsale, error) {
	all, err := s.storage.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to list crowdsales", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve crowdsales: %w", err)
	}
	return all, nil
}

// SearchPurchases returns the purchases of a crowdsale, optionally only
// those made by buyer, together with totals.
func (s *Service) SearchPurchases(ctx context.Context, address solana.PublicKey, buyer *solana.PublicKey) ([]*Purchase, PurchasesMetadata, error) {
	if _, err := s.storage.Read(ctx, address.String()); err != nil {
		return nil, PurchasesMetadata{}, err
	}
	all, err := s.storage.Purchases(ctx, address.String())
	if err != nil {
		s.logger.Error("failed to get purchases from storage", zap.String("crowdsale", address.String()), zap.Error(err))
		return nil, PurchasesMetadata{}, fmt.Errorf("failed to retrieve purchases: %w", err)
	}

	filtered := make([]*Purchase, 0, len(all))
	metadata := PurchasesMetadata{}
	for _, p := range all {
		if buyer != nil && !p.Buyer.Equals(*buyer) {
			continue
		}
		filtered = append(filtered, p)
		metadata.Quantity++
		metadata.Tokens += p.Tokens
		metadata.Lamports += p.Lamports
	}

	s.logger.Debug("purchase search completed",
		zap.String("crowdsale", address.String()),
		zap.Int("results_count", len(filtered)),
	)
	return filtered, metadata, nil
}

func (s *Service) Withdrawals(ctx context.Context, address solana.PublicKey) ([]*Withdrawal, error) {
	if _, err := s.storage.Read(ctx, address.String()); err != nil {
		return nil, err
	}
	list, err := s.storage.Withdrawals(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve withdrawals: %w", err)
	}
	return list, nil
}

// scale converts whole tokens to base units of a mint with the given decimals.
func scale(amount uint64, decimals uint8) (uint64, error) {
	factor := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		hi, lo := bits.Mul64(factor, 10)
		if hi != 0 {
			return 0, host.ErrOverflow
		}
		factor = lo
	}
	hi, lo := bits.Mul64(amount, factor)
	if hi != 0 {
		return 0, host.ErrOverflow
	}
	return lo, nil
}
