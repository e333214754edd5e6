package api

import (
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_crowdsale/internal/host"
)

// hostHandler exposes the devnet faucet and balance lookups of the bank.
type hostHandler struct {
	bank   *host.Bank
	logger *zap.Logger
}

func NewHostHandler(bank *host.Bank, logger *zap.Logger) *hostHandler {
	return &hostHandler{bank: bank, logger: logger}
}

func (h *hostHandler) handleAirdrop(ctx *gin.Context) {
	key, ok := pathKey(ctx, "key")
	if !ok {
		return
	}
	var req airdropRequest
	if !bindRequest(ctx, h.logger, &req) {
		return
	}

	balance, err := h.bank.Airdrop(requestContext(ctx), key, req.Lamports)
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, accountResponse{Address: key.String(), Lamports: balance})
}

func (h *hostHandler) handleGetAccount(ctx *gin.Context) {
	key, ok := pathKey(ctx, "key")
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, accountResponse{Address: key.String(), Lamports: h.bank.Balance(key)})
}

func (h *hostHandler) handleCreateMint(ctx *gin.Context) {
	var req createMintRequest
	if !bindRequest(ctx, h.logger, &req) {
		return
	}

	mint, err := h.bank.CreateMint(requestContext(ctx), solana.MustPublicKeyFromBase58(req.Authority), req.Decimals)
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, mint)
}

func (h *hostHandler) handleGetMint(ctx *gin.Context) {
	mintKey, ok := pathKey(ctx, "mint")
	if !ok {
		return
	}
	mint, err := h.bank.GetMint(mintKey)
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mint)
}

func (h *hostHandler) handleMintTo(ctx *gin.Context) {
	mint, ok := pathKey(ctx, "mint")
	if !ok {
		return
	}
	var req mintToRequest
	if !bindRequest(ctx, h.logger, &req) {
		return
	}

	acc, err := h.bank.MintTo(requestContext(ctx), req.authorization(), mint,
		solana.MustPublicKeyFromBase58(req.Owner), req.Amount)
	if err != nil {
		h.logger.Warn("mint_to failed", zap.String("mint", mint.String()), zap.Error(err))
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, acc)
}

func (h *hostHandler) handleTokenBalance(ctx *gin.Context) {
	mint, ok := pathKey(ctx, "mint")
	if !ok {
		return
	}
	owner, ok := pathKey(ctx, "owner")
	if !ok {
		return
	}
	amount, err := h.bank.TokenBalance(owner, mint)
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, tokenBalanceResponse{Mint: mint.String(), Owner: owner.String(), Amount: amount})
}
