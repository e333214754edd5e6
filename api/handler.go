package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_crowdsale/internal/crowdsale"
	"api_crowdsale/internal/host"
)

// crowdsaleHandler holds the crowdsale service and implements HTTP handlers for program operations.
type crowdsaleHandler struct {
	crowdsaleService *crowdsale.Service
	logger           *zap.Logger
}

// NewCrowdsaleHandler creates a new crowdsale handler.
func NewCrowdsaleHandler(crowdsaleService *crowdsale.Service, logger *zap.Logger) *crowdsaleHandler {
	return &crowdsaleHandler{
		crowdsaleService: crowdsaleService,
		logger:           logger,
	}
}

// handleInitialize handles the POST /crowdsales endpoint.
func (h *crowdsaleHandler) handleInitialize(ctx *gin.Context) {
	var req initializeRequest
	if !h.bind(ctx, &req) {
		return
	}

	c, err := h.crowdsaleService.Initialize(requestContext(ctx), req.authorization(),
		solana.MustPublicKeyFromBase58(req.ID), solana.MustPublicKeyFromBase58(req.Mint), req.Cost)
	if err != nil {
		respondWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, c)
}

// handleBuyTokens handles the POST /crowdsales/:address/purchases endpoint.
func (h *crowdsaleHandler) handleBuyTokens(ctx *gin.Context) {
	address, ok := pathKey(ctx, "address")
	if !ok {
		return
	}
	var req buyTokensRequest
	if !h.bind(ctx, &req) {
		return
	}

	p, err := h.crowdsaleService.BuyTokens(requestContext(ctx), req.authorization(), address, req.Amount)
	if err != nil {
		respondWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, p)
}

// handleWithdraw handles the POST /crowdsales/:address/withdrawals endpoint.
func (h *crowdsaleHandler) handleWithdraw(ctx *gin.Context) {
	address, ok := pathKey(ctx, "address")
	if !ok {
		return
	}
	var req withdrawRequest
	if !h.bind(ctx, &req) {
		return
	}

	w, err := h.crowdsaleService.Withdraw(requestContext(ctx), req.authorization(), address)
	if err != nil {
		respondWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, w)
}

func (h *crowdsaleHandler) handleGetCrowdsale(ctx *gin.Context) {
	address, ok := pathKey(ctx, "address")
	if !ok {
		return
	}
	c, err := h.crowdsaleService.GetCrowdsale(requestContext(ctx), address)
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, c)
}

func (h *crowdsaleHandler) handleListCrowdsales(ctx *gin.Context) {
	all, err := h.crowdsaleService.ListCrowdsales(requestContext(ctx))
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": all})
}

func (h *crowdsaleHandler) handleSearchPurchases(ctx *gin.Context) {
	address, ok := pathKey(ctx, "address")
	if !ok {
		return
	}

	var buyer *solana.PublicKey
	if raw := ctx.Query("buyer"); raw != "" {
		key, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid buyer"})
			return
		}
		buyer = &key
	}

	results, metadata, err := h.crowdsaleService.SearchPurchases(requestContext(ctx), address, buyer)
	if err != nil {
		h.logger.Error("Error searching purchases",
			zap.String("crowdsale", address.String()),
			zap.String("buyer_filter", ctx.Query("buyer")),
			zap.Error(err),
		)
		respondWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"results": results, "metadata": metadata})
}

func (h *crowdsaleHandler) handleListWithdrawals(ctx *gin.Context) {
	address, ok := pathKey(ctx, "address")
	if !ok {
		return
	}
	list, err := h.crowdsaleService.Withdrawals(requestContext(ctx), address)
	if err != nil {
		respondWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": list})
}

// bind decodes and validates the JSON body, answering 400 itself on failure.
func (h *crowdsaleHandler) bind(ctx *gin.Context, req any) bool {
	return bindRequest(ctx, h.logger, req)
}

func bindRequest(ctx *gin.Context, logger *zap.Logger, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return false
	}
	if errs := ValidateRequest(req); errs != nil {
		RespondWithValidationError(ctx, errs)
		return false
	}
	return true
}

func pathKey(ctx *gin.Context, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(ctx.Param(name))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return solana.PublicKey{}, false
	}
	return key, true
}

func requestContext(ctx *gin.Context) context.Context {
	return ctx.Request.Context()
}

// respondWithError maps program and host errors onto HTTP status codes.
func respondWithError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, crowdsale.ErrNotFound),
		errors.Is(err, host.ErrMintNotFound),
		errors.Is(err, host.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, crowdsale.ErrInvalidID),
		errors.Is(err, crowdsale.ErrInvalidCost),
		errors.Is(err, crowdsale.ErrInvalidAmount),
		errors.Is(err, host.ErrMintMismatch),
		errors.Is(err, host.ErrProgramMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, host.ErrInvalidSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, crowdsale.ErrUnauthorized),
		errors.Is(err, host.ErrMissingSignature):
		status = http.StatusForbidden
	case errors.Is(err, crowdsale.ErrAlreadyInitialized),
		errors.Is(err, host.ErrDuplicateSignature):
		status = http.StatusConflict
	case errors.Is(err, host.ErrInsufficientFunds),
		errors.Is(err, host.ErrInsufficientTokens),
		errors.Is(err, crowdsale.ErrNothingToWithdraw),
		errors.Is(err, host.ErrOverflow):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		ctx.JSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
