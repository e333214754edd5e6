package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_crowdsale/internal/crowdsale"
	"api_crowdsale/internal/host"
	"api_crowdsale/internal/metrics"
)

// InitRoutes registers the crowdsale program endpoints, the devnet faucet
// and the operational routes on the given Gin engine.
func InitRoutes(e *gin.Engine, crowdsaleService *crowdsale.Service, bank *host.Bank, logger *zap.Logger) {
	crowdsaleHandler := NewCrowdsaleHandler(crowdsaleService, logger)
	hostHandler := NewHostHandler(bank, logger)

	e.POST("/crowdsales", crowdsaleHandler.handleInitialize)
	e.GET("/crowdsales", crowdsaleHandler.handleListCrowdsales)
	e.GET("/crowdsales/:address", crowdsaleHandler.handleGetCrowdsale)
	e.POST("/crowdsales/:address/purchases", crowdsaleHandler.handleBuyTokens)
	e.GET("/crowdsales/:address/purchases", crowdsaleHandler.handleSearchPurchases)
	e.POST("/crowdsales/:address/withdrawals", crowdsaleHandler.handleWithdraw)
	e.GET("/crowdsales/:address/withdrawals", crowdsaleHandler.handleListWithdrawals)

	e.GET("/accounts/:key", hostHandler.handleGetAccount)
	e.POST("/accounts/:key/airdrop", hostHandler.handleAirdrop)
	e.POST("/mints", hostHandler.handleCreateMint)
	e.GET("/mints/:mint", hostHandler.handleGetMint)
	e.POST("/mints/:mint/mint-to", hostHandler.handleMintTo)
	e.GET("/mints/:mint/balances/:owner", hostHandler.handleTokenBalance)

	e.GET("/metrics", gin.WrapH(metrics.Handler()))
	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":    "pong",
			"program_id": crowdsaleService.ProgramID().String(),
		})
	})
}
