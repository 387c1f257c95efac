package api

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/internal/channel"
	"github.com/0xArcturus/gmx-synthetics/internal/deposit"
	"github.com/0xArcturus/gmx-synthetics/internal/oracle"
	"github.com/0xArcturus/gmx-synthetics/internal/store"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// Server hosts the HTTP surface of the deposit service: creating, inspecting
// and cancelling deposits plus read-only market and price endpoints.
type Server struct {
	cfg        appconfig.APIConfig
	log        *logger.Log
	handler    *deposit.Handler
	executor   *deposit.Executor
	builder    *oracle.SnapshotBuilder
	store      *store.DepositStore
	markets    *deposit.MarketSet
	cache      *oracle.PriceCache
	channels   *channel.Channels
	httpServer *http.Server
}

// NewServer constructs an API server when the API feature is enabled. When
// disabled the returned server is nil.
func NewServer(cfg appconfig.APIConfig, handler *deposit.Handler, executor *deposit.Executor, builder *oracle.SnapshotBuilder, st *store.DepositStore, markets *deposit.MarketSet, cache *oracle.PriceCache, channels *channel.Channels) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	return &Server{
		cfg:      cfg,
		log:      logger.GetLogger(),
		handler:  handler,
		executor: executor,
		builder:  builder,
		store:    st,
		markets:  markets,
		cache:    cache,
		channels: channels,
	}, nil
}

// Run starts the HTTP server and blocks until the provided context is
// cancelled or the underlying server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("api").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("api server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

// Address reports the network address the API server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

type createDepositRequest struct {
	Account          string `json:"account" binding:"required"`
	Market           string `json:"market" binding:"required"`
	Receiver         string `json:"receiver"`
	CallbackContract string `json:"callback_contract"`
	LongTokenAmount  string `json:"long_token_amount"`
	ShortTokenAmount string `json:"short_token_amount"`
	MinMarketTokens  string `json:"min_market_tokens"`
	ExecutionFee     string `json:"execution_fee"`
	ShouldConvertETH bool   `json:"should_convert_eth"`
	CallbackGasLimit uint64 `json:"callback_gas_limit"`
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.POST("/api/deposits", s.createDeposit)
	router.GET("/api/deposits", s.listDeposits)
	router.GET("/api/deposits/:key", s.getDeposit)
	router.POST("/api/deposits/:key/execute", s.executeDeposit)
	router.DELETE("/api/deposits/:key", s.cancelDeposit)
	router.GET("/api/markets", s.listMarkets)
	router.GET("/api/prices", s.listPrices)
	router.GET("/api/stats", s.stats)

	return router, nil
}

func (s *Server) createDeposit(c *gin.Context) {
	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := models.CreateDepositParams{
		Market:           models.Address(req.Market).Normalize(),
		Receiver:         models.Address(req.Receiver).Normalize(),
		CallbackContract: models.Address(req.CallbackContract).Normalize(),
		ShouldConvertETH: req.ShouldConvertETH,
		CallbackGasLimit: req.CallbackGasLimit,
	}

	var err error
	if params.LongTokenAmount, err = parseAmount(req.LongTokenAmount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid long_token_amount"})
		return
	}
	if params.ShortTokenAmount, err = parseAmount(req.ShortTokenAmount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid short_token_amount"})
		return
	}
	if params.MinMarketTokens, err = parseAmount(req.MinMarketTokens); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_market_tokens"})
		return
	}
	if params.ExecutionFee, err = parseAmount(req.ExecutionFee); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution_fee"})
		return
	}

	key, err := s.handler.CreateDeposit(c.Request.Context(), models.Address(req.Account).Normalize(), params)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

func (s *Server) getDeposit(c *gin.Context) {
	dep, err := s.store.Get(c.Param("key"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) listDeposits(c *gin.Context) {
	keys := s.store.Pending(0)
	c.JSON(http.StatusOK, gin.H{
		"pending": keys,
		"count":   len(keys),
	})
}

// executeDeposit settles a single deposit on demand using a snapshot pinned
// to its creation block. The keeper does the same thing continuously.
func (s *Server) executeDeposit(c *gin.Context) {
	key := c.Param("key")

	dep, err := s.store.Get(key)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	market, err := s.markets.Get(dep.Market)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	params, err := s.builder.BuildParams(market, dep.UpdatedAtBlock)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	minted, err := s.executor.ExecuteDeposit(c.Request.Context(), key, params)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":    key,
		"minted": minted.String(),
		"block":  params.OracleBlockNumber,
	})
}

func (s *Server) cancelDeposit(c *gin.Context) {
	if err := s.handler.CancelDeposit(c.Request.Context(), c.Param("key")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": c.Param("key")})
}

func (s *Server) listMarkets(c *gin.Context) {
	all := s.markets.All()
	payload := make([]gin.H, 0, len(all))
	for _, m := range all {
		payload = append(payload, gin.H{
			"name":         m.Name(),
			"market_token": m.MarketToken,
			"index_token":  m.IndexToken,
			"long_token":   m.LongToken,
			"short_token":  m.ShortToken,
		})
	}
	c.JSON(http.StatusOK, gin.H{"markets": payload})
}

func (s *Server) listPrices(c *gin.Context) {
	symbols := s.cache.Symbols()
	payload := make([]gin.H, 0, len(symbols))
	for _, sym := range symbols {
		quote, err := s.cache.Quote(sym, time.Minute)
		if err != nil {
			continue
		}
		payload = append(payload, gin.H{
			"symbol":      sym,
			"min":         quote.Min,
			"median":      quote.Median,
			"max":         quote.Max,
			"sources":     quote.Sources,
			"observed_at": quote.ObservedAt.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"prices": payload})
}

func (s *Server) stats(c *gin.Context) {
	chStats := s.channels.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"pending_deposits":    s.store.Count(),
		"total_deposits":      s.store.TotalInserted(),
		"settlements_sent":    chStats.SettlementsSent,
		"settlements_dropped": chStats.SettlementsDropped,
	})
}

func parseAmount(v string) (*big.Int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	out, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
	if !ok {
		return nil, errors.New("invalid amount")
	}
	return out, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidMarket),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrUnknownToken):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrMissingOraclePrice),
		errors.Is(err, models.ErrStaleOracleData),
		errors.Is(err, models.ErrOracleBlockMismatch),
		errors.Is(err, models.ErrInsufficientOutputAmount):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
