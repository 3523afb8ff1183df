package api

import (
	"errors"
	"net/http"

	"paperdesk/internal/domain"
	"paperdesk/internal/session"

	"github.com/gin-gonic/gin"
)

const defaultUser = "default"

type marketOrderRequest struct {
	Market string  `json:"market" binding:"required,min=3"`
	Side   string  `json:"side" binding:"required,oneof=buy sell"`
	Amount float64 `json:"amount" binding:"gt=0"`
}

type limitOrderRequest struct {
	Market     string  `json:"market" binding:"required,min=3"`
	Side       string  `json:"side" binding:"required,oneof=buy sell"`
	Amount     float64 `json:"amount" binding:"gt=0"`
	LimitPrice float64 `json:"limit_price" binding:"gt=0"`
}

type openPositionRequest struct {
	Market   string  `json:"market" binding:"required,min=3"`
	Side     string  `json:"side" binding:"required,oneof=long short"`
	Margin   float64 `json:"margin" binding:"gt=0"`
	Leverage int     `json:"leverage" binding:"gt=0"`
}

type closePositionRequest struct {
	Percentage float64 `json:"percentage"`
}

type activeMarketRequest struct {
	Market string `json:"market" binding:"required,min=3"`
}

type journalQuery struct {
	Market string `form:"market"`
	Limit  int    `form:"limit"`
}

func (q *journalQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// CurrentUserID resolves the caller's identity. Auth lives upstream; the
// fronting proxy forwards the verified user in X-User-ID.
func CurrentUserID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return defaultUser
}

// userSession resolves (or creates) the caller's session, responding with
// an error itself when the factory fails.
func (s *Server) userSession(c *gin.Context) *session.Session {
	sess, err := s.Sessions.GetOrCreate(CurrentUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "SESSION_ERROR", err.Error())
		return nil
	}
	return sess
}

// respondCommandError maps the engine's error taxonomy onto HTTP statuses.
func respondCommandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, domain.ErrPriceUnavailable):
		respondError(c, http.StatusServiceUnavailable, "PRICE_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrAlreadyProcessing):
		respondError(c, http.StatusConflict, "ALREADY_PROCESSING", err.Error())
	case errors.Is(err, domain.ErrUnknownPosition):
		respondError(c, http.StatusNotFound, "UNKNOWN_POSITION", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// getState returns the full session snapshot.
func (s *Server) getState(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// getJournal lists transactions, optionally filtered by market.
func (s *Server) getJournal(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}

	var q journalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid query parameters")
		return
	}
	q.normalize()

	txs := sess.Snapshot().Transactions
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if q.Market != "" && tx.Market != q.Market {
			continue
		}
		out = append(out, tx)
		if len(out) >= q.Limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out, "total": len(txs)})
}

// getOrders lists pending limit orders.
func (s *Server) getOrders(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": sess.Snapshot().PendingOrders})
}

// getPositions lists open leverage positions.
func (s *Server) getPositions(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": sess.Snapshot().LeveragePositions})
}

// getAverageCost returns the weighted average purchase price of a holding.
func (s *Server) getAverageCost(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}
	currency := c.Param("currency")
	c.JSON(http.StatusOK, gin.H{
		"currency":     currency,
		"average_cost": sess.AverageCost(currency),
	})
}

// placeMarketOrder executes an immediate spot trade.
func (s *Server) placeMarketOrder(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}

	var req marketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	var (
		tx  domain.Transaction
		err error
	)
	if req.Side == "buy" {
		tx, err = sess.MarketBuy(req.Market, req.Amount)
	} else {
		tx, err = sess.MarketSell(req.Market, req.Amount)
	}
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// placeLimitOrder escrows and registers a limit order.
func (s *Server) placeLimitOrder(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}

	var req limitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	order, err := sess.PlaceLimit(req.Market, domain.OrderSide(req.Side), req.Amount, req.LimitPrice)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// cancelOrder removes a pending order; unknown ids are treated as already
// cancelled.
func (s *Server) cancelOrder(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}
	sess.CancelLimit(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// openPosition opens or averages into a leveraged position.
func (s *Server) openPosition(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}

	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	pos, err := sess.OpenPosition(req.Market, domain.PositionSide(req.Side), req.Margin, req.Leverage)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"position": pos})
}

// closePosition closes a percentage (default 100) of one position.
func (s *Server) closePosition(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}

	req := closePositionRequest{Percentage: 100}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
			return
		}
	}

	tx, err := sess.ClosePosition(c.Param("id"), req.Percentage)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// closeAllPositions sweeps every open position at current prices.
func (s *Server) closeAllPositions(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}
	closed := sess.CloseAllPositions()
	c.JSON(http.StatusOK, gin.H{"closed": closed, "count": len(closed)})
}

// setActiveMarket records the market the user is watching; relevant when
// the pending order monitor runs in active-market-only mode.
func (s *Server) setActiveMarket(c *gin.Context) {
	sess := s.userSession(c)
	if sess == nil {
		return
	}

	var req activeMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	sess.SetActiveMarket(req.Market)
	c.JSON(http.StatusOK, gin.H{"active_market": req.Market})
}
