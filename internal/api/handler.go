package api

import (
	"net/http"
	"time"

	"paperdesk/internal/events"
	"paperdesk/internal/session"
	"paperdesk/pkg/cache"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the session manager and event bus.
// Authentication is an upstream concern: callers identify themselves with
// the X-User-ID header set by the fronting proxy.
type Server struct {
	Router   *gin.Engine
	Bus      *events.Bus
	Sessions *session.Manager
	Ticks    *cache.ShardedTickCache
	Meta     SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Markets     []string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, sessions *session.Manager, ticks *cache.ShardedTickCache, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	r.Use(RateLimitMiddleware()) // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:   r,
		Bus:      bus,
		Sessions: sessions,
		Ticks:    ticks,
		Meta:     meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/prices", s.getPrices)

		api.GET("/state", s.getState)
		api.GET("/journal", s.getJournal)
		api.GET("/orders", s.getOrders)
		api.GET("/positions", s.getPositions)
		api.GET("/average-cost/:currency", s.getAverageCost)

		api.POST("/orders/market", s.placeMarketOrder)
		api.POST("/orders/limit", s.placeLimitOrder)
		api.DELETE("/orders/:id", s.cancelOrder)

		api.POST("/positions", s.openPosition)
		api.POST("/positions/:id/close", s.closePosition)
		api.POST("/positions/close-all", s.closeAllPositions)

		api.PUT("/active-market", s.setActiveMarket)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	live := 0
	if s.Ticks != nil {
		live = s.Ticks.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"markets":       s.Meta.Markets,
		"markets_live":  live,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"users":         s.Sessions.UserCount(),
	})
}

// getPrices serves the last tick per market straight from the process-wide
// cache; it never touches a session.
func (s *Server) getPrices(c *gin.Context) {
	if s.Ticks == nil {
		c.JSON(http.StatusOK, gin.H{"prices": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": s.Ticks.GetAll()})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
