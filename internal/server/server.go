package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shelfmark/library/internal/config"
	"github.com/shelfmark/library/internal/dashboard"
	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/internal/events"
	"github.com/shelfmark/library/internal/repo"
)

// Server wires the repositories and aggregator to the HTTP surface.
type Server struct {
	database   *db.DB
	catalog    *repo.CatalogRepository
	members    *repo.MemberRepository
	loans      *repo.LoanRepository
	aggregator *dashboard.Aggregator
	publisher  events.Publisher // nil when the broker is unavailable
	log        *zap.Logger
}

// New creates a new server
func New(
	database *db.DB,
	catalog *repo.CatalogRepository,
	members *repo.MemberRepository,
	loans *repo.LoanRepository,
	aggregator *dashboard.Aggregator,
	publisher events.Publisher,
	log *zap.Logger,
) *Server {
	return &Server{
		database:   database,
		catalog:    catalog,
		members:    members,
		loans:      loans,
		aggregator: aggregator,
		publisher:  publisher,
		log:        log,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", bearerAuth(cfg.APIToken))
	{
		api.POST("/dashboard/data", s.handleDashboardData)
		api.POST("/dashboard/refresh", s.handleDashboardRefresh)

		api.POST("/books", s.handleCreateBook)
		api.GET("/books", s.handleListBooks)
		api.GET("/books/:id", s.handleGetBook)
		api.PATCH("/books/:id", s.handleUpdateBook)
		api.DELETE("/books/:id", s.handleDeleteBook)

		api.POST("/authors", s.handleCreateAuthor)
		api.GET("/authors", s.handleListAuthors)
		api.GET("/authors/:id", s.handleGetAuthor)

		api.POST("/genres", s.handleCreateGenre)
		api.GET("/genres", s.handleListGenres)

		api.POST("/members", s.handleCreateMember)
		api.GET("/members", s.handleListMembers)
		api.GET("/members/:id", s.handleGetMember)
		api.PATCH("/members/:id", s.handleUpdateMember)

		api.POST("/loans", s.handleCreateLoan)
		api.GET("/loans", s.handleListLoans)
		api.GET("/loans/:id", s.handleGetLoan)
		api.POST("/loans/:id/confirm", s.handleConfirmLoan)
		api.POST("/loans/:id/return", s.handleReturnLoan)
		api.POST("/loans/:id/mark-lost", s.handleMarkLoanLost)
		api.POST("/loans/sweep-overdue", s.handleSweepOverdue)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.database.Ping(); err != nil {
		s.log.Error("Database health check failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "unhealthy: database connection failed")
		return
	}

	if s.publisher != nil && !s.publisher.IsHealthy() {
		s.log.Error("RabbitMQ health check failed")
		c.String(http.StatusServiceUnavailable, "unhealthy: rabbitmq connection failed")
		return
	}

	c.String(http.StatusOK, "healthy")
}

// bearerAuth rejects /api requests without the configured token. An empty
// token disables the check.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
