package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"fitpass/internal/auth"
	"fitpass/internal/billing"
	"fitpass/internal/config"
	"fitpass/internal/gym"
	"fitpass/internal/membership"
	"fitpass/internal/payout"
	"fitpass/internal/plan"
	"fitpass/internal/report"
	"fitpass/internal/user"
	"fitpass/internal/visit"
)

// runLockTTL caps how long a crashed payout run can hold the advisory lock.
const runLockTTL = 30 * time.Minute

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, rdb *redis.Client, cfg *config.Config, reports *report.Service) *Server {
	router := gin.Default()
	router.Use(corsMiddleware(), MetricsMiddleware(), RequestLoggingMiddleware())

	stripeClient := billing.NewClient(cfg.StripeSecretKey)

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	userRepo := userHandler.Repo()

	gymRepo := gym.NewRepository(db)
	gymHandler := gym.NewHandler(db)
	planRepo := plan.NewRepository(db)
	planHandler := plan.NewHandler(db)

	membershipRepo := membership.NewRepository(db)
	membershipService := membership.NewService(membershipRepo, planRepo, userRepo, stripeClient)
	membershipHandler := membership.NewHandler(membershipService)

	visitRepo := visit.NewRepository(db)
	visitService := visit.NewService(visitRepo, membershipService, membershipRepo, gymRepo)
	visitHandler := visit.NewHandler(visitService)

	ledger := payout.NewRepository(db)
	runLock := payout.NewRunLock(rdb, runLockTTL)
	aggregator := payout.NewAggregator(
		cfg.PayoutConfig(),
		membershipRepo,
		visitRepo,
		gymRepo,
		stripeClient,
		ledger,
		runLock,
	)
	payoutHandler := payout.NewHandler(aggregator, ledger)

	paymentLogs := billing.NewPaymentLogRepository(db)
	webhookHandler := billing.NewWebhookHandler(cfg.StripeWebhookSecret, paymentLogs, membershipRepo)
	customerHandler := billing.NewCustomerHandler(stripeClient, userRepo)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	// Stripe calls this, signature verification stands in for auth.
	router.POST("/webhooks/stripe", webhookHandler.Handle)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)
		protected.GET("/plans", planHandler.ListPlans)
		protected.GET("/gyms", gymHandler.ListGyms)
		protected.GET("/gyms/:gymID", gymHandler.GetGym)
		protected.POST("/gyms/:gymID/checkin", visitHandler.CheckIn)
		protected.GET("/visits", visitHandler.ListMine)
		protected.GET("/memberships/current", membershipHandler.GetCurrent)
		protected.POST("/memberships", membershipHandler.Subscribe)
		protected.POST("/memberships/current/cancel", membershipHandler.Cancel)
		protected.POST("/billing/customers", customerHandler.CreateCustomer)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/gyms", gymHandler.CreateGym)
		admin.GET("/gyms", gymHandler.ListGyms)
		admin.POST("/payouts/run", payoutHandler.RunPayouts)
		admin.GET("/payouts/:period/transfers", payoutHandler.ListTransfers)
		admin.GET("/carried-balances", payoutHandler.ListCarriedBalances)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	if reports != nil {
		router.GET("/test-report", TestReport(reports))
	}

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router is exposed for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
