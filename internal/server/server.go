// Package server wires services, handlers and middleware into the HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"pocketledger/internal/config"
	_ "pocketledger/internal/docs" // swagger docs
	"pocketledger/internal/events"
	"pocketledger/internal/handlers"
	"pocketledger/internal/middleware"
	"pocketledger/internal/services"
)

// Services bundles the business services behind the API.
type Services struct {
	User      services.UserServicer
	Category  services.CategoryServicer
	Expense   services.ExpenseServicer
	Budget    services.BudgetServicer
	Analytics services.AnalyticsServicer
	Recurring services.RecurringServicer
	Audit     services.AuditServicer
}

// NewServices builds the services on db. Expense writes and materializer runs
// publish through publisher and invalidate the analytics cache.
func NewServices(db *gorm.DB, publisher events.Publisher, cfg *config.Config) *Services {
	analytics := services.NewAnalyticsService(db, cfg.AnalyticsCacheTTL)
	return &Services{
		User:      services.NewUserService(db),
		Category:  services.NewCategoryService(db),
		Expense:   services.NewExpenseService(db, publisher, analytics),
		Budget:    services.NewBudgetService(db),
		Analytics: analytics,
		Recurring: services.NewRecurringService(db, publisher, analytics),
		Audit:     services.NewAuditService(db),
	}
}

// NewRouter builds the Gin engine. Idle rate limiter entries are swept until
// stop is closed; a nil stop disables the sweep.
func NewRouter(cfg *config.Config, svc *Services, stop <-chan struct{}) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.User, svc.Audit)
	categoryHandler := handlers.NewCategoryHandler(svc.Category, svc.Audit)
	expenseHandler := handlers.NewExpenseHandler(svc.Expense, svc.Audit)
	budgetHandler := handlers.NewBudgetHandler(svc.Budget, svc.Audit)
	analyticsHandler := handlers.NewAnalyticsHandler(svc.Analytics)
	recurringHandler := handlers.NewRecurringHandler(svc.Recurring, svc.Audit)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	if stop != nil {
		limiter.StartCleanup(time.Minute, stop)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.Use(middleware.RateLimit(limiter))
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Pipeline routes for the scheduler. The API key gates them, so they skip
	// the per-IP limiter that a busy scheduler would exhaust.
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(cfg.PipelineAPIKey))
	pipeline.GET("/recurring/users", recurringHandler.PipelineListUsers)
	pipeline.POST("/recurring/process", recurringHandler.PipelineProcessRecurring)

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/auth/profile", authHandler.GetProfile)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetUserCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	expenses := protected.Group("/expenses")
	expenses.POST("", expenseHandler.CreateExpense)
	expenses.GET("", expenseHandler.GetExpenses)
	expenses.GET("/templates", expenseHandler.GetTemplates)
	expenses.GET("/:id", expenseHandler.GetExpenseByID)
	expenses.PUT("/:id", expenseHandler.UpdateExpense)
	expenses.DELETE("/:id", expenseHandler.DeleteExpense)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.GET("/:id/progress", budgetHandler.GetBudgetProgress)

	analytics := protected.Group("/analytics")
	analytics.GET("/summary", analyticsHandler.GetSummary)
	analytics.GET("/trend", analyticsHandler.GetTrend)

	protected.POST("/recurring/process", recurringHandler.ProcessRecurring)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
