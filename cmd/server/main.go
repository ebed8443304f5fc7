package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentra-retail/config"
	"sentra-retail/internal/database"
	"sentra-retail/internal/gateway/handlers"
	"sentra-retail/internal/gateway/middleware"
	cataloghandler "sentra-retail/internal/services/catalog/handler"
	customershandler "sentra-retail/internal/services/customers/handler"
	purchaseshandler "sentra-retail/internal/services/purchases/handler"
	saleshandler "sentra-retail/internal/services/sales/handler"
	usershandler "sentra-retail/internal/services/users/handler"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	salesHandler := handlers.NewSalesHTTPHandler(saleshandler.NewSalesHandler(db, redisClient))
	purchasesHandler := handlers.NewPurchasesHTTPHandler(purchaseshandler.NewPurchasesHandler(db, redisClient))
	catalogHandler := handlers.NewCatalogHTTPHandler(cataloghandler.NewCatalogHandler(db, redisClient))
	customersHandler := handlers.NewCustomersHTTPHandler(customershandler.NewCustomersHandler(db, redisClient))
	usersHandler := handlers.NewUsersHTTPHandler(usershandler.NewUsersHandler(db, redisClient))

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit))
	r.Use(middleware.Metrics())

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", usersHandler.Login)
			auth.POST("/register", usersHandler.Register)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		users := protected.Group("/users")
		{
			users.GET("", usersHandler.ListUsers)
			users.GET("/:id", usersHandler.GetUser)
			users.PUT("/:id", usersHandler.UpdateUser)
		}

		products := protected.Group("/products")
		{
			products.POST("", catalogHandler.CreateProduct)
			products.GET("", catalogHandler.ListProducts)
			products.GET("/:id", catalogHandler.GetProduct)
			products.PUT("/:id", catalogHandler.UpdateProduct)
			products.DELETE("/:id", catalogHandler.DeactivateProduct)
			products.POST("/:id/adjust-stock", catalogHandler.AdjustStock)
		}

		categories := protected.Group("/categories")
		{
			categories.POST("", catalogHandler.CreateCategory)
			categories.GET("", catalogHandler.ListCategories)
			categories.PUT("/:id", catalogHandler.UpdateCategory)
		}

		customers := protected.Group("/customers")
		{
			customers.POST("", customersHandler.CreateCustomer)
			customers.GET("", customersHandler.ListCustomers)
			customers.GET("/:id", customersHandler.GetCustomer)
			customers.PUT("/:id", customersHandler.UpdateCustomer)
			customers.POST("/:id/check-credit", customersHandler.CheckCredit)
		}

		sales := protected.Group("/sales")
		{
			sales.POST("", salesHandler.CreateSale)
			sales.GET("", salesHandler.ListSales)
			sales.GET("/:id", salesHandler.GetSale)
			sales.POST("/:id/pay", salesHandler.MarkSalePaid)
			sales.POST("/:id/cancel", salesHandler.CancelSale)
		}

		purchases := protected.Group("/purchases")
		{
			purchases.POST("", purchasesHandler.CreatePurchase)
			purchases.GET("", purchasesHandler.ListPurchases)
			purchases.GET("/:id", purchasesHandler.GetPurchase)
			purchases.POST("/:id/pay", purchasesHandler.MarkPurchasePaid)
			purchases.POST("/:id/cancel", purchasesHandler.CancelPurchase)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Server is running",
			"timestamp": time.Now(),
		})
	})

	addr := ":" + cfg.Server.Port
	log.Printf("Starting server on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
