package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mairie-adjarra/gestmat/internal/config"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/handler"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
	"github.com/mairie-adjarra/gestmat/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting gestmat service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := runMigrations(db); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	if err := seedAdmin(db, zapLogger); err != nil {
		zapLogger.Warn("Admin seed warning", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)
	if rdb != nil {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			zapLogger.Warn("Redis unreachable, dashboard cache disabled", zap.Error(err))
			rdb = nil
		}
		cancel()
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, cfg)
	handlers := handler.NewHandlers(services)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(zapLogger))
	r.Use(middleware.CORS())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(r, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Department{},
		&entity.ApprovalRoute{},
		&entity.Material{},
		&entity.StockMovement{},
		&entity.Request{},
		&entity.RequestLine{},
		&entity.Delivery{},
		&entity.DeliveryItem{},
	); err != nil {
		return err
	}

	// Status fields are enums at the database level too.
	db.Exec("ALTER TABLE requests DROP CONSTRAINT IF EXISTS requests_status_check")
	db.Exec("ALTER TABLE requests ADD CONSTRAINT requests_status_check CHECK (status IN ('pending_director', 'pending_stock_manager', 'pending_finance', 'pending_secretary', 'approved_final', 'fulfillment_in_progress', 'delivered', 'rejected'))")

	db.Exec("ALTER TABLE request_lines DROP CONSTRAINT IF EXISTS request_lines_status_check")
	db.Exec("ALTER TABLE request_lines ADD CONSTRAINT request_lines_status_check CHECK (status IN ('pending', 'approved', 'rejected'))")

	db.Exec("ALTER TABLE deliveries DROP CONSTRAINT IF EXISTS deliveries_status_check")
	db.Exec("ALTER TABLE deliveries ADD CONSTRAINT deliveries_status_check CHECK (status IN ('in_progress', 'delivered', 'canceled'))")

	db.Exec("ALTER TABLE stock_movements DROP CONSTRAINT IF EXISTS stock_movements_direction_check")
	db.Exec("ALTER TABLE stock_movements ADD CONSTRAINT stock_movements_direction_check CHECK (direction IN ('in', 'out'))")
	db.Exec("ALTER TABLE stock_movements DROP CONSTRAINT IF EXISTS stock_movements_quantity_check")
	db.Exec("ALTER TABLE stock_movements ADD CONSTRAINT stock_movements_quantity_check CHECK (quantity > 0)")

	db.Exec("ALTER TABLE materials DROP CONSTRAINT IF EXISTS materials_qty_check")
	db.Exec("ALTER TABLE materials ADD CONSTRAINT materials_qty_check CHECK (available_qty >= 0 AND available_qty <= total_qty)")

	// Case-insensitive unique material names
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_materials_name_lower ON materials (LOWER(name))")

	// One route per scope
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_dept_role ON approval_routes (department_id, role) WHERE department_id IS NOT NULL")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_global_role ON approval_routes (role) WHERE department_id IS NULL")

	// At most one live delivery per request; canceled attempts pile up
	// as the audit trail and must not block a retry.
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_deliveries_request_open ON deliveries (request_id) WHERE status <> 'canceled'")

	return nil
}

// seedAdmin creates the bootstrap admin account on an empty user table.
func seedAdmin(db *gorm.DB, zapLogger *zap.Logger) error {
	var count int64
	if err := db.Model(&entity.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := config.GetEnvOrDefault("ADMIN_PASSWORD", "")
	if password == "" {
		zapLogger.Warn("ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &entity.User{
		ID:           uuid.New().String()[:32],
		Name:         "Administrateur",
		Email:        config.GetEnvOrDefault("ADMIN_EMAIL", "admin@mairie-adjarra.bj"),
		PasswordHash: string(hash),
		Role:         entity.RoleAdmin,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(admin).Error; err != nil {
		return err
	}

	zapLogger.Info("Seeded admin account", zap.String("email", admin.Email))
	return nil
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	{
		// Login needs no token
		v1.POST("/auth/login", h.Auth.Login)

		authed := v1.Group("")
		authed.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			authed.GET("/auth/me", h.Auth.Me)

			// Inventory
			authed.GET("/materials", h.Material.List)
			authed.GET("/materials/:id", h.Material.Get)
			authed.GET("/movements", h.Material.ListMovements)

			stock := authed.Group("", middleware.RequireAnyRole(entity.RoleStockManager))
			{
				stock.POST("/materials", h.Material.Create)
				stock.POST("/materials/:id/adjust", h.Material.AdjustStock)
				stock.POST("/materials/:id/resync", h.Material.Resync)
				stock.GET("/movements/export", h.Material.ExportMovements)
			}
			authed.PUT("/materials/:id", middleware.RequireRole(entity.RoleAdmin), h.Material.Update)
			authed.DELETE("/materials/:id", middleware.RequireRole(entity.RoleAdmin), h.Material.Delete)

			// Requests & workflow
			authed.POST("/requests", h.Request.Create)
			authed.GET("/requests", h.Request.List)
			authed.GET("/requests/pending", middleware.RequireAnyRole(
				entity.RoleDirector, entity.RoleStockManager,
				entity.RoleFinance, entity.RoleSecretary), h.Request.Pending)
			authed.GET("/requests/:id", h.Request.Get)
			authed.POST("/requests/:id/resolve", middleware.RequireAnyRole(
				entity.RoleDirector, entity.RoleStockManager,
				entity.RoleFinance), h.Request.Resolve)
			authed.POST("/requests/:id/finalize",
				middleware.RequireRole(entity.RoleSecretary), h.Request.Finalize)
			authed.POST("/requests/:id/fulfill",
				middleware.RequireRole(entity.RoleSecretary), h.Request.Fulfill)

			// Deliveries
			authed.GET("/deliveries", h.Delivery.List)
			authed.GET("/deliveries/:id", h.Delivery.Get)
			delivery := authed.Group("", middleware.RequireAnyRole(
				entity.RoleStockManager, entity.RoleSecretary))
			{
				delivery.POST("/deliveries/:id/confirm", h.Delivery.Confirm)
				delivery.POST("/deliveries/:id/cancel", h.Delivery.Cancel)
			}

			// Dashboard
			authed.GET("/dashboard/stats", h.Dashboard.Stats)

			// Administration
			admin := authed.Group("", middleware.RequireRole(entity.RoleAdmin))
			{
				admin.GET("/users", h.Admin.ListUsers)
				admin.POST("/users", h.Admin.CreateUser)
				admin.GET("/users/:id", h.Admin.GetUser)
				admin.PUT("/users/:id", h.Admin.UpdateUser)
				admin.DELETE("/users/:id", h.Admin.DeleteUser)

				admin.GET("/departments", h.Admin.ListDepartments)
				admin.POST("/departments", h.Admin.CreateDepartment)
				admin.DELETE("/departments/:id", h.Admin.DeleteDepartment)

				admin.GET("/approval-routes", h.Admin.ListRoutes)
				admin.POST("/approval-routes", h.Admin.SetRoute)
				admin.DELETE("/approval-routes/:id", h.Admin.DeleteRoute)
			}
		}
	}
}
