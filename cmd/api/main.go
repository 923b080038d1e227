package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-inventory-ledger/internal/config"
	"go-inventory-ledger/internal/handler"
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/internal/service"
	"go-inventory-ledger/internal/ws"
	"go-inventory-ledger/pkg/database"
	"go-inventory-ledger/pkg/jwt"
	"go-inventory-ledger/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 1. Load config (.env, optional YAML, environment)
	cfg, v, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	jwt.Configure(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	policies, err := config.NewPolicySource(v)
	if err != nil {
		zlog.Fatal("policy", zap.Error(err))
	}

	// 2. Setup Database
	db, err := database.Connect(database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		zlog.Fatal("database", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		zlog.Fatal("migrate", zap.Error(err))
	}

	// 3. Seed default privileges, roles, and admin user
	seedPrivilegesRolesAndAdmin(db, cfg.Seed, zlog)

	// 4. Setup WebSocket Hub
	wsHub := ws.NewHub(zlog.Named("ws"))
	go wsHub.Run()

	// 5. Dependency Injection (Wiring Layers)
	itemRepo := repository.NewItemRepo(db)
	locationRepo := repository.NewLocationRepo(db)
	categoryRepo := repository.NewCategoryRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	approvalRepo := repository.NewApprovalRepo(db)
	auditRepo := repository.NewAuditRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)
	userRepo := repository.NewUserRepo(db)
	privilegeRepo := repository.NewPrivilegeRepo(db)
	roleRepo := repository.NewRoleRepo(db)

	audit := service.NewAuditSink(auditRepo, zlog.Named("audit"))
	notifier := service.NewNotifier(notificationRepo, wsHub, zlog.Named("notify"))

	ledgerService := service.NewLedgerService(db, itemRepo, txRepo, audit, wsHub, zlog.Named("ledger"))
	approvalService := service.NewApprovalService(service.ApprovalDeps{
		DB:        db,
		Repo:      approvalRepo,
		ItemRepo:  itemRepo,
		Ledger:    ledgerService,
		Policies:  policies,
		Approvers: service.NewUserApprovers(userRepo),
		Notifier:  notifier,
		Audit:     audit,
		Log:       zlog.Named("approval"),
		TTL:       cfg.Approval.TTL,
	})
	invService := service.NewInventoryService(service.InventoryDeps{
		ItemRepo:     itemRepo,
		LocationRepo: locationRepo,
		CategoryRepo: categoryRepo,
		Ledger:       ledgerService,
		Approvals:    approvalService,
		Policies:     policies,
		Issuer:       service.NewCodeIssuer(zlog.Named("codes")),
		Audit:        audit,
		Publisher:    wsHub,
		Log:          zlog.Named("inventory"),
	})
	importService := service.NewImportService(invService, itemRepo, locationRepo, audit, zlog.Named("import"),
		cfg.Import.MaxErrors, cfg.Import.HeaderRows)
	dashService := service.NewDashboardService(txRepo, itemRepo)
	authService := service.NewAuthService(userRepo, wsHub)
	userService := service.NewUserService(userRepo, privilegeRepo, roleRepo)
	notificationService := service.NewNotificationService(notificationRepo, auditRepo)

	invHandler := handler.NewInventoryHandler(invService, ledgerService, zlog)
	approvalHandler := handler.NewApprovalHandler(approvalService, zlog)
	importHandler := handler.NewImportHandler(importService, zlog)
	dashHandler := handler.NewDashboardHandler(dashService, zlog)
	authHandler := handler.NewAuthHandler(authService, zlog)
	userHandler := handler.NewUserHandler(userService, zlog)
	roleHandler := handler.NewRoleHandler(roleRepo, privilegeRepo, zlog)
	notificationHandler := handler.NewNotificationHandler(notificationService, zlog)

	// 6. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Inventory Ledger v1.0",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimitMB << 20,
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// 7. Routes
	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/reset-password", authHandler.ResetPassword)
	auth.Post("/validate-token", authHandler.ValidateToken)
	auth.Post("/heartbeat", middleware.RequireAuth(userRepo), authHandler.Heartbeat)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(userRepo))

	protected.Get("/dashboard/stats", middleware.RequirePrivilege(model.PrivDashboardView), dashHandler.GetDashboardStats)
	protected.Get("/dashboard/stock-movement", middleware.RequirePrivilege(model.PrivDashboardView), dashHandler.GetStockMovement)
	protected.Get("/dashboard/low-stock", middleware.RequirePrivilege(model.PrivDashboardView), dashHandler.GetLowStockItems)

	protected.Get("/items", middleware.RequirePrivilege(model.PrivItemView), invHandler.GetItems)
	protected.Get("/items/:id", middleware.RequirePrivilege(model.PrivItemView), invHandler.GetItem)
	protected.Get("/items/:id/verify", middleware.RequirePrivilege(model.PrivStockView), invHandler.VerifyItem)
	protected.Post("/items", middleware.RequirePrivilege(model.PrivItemCreate), invHandler.CreateItem)

	protected.Get("/categories", middleware.RequirePrivilege(model.PrivItemView), invHandler.GetCategories)
	protected.Post("/categories", middleware.RequirePrivilege(model.PrivItemCreate), invHandler.CreateCategory)

	protected.Get("/locations", middleware.RequirePrivilege(model.PrivItemView), invHandler.GetLocations)
	protected.Post("/locations", middleware.RequirePrivilege(model.PrivLocationCreate), invHandler.CreateLocation)

	protected.Post("/stock", middleware.RequirePrivilege(model.PrivStockCreate), invHandler.RecordStock)
	protected.Post("/stock/preview", middleware.RequirePrivilege(model.PrivStockCreate), invHandler.PreviewStock)
	protected.Get("/transactions", middleware.RequirePrivilege(model.PrivStockView), invHandler.GetTransactions)
	protected.Get("/transactions/:id", middleware.RequirePrivilege(model.PrivStockView), invHandler.GetTransaction)

	// Reviewing is also gated by the primary approver flag in the service.
	protected.Get("/approvals", middleware.RequirePrivilege(model.PrivApprovalView), approvalHandler.GetApprovals)
	protected.Get("/approvals/:id", middleware.RequirePrivilege(model.PrivApprovalView), approvalHandler.GetApproval)
	protected.Post("/approvals/:id/approve", middleware.RequirePrivilege(model.PrivApprovalReview), approvalHandler.Approve)
	protected.Post("/approvals/:id/reject", middleware.RequirePrivilege(model.PrivApprovalReview), approvalHandler.Reject)
	protected.Post("/approvals/:id/cancel", approvalHandler.Cancel)

	protected.Post("/imports/:kind", middleware.RequirePrivilege(model.PrivImportRun), importHandler.Import)

	protected.Get("/notifications", notificationHandler.GetNotifications)
	protected.Post("/notifications/:id/read", notificationHandler.MarkRead)
	protected.Get("/audit", middleware.RequirePrivilege(model.PrivAuditView), notificationHandler.GetAuditTrail)

	protected.Get("/users", middleware.RequirePrivilege(model.PrivUserManage), userHandler.GetUsers)
	protected.Get("/users/:id", middleware.RequirePrivilege(model.PrivUserManage), userHandler.GetUser)
	protected.Post("/users", middleware.RequirePrivilege(model.PrivUserManage), userHandler.CreateUser)
	protected.Put("/users/:id", middleware.RequirePrivilege(model.PrivUserManage), userHandler.UpdateUser)
	protected.Delete("/users/:id", middleware.RequirePrivilege(model.PrivUserManage), userHandler.DeleteUser)
	protected.Put("/users/:id/privileges", middleware.RequirePrivilege(model.PrivUserManage), userHandler.UpdateUserPrivileges)
	protected.Put("/users/:id/primary-approver", middleware.RequirePrivilege(model.PrivUserManage), userHandler.SetPrimaryApprover)

	protected.Get("/roles", roleHandler.GetRoles)
	protected.Get("/privileges", roleHandler.GetPrivileges)

	protected.Post("/admin/policy/reload", middleware.RequirePrivilege(model.PrivUserManage), func(c *fiber.Ctx) error {
		if err := policies.Refresh(); err != nil {
			zlog.Warn("policy reload rejected", zap.Error(err))
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "Policy reloaded", "data": policies.Current()})
	})

	// WebSocket Route. A valid ?token= subscribes to that user's
	// notifications; without one the client only gets broadcasts.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.SendStatus(fiber.StatusUpgradeRequired)
		}
		if token := c.Query("token"); token != "" {
			claims, err := jwt.ValidateToken(token)
			if err != nil {
				return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
			}
			c.Locals("ws_user_id", claims.UserID.String())
		}
		return c.Next()
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("ws_user_id").(string)
		client := &ws.Client{Conn: c, UserID: userID}
		wsHub.Register <- client
		defer func() { wsHub.Unregister <- client }()

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 8. SIGHUP reloads the policy file; SIGINT/SIGTERM shut down.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := policies.Refresh(); err != nil {
				zlog.Warn("policy reload rejected, keeping previous policy", zap.Error(err))
				continue
			}
			zlog.Info("policy reloaded")
		}
	}()

	go func() {
		zlog.Info("listening", zap.String("port", cfg.Server.Port))
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Panic("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

// seedPrivilegesRolesAndAdmin creates default privileges, roles, and the
// bootstrap admin if they don't exist. The admin is the primary approver.
func seedPrivilegesRolesAndAdmin(db *gorm.DB, seed config.SeedConfig, zlog *zap.Logger) {
	privilegeRepo := repository.NewPrivilegeRepo(db)
	userRepo := repository.NewUserRepo(db)
	roleRepo := repository.NewRoleRepo(db)

	allPrivileges, err := privilegeRepo.SeedDefaults()
	if err != nil {
		zlog.Warn("seed privileges", zap.Error(err))
		return
	}
	if err := roleRepo.SeedDefaults(allPrivileges); err != nil {
		zlog.Warn("seed roles", zap.Error(err))
		return
	}

	if seed.AdminEmail == "" || seed.AdminPassword == "" {
		zlog.Info("no bootstrap admin configured, skipping")
		return
	}
	if _, err := userRepo.FindByEmail(seed.AdminEmail); err == nil {
		return
	}

	masterRole, err := roleRepo.FindByCode(model.RoleMasterAdmin)
	if err != nil {
		zlog.Warn("bootstrap admin: master role missing", zap.Error(err))
		return
	}
	admin := &model.User{
		Email:             seed.AdminEmail,
		FullName:          seed.AdminName,
		RoleID:            &masterRole.ID,
		IsActive:          true,
		IsPrimaryApprover: true,
		Privileges:        allPrivileges,
	}
	admin.Stamp(service.System.ID)
	if err := admin.SetPassword(seed.AdminPassword); err != nil {
		zlog.Warn("bootstrap admin: hash password", zap.Error(err))
		return
	}
	if err := userRepo.Create(admin); err != nil {
		zlog.Warn("bootstrap admin: create", zap.Error(err))
		return
	}
	zlog.Info("bootstrap admin created", zap.String("email", seed.AdminEmail))
}
