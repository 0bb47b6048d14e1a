package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/handlers"
	"github.com/example/cyclebees/internal/middleware"
	"github.com/example/cyclebees/internal/services"
)

// Services are the domain services the HTTP layer depends on.
type Services struct {
	Coupons    *services.CouponService
	Pricing    *services.Pricing
	Submission *services.SubmissionService
	Status     *services.StatusService
	OTP        *services.OTPService
}

// NewServices wires the domain services over db.
func NewServices(db *gorm.DB, cfg *config.Config, notifier *services.Notifier, otpStore services.OTPStore, sms services.SMSSender) Services {
	coupons := services.NewCouponService(db)
	pricing := services.NewPricing(cfg.RepairMechanicCharge, cfg.RentalDeliveryCharge, cfg.PriceTolerance)
	return Services{
		Coupons:    coupons,
		Pricing:    pricing,
		Submission: services.NewSubmissionService(db, coupons, pricing, notifier, cfg.RequestExpiry),
		Status:     services.NewStatusService(db, notifier),
		OTP:        services.NewOTPService(otpStore, sms, cfg.OTPTTL),
	}
}

// NewApp creates the fiber app with the shared error handler and middleware.
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Cycle-Bees Backend",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    64 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Static("/uploads", cfg.UploadDir)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "message": "ok"})
	})
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, svc Services) {
	authHandler := handlers.NewAuthHandler(db, cfg, svc.OTP)
	profileHandler := handlers.NewProfileHandler(db, cfg)
	couponHandler := handlers.NewCouponHandler(db, svc.Coupons, svc.Pricing)
	repairHandler := handlers.NewRepairHandler(db, cfg, svc.Submission, svc.Status)
	rentalHandler := handlers.NewRentalHandler(db, cfg, svc.Submission, svc.Status)
	contactHandler := handlers.NewContactHandler(db)
	marketingHandler := handlers.NewMarketingHandler(db, cfg)
	adminHandler := handlers.NewAdminHandler(db)
	notificationHandler := handlers.NewNotificationHandler(db)

	requireAuth := middleware.AuthMiddleware(cfg)
	requireAdmin := middleware.RequireAdmin()
	otpLimiter := middleware.NewKeyedLimiter(20*time.Second, 3, 10*time.Minute)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/send-otp", middleware.OTPRateLimit(otpLimiter), authHandler.SendOTP)
	auth.Post("/verify-otp", authHandler.VerifyOTP)
	auth.Post("/register", authHandler.Register)
	auth.Post("/admin/login", authHandler.AdminLogin)
	auth.Get("/profile", requireAuth, profileHandler.GetProfile)
	auth.Put("/profile", requireAuth, profileHandler.UpdateProfile)
	auth.Post("/profile/photo", requireAuth, profileHandler.UploadPhoto)

	// Coupons
	coupon := api.Group("/coupon")
	coupon.Post("/apply", requireAuth, couponHandler.Apply)
	coupon.Get("/available", requireAuth, couponHandler.Available)
	couponAdmin := coupon.Group("/admin", requireAuth, requireAdmin)
	couponAdmin.Get("/coupons", couponHandler.ListCoupons)
	couponAdmin.Post("/coupons", couponHandler.CreateCoupon)
	couponAdmin.Put("/coupons/:id", couponHandler.UpdateCoupon)
	couponAdmin.Delete("/coupons/:id", couponHandler.DeleteCoupon)

	// Repair
	repair := api.Group("/repair")
	repair.Get("/services", repairHandler.ListServices)
	repair.Get("/time-slots", repairHandler.ListTimeSlots)
	repair.Post("/requests", requireAuth, repairHandler.CreateRequest)
	repair.Get("/requests", requireAuth, repairHandler.ListMyRequests)
	repair.Get("/requests/:id", requireAuth, repairHandler.GetMyRequest)
	repairAdmin := repair.Group("/admin", requireAuth, requireAdmin)
	repairAdmin.Get("/requests", repairHandler.AdminListRequests)
	repairAdmin.Get("/requests/:id", repairHandler.AdminGetRequest)
	repairAdmin.Patch("/requests/:id/status", repairHandler.AdminUpdateStatus)
	repairAdmin.Get("/services", repairHandler.AdminListServices)
	repairAdmin.Post("/services", repairHandler.AdminCreateService)
	repairAdmin.Put("/services/:id", repairHandler.AdminUpdateService)
	repairAdmin.Delete("/services/:id", repairHandler.AdminDeleteService)
	repairAdmin.Post("/time-slots", repairHandler.AdminCreateTimeSlot)
	repairAdmin.Delete("/time-slots/:id", repairHandler.AdminDeleteTimeSlot)

	// Rental
	rental := api.Group("/rental")
	rental.Get("/bicycles", rentalHandler.ListBicycles)
	rental.Get("/bicycles/:id", rentalHandler.GetBicycle)
	rental.Post("/requests", requireAuth, rentalHandler.CreateRequest)
	rental.Get("/requests", requireAuth, rentalHandler.ListMyRequests)
	rental.Get("/requests/:id", requireAuth, rentalHandler.GetMyRequest)
	rentalAdmin := rental.Group("/admin", requireAuth, requireAdmin)
	rentalAdmin.Get("/requests", rentalHandler.AdminListRequests)
	rentalAdmin.Get("/requests/:id", rentalHandler.AdminGetRequest)
	rentalAdmin.Patch("/requests/:id/status", rentalHandler.AdminUpdateStatus)
	rentalAdmin.Get("/bicycles", rentalHandler.AdminListBicycles)
	rentalAdmin.Post("/bicycles", rentalHandler.AdminCreateBicycle)
	rentalAdmin.Put("/bicycles/:id", rentalHandler.AdminUpdateBicycle)
	rentalAdmin.Delete("/bicycles/:id", rentalHandler.AdminDeleteBicycle)

	// Contact settings
	contact := api.Group("/contact")
	contact.Get("/settings", contactHandler.GetSettings)
	contact.Post("/admin/contact-settings", requireAuth, requireAdmin, contactHandler.ReplaceSettings)

	// Promotional cards
	promo := api.Group("/promotional")
	promo.Get("/cards", marketingHandler.ListCards)
	promoAdmin := promo.Group("/admin", requireAuth, requireAdmin)
	promoAdmin.Get("/cards", marketingHandler.AdminListCards)
	promoAdmin.Post("/cards", marketingHandler.CreateCard)
	promoAdmin.Put("/cards/:id", marketingHandler.UpdateCard)
	promoAdmin.Delete("/cards/:id", marketingHandler.DeleteCard)

	// Dashboard
	dashboard := api.Group("/dashboard/admin", requireAuth, requireAdmin)
	dashboard.Get("/stats", adminHandler.DashboardStats)
	dashboard.Get("/recent", adminHandler.RecentRequests)
	dashboard.Get("/users", adminHandler.ListAllUsers)

	// Notifications
	notifications := api.Group("/notifications", requireAuth)
	notifications.Get("/", notificationHandler.List)
	notifications.Patch("/:id/read", notificationHandler.MarkRead)
}
