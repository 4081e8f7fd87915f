package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	amqp "github.com/streadway/amqp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kasir/internal/handlers"
	"kasir/internal/middleware"
	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/internal/services"
	"kasir/pkg/rabbitmq"
	"kasir/pkg/storage"
)

func main() {
	loadConfig()
	setupLogger(viper.GetString("APP_ENV"))

	app, cleanup, err := buildApp()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer cleanup()

	appPort := viper.GetString("APP_PORT")
	log.Info().Str("port", appPort).Msg("starting server")

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-quit
	log.Info().Msg("shutting down server")

	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("server stopped")
}

func loadConfig() {
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DB_DRIVER", "sqlite") // postgres | sqlite | memory
	viper.SetDefault("DB_DSN", "kasir.db")
	viper.SetDefault("JWT_SECRET", "change-me-in-production")
	viper.SetDefault("RABBITMQ_URL", "") // empty disables stock alert eventing
	viper.SetDefault("UPLOAD_DIR", "./uploads")
	viper.SetDefault("SEED_ADMIN_EMAIL", "admin@example.com")
	viper.SetDefault("SEED_ADMIN_PASSWORD", "admin12345")
	viper.AutomaticEnv()
}

func setupLogger(env string) {
	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// buildApp wires repositories, services and handlers into a Fiber app. The
// returned cleanup releases the RabbitMQ connection, when one was opened.
func buildApp() (*fiber.App, func(), error) {
	cleanup := func() {}

	productRepo, userRepo, err := openRepositories()
	if err != nil {
		return nil, nil, err
	}

	blobs, err := storage.NewLocal(viper.GetString("UPLOAD_DIR"), services.MaxImageBytes)
	if err != nil {
		return nil, nil, err
	}

	// Stock alert eventing is optional: without a broker URL the product
	// service simply skips publishing.
	var publisher services.EventPublisher
	if mqURL := viper.GetString("RABBITMQ_URL"); mqURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: mqURL})
		if err != nil {
			return nil, nil, err
		}
		publisher = mqClient
		cleanup = func() {
			if err := mqClient.Close(); err != nil {
				log.Error().Err(err).Msg("error closing RabbitMQ client")
			}
		}

		go func() {
			log.Info().Msg("starting stock alert consumer")
			err := mqClient.ConsumeStockAlerts(func(msg amqp.Delivery) error {
				log.Info().RawJSON("alert", msg.Body).Msg("low stock alert received")
				return nil
			})
			if err != nil {
				log.Error().Err(err).Msg("stock alert consumer stopped")
			}
		}()
	}

	if err := seedAdminUser(userRepo); err != nil {
		return nil, nil, err
	}

	authService := services.NewAuthService(userRepo, viper.GetString("JWT_SECRET"))
	productService := services.NewProductService(productRepo, blobs, publisher)
	userService := services.NewUserService(userRepo)

	authHandler := handlers.NewAuthHandler(authService)
	productHandler := handlers.NewProductHandler(productService)
	userHandler := handlers.NewUserHandler(userService)

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	// Recorded image_path values resolve under /storage.
	app.Static("/storage", viper.GetString("UPLOAD_DIR"))

	authHandler.RegisterRoutes(app)

	secured := app.Group("", middleware.AuthRequired(authService))
	productHandler.RegisterRoutes(secured)
	userHandler.RegisterRoutes(secured)

	return app, cleanup, nil
}

// openRepositories builds the repository pair for the configured driver.
func openRepositories() (repositories.ProductRepository, repositories.UserRepository, error) {
	driver := viper.GetString("DB_DRIVER")
	if driver == "memory" {
		return repositories.NewInMemoryProductRepository(), repositories.NewInMemoryUserRepository(), nil
	}

	var dialector gorm.Dialector
	dsn := viper.GetString("DB_DSN")
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, nil, errors.New("unsupported DB_DRIVER: " + driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(&models.Product{}, &models.User{}); err != nil {
		return nil, nil, err
	}
	return repositories.NewGORMProductRepository(db), repositories.NewGORMUserRepository(db), nil
}

// seedAdminUser provisions the initial admin account when no users exist,
// so the /users endpoints are reachable on a fresh install.
func seedAdminUser(userRepo repositories.UserRepository) error {
	users, err := userRepo.GetAll()
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	email := viper.GetString("SEED_ADMIN_EMAIL")
	hashed, err := bcrypt.GenerateFromPassword([]byte(viper.GetString("SEED_ADMIN_PASSWORD")), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		Name:     "Administrator",
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}
	if err := userRepo.Create(admin); err != nil {
		return err
	}
	log.Info().Str("email", email).Msg("seeded initial admin user")
	return nil
}
