package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/clerk"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/idempotency"
	"github.com/ManuelReschke/CreditFox/internal/pkg/router"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
	"github.com/ManuelReschke/CreditFox/internal/pkg/usersync"
	"github.com/ManuelReschke/CreditFox/internal/pkg/webhook"
)

type Application struct {
	App        *fiber.App
	store      store.Store
	tracker    idempotency.Tracker
	dispatcher *usersync.Dispatcher
}

func main() {
	application, err := NewApplication(context.Background())
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := application.App.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	application.Shutdown(30 * time.Second)
}

func NewApplication(ctx context.Context) (*Application, error) {
	env.SetupEnvFile()

	s, err := store.OpenFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	tracker := idempotency.FromEnv()
	if mt, ok := tracker.(*idempotency.MemoryTracker); ok {
		mt.Start(time.Minute)
	}

	ledger := billing.NewLedgerFromEnv(s)
	payments := billing.NewPaymentService(s, ledger, billing.NewRazorpayClientFromEnv(), billing.CurrencyFromEnv())

	verifier := webhook.NewVerifierFromEnv()
	if !verifier.Configured() {
		log.Println("Warning: CLERK_WEBHOOK_SECRET is not set, webhooks will be rejected")
	}

	dispatcher := usersync.NewDispatcher(
		usersync.NewReconciler(s, tracker, ledger),
		usersync.DispatcherConfigFromEnv(),
	)
	dispatcher.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: findDocsFile("public/docs/v1/openapi.yml"),
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Store:    s,
		Webhooks: controllers.NewWebhookController(verifier, dispatcher),
		Credits:  controllers.NewCreditController(ledger),
		Payments: controllers.NewPaymentController(payments),
		Tokens:   clerk.NewTokenResolverFromEnv(),
	})

	return &Application{App: app, store: s, tracker: tracker, dispatcher: dispatcher}, nil
}

// Shutdown stops accepting requests, stops the webhook workers and closes
// the backends.
func (a *Application) Shutdown(timeout time.Duration) {
	if err := a.App.ShutdownWithTimeout(timeout); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	a.dispatcher.Stop()

	if mt, ok := a.tracker.(*idempotency.MemoryTracker); ok {
		mt.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		log.Printf("Error closing store: %v", err)
	}
	if err := cache.Close(); err != nil {
		log.Printf("Error closing cache: %v", err)
	}
}

// findDocsFile resolves rel against the working directory or the project root
// when started from cmd/creditfox.
func findDocsFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return rel
}
