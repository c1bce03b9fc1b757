package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pressline/insiderhub/internal/pkg/cache"
	"github.com/pressline/insiderhub/internal/pkg/database"
	"github.com/pressline/insiderhub/internal/pkg/dispatch"
	"github.com/pressline/insiderhub/internal/pkg/env"
	"github.com/pressline/insiderhub/internal/pkg/router"
)

func main() {
	app := NewApplication()

	worker := dispatch.GetWorker()
	worker.Start()

	// graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		worker.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "insiderhub",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
