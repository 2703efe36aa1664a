package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aqiq/tims-fiscal/internal/application/fiscal"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

// RouterDeps dependencies for the router.
type RouterDeps struct {
	Dispatcher   *fiscal.Dispatcher
	Probe        *fiscal.Probe
	QueueRepo    repository.QueueRepository
	SettingsRepo repository.SettingsRepository
}

// Router registers the API routes.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/fiscal")

	fiscalHandler := NewFiscalHandler(deps.Dispatcher, deps.QueueRepo)
	api.Post("/queue/:invoiceID", fiscalHandler.Enqueue)
	api.Get("/queue", fiscalHandler.ListQueue)
	api.Get("/queue/invoice/:invoiceID", fiscalHandler.ListByInvoice)
	api.Post("/invoices/:invoiceID/fiscalize", fiscalHandler.FiscalizeNow)

	settingsHandler := NewSettingsHandler(deps.SettingsRepo, deps.Probe)
	device := api.Group("/device")
	device.Get("/settings", settingsHandler.Get)
	device.Put("/settings", settingsHandler.Update)
	device.Get("/status", settingsHandler.Status)
}
