package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Get("/results", h.LatestResults)
	v1.Get("/results/:scenario/history", h.History)
	v1.Post("/runs", h.Run)
}
