package router

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gridmirror/gridmirror/app/controllers"
	"github.com/gridmirror/gridmirror/internal/pkg/audit"
	"github.com/gridmirror/gridmirror/internal/pkg/env"
	"github.com/gridmirror/gridmirror/internal/pkg/gridstore"
	"github.com/gridmirror/gridmirror/internal/pkg/mirror"
	"github.com/gridmirror/gridmirror/internal/pkg/ticket"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	store := gridstore.NewClientFromEnv()
	sink := audit.NewStoreSink(store, env.GetEnv("GRID_TABLE_LOGS", ""))
	upserter := mirror.NewUpserter(store, sink)

	eventRouter, err := mirror.NewRouter(upserter, sink, mirror.TablesFromEnv())
	if err != nil {
		log.Fatalf("webhook router setup failed: %v", err)
	}

	if env.GetEnv("TICKETS_ENABLED", "false") == "true" {
		manager, err := ticket.NewManager(upserter, store, sink, ticket.TablesFromEnv())
		if err != nil {
			log.Fatalf("ticket manager setup failed: %v", err)
		}
		eventRouter.SetTicketIssuer(manager)
		controllers.InitializeTicketController(manager)
	}

	controllers.InitializeWebhookController(
		eventRouter,
		sink,
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		env.GetEnv("EVENT_DEDUP_CACHE", "true") == "true",
	)

	app.Get("/", controllers.HandleIndex)
	app.Get("/health", controllers.HandleHealth)
	app.Post("/webhook/stripe", controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
