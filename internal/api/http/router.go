package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Queue          *handlers.QueueHandler
	Policies       *handlers.PoliciesHandler
	Workflows      *handlers.WorkflowsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)
	app.Post("/auth/register",
		cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), cfg.Auth.Register)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/transition", cfg.Tickets.Transition)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Post("/:id/work", cfg.Tickets.RecordWork)
	tickets.Get("/:id/sla", cfg.Tickets.EvaluateSLA)

	queue := app.Group("/queue", cfg.AuthMiddleware.Handle, auth.RequireRole())
	queue.Get("", cfg.Queue.Snapshot)
	queue.Post("/entries/:id/move",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Queue.Move)
	queue.Post("/entries/:id/escalate",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Queue.Escalate)
	queue.Post("/reorder",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Queue.Reorder)
	queue.Post("/sweep",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Queue.Sweep)

	policies := app.Group("/sla-policies", cfg.AuthMiddleware.Handle, auth.RequireRole())
	policies.Get("", cfg.Policies.ListPolicies)
	policies.Get("/:id", cfg.Policies.GetPolicy)
	policies.Post("",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Policies.CreatePolicy)
	policies.Put("/:id",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Policies.UpdatePolicy)
	policies.Post("/:id/default",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Policies.SetDefault)

	workflows := app.Group("/workflows", cfg.AuthMiddleware.Handle, auth.RequireRole())
	workflows.Get("", cfg.Workflows.ListWorkflows)
	workflows.Get("/:id", cfg.Workflows.GetWorkflow)
	workflows.Post("",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Workflows.CreateWorkflow)
	workflows.Put("/:id",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Workflows.UpdateWorkflow)
	workflows.Post("/:id/default",
		auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Workflows.SetDefault)
}
