package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Complaints     *handlers.ComplaintsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	complaints := app.Group("/complaints", cfg.AuthMiddleware.Handle)
	complaints.Post("/", cfg.Complaints.CreateComplaint)
	complaints.Get("/", cfg.Complaints.ListComplaints)
	complaints.Get("/:id", cfg.Complaints.GetComplaint)
	complaints.Patch("/:id", cfg.Complaints.UpdateComplaint)
	complaints.Delete("/:id", cfg.Complaints.DeleteComplaint)
	complaints.Get("/:id/timeline", cfg.Complaints.Timeline)
	complaints.Post("/:id/status", auth.RequireHandler(), cfg.Complaints.ChangeStatus)
	complaints.Post("/:id/priority", auth.RequireHandler(), cfg.Complaints.ChangePriority)
	complaints.Post("/:id/assign", auth.RequireHandler(), cfg.Complaints.Assign)
	complaints.Post("/:id/escalate", auth.RequireHandler(), cfg.Complaints.Escalate)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle)
	admin.Get("/due-date", auth.RequireHandler(), cfg.Admin.DueDate)
	admin.Post("/users", auth.RequireAdmin(), cfg.Users.CreateUser)
	admin.Get("/sla-policies", auth.RequireAdmin(), cfg.Admin.ListPolicies)
	admin.Post("/sla-policies", auth.RequireAdmin(), cfg.Admin.CreatePolicy)
	admin.Delete("/sla-policies/:id", auth.RequireAdmin(), cfg.Admin.DeactivatePolicy)
	admin.Get("/routing-rules", auth.RequireAdmin(), cfg.Admin.ListRules)
	admin.Post("/routing-rules", auth.RequireAdmin(), cfg.Admin.CreateRule)
	admin.Delete("/routing-rules/:id", auth.RequireAdmin(), cfg.Admin.DeactivateRule)
	admin.Post("/sweep", auth.RequireAdmin(), cfg.Admin.Sweep)
}
