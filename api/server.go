/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:           Cross-origin requests for the HR frontend
  2. RequestLogger:  httplog structured request logs (ECS schema)
  3. CleanPath:      Collapses double slashes
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. Heartbeat:      GET /health for load balancers

ROUTE GROUPS:
  /api/v1/auth/token    Dev-only token issuer
  /api/v1/*             Everything else, behind jwtauth.Verifier + Authenticator

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Actor extraction
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

// RouterOptions tune the outer middleware. A nil Logger disables request
// logging.
type RouterOptions struct {
	CORSOrigins []string
	Logger      *slog.Logger
	LogLevel    slog.Level
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.Logger != nil {
		r.Use(httplog.RequestLogger(opts.Logger, &httplog.Options{
			Level:  opts.LogLevel,
			Schema: httplog.SchemaECS,
		}))
	}
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api/v1", func(r chi.Router) {
		if h.deps.DevTokens {
			r.Post("/auth/token", h.IssueToken)
		}

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.deps.JWT))
			r.Use(Authenticator)

			r.Route("/time", func(r chi.Router) {
				r.Post("/clock-in", h.ClockIn)
				r.Post("/clock-out", h.ClockOut)
				r.Post("/breaks/start", h.StartBreak)
				r.Post("/breaks/end", h.EndBreak)
				r.Post("/manual", h.SubmitManualEntry)
				r.Get("/status/{employeeID}", h.GetTimeStatus)
				r.Route("/entries", func(r chi.Router) {
					r.Get("/", h.ListTimeEntries)
					r.Get("/{id}", h.GetTimeEntry)
					r.Post("/{id}/correction", h.SubmitCorrection)
					r.Post("/{id}/approve", h.ApproveTimeEntry)
					r.Post("/{id}/reject", h.RejectTimeEntry)
				})
			})

			r.Route("/leave", func(r chi.Router) {
				r.Route("/requests", func(r chi.Router) {
					r.Post("/", h.SubmitLeaveRequest)
					r.Get("/", h.ListLeaveRequests)
					r.Get("/{id}", h.GetLeaveRequest)
					r.Post("/{id}/approve", h.ApproveLeaveRequest)
					r.Post("/{id}/reject", h.RejectLeaveRequest)
					r.Post("/{id}/cancel", h.CancelLeaveRequest)
				})
				r.Route("/balances", func(r chi.Router) {
					r.Post("/adjust", h.AdjustBalance)
					r.Get("/{employeeID}", h.ListBalances)
					r.Get("/{employeeID}/history", h.GetBalanceHistory)
				})
				r.Post("/accrual/run", h.RunAccrual)
				r.Post("/carry-over", h.RunCarryOver)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/overtime/{employeeID}", h.OvertimeReport)
				r.Get("/pending-approvals", h.PendingApprovals)
				r.Get("/dashboard/{employeeID}", h.Dashboard)
			})

			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.ListEmployees)
				r.Post("/", h.SaveEmployee)
				r.Get("/{id}", h.GetEmployee)
			})

			r.Route("/policies", func(r chi.Router) {
				r.Get("/", h.ListPolicies)
				r.Post("/", h.CreatePolicy)
				r.Get("/{id}", h.GetPolicy)
			})

			r.Route("/holidays", func(r chi.Router) {
				r.Get("/", h.ListHolidays)
				r.Post("/", h.CreateHoliday)
			})

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})

			r.Post("/admin/time/sweep", h.SweepStaleEntries)
		})
	})

	return r
}
