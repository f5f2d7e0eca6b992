package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/http/handlers"
	"github.com/healthcure/clinic/internal/http/middleware"
	"github.com/healthcure/clinic/internal/http/response"
)

type RouterDeps struct {
	Auth        *handlers.AuthHandler
	Admin       *handlers.AdminHandler
	Clinical    *handlers.ClinicalHandler
	Guard       *middleware.Guard
	Limiter     *middleware.RateLimiter
	FrontendURL string
}

// NewRouter wires the route tree. Guard chains compose authentication, then
// role, then ownership; no handler runs without the full chain in front.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(d.Limiter.Limit("register")).Post("/register", d.Auth.Register)
			r.With(d.Limiter.Limit("login")).Post("/login", d.Auth.Login)
			r.With(d.Limiter.Limit("verify")).Post("/verify-code", d.Auth.VerifyCode)
			r.Post("/logout", d.Auth.Logout)

			r.Group(func(r chi.Router) {
				r.Use(d.Guard.RequireSession)
				r.Get("/me", d.Auth.Me)
				r.Put("/password", d.Auth.ChangePassword)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(d.Guard.RequireSession)
			r.Use(d.Guard.RequireRole(domain.RoleAdmin))

			r.Get("/users", d.Admin.ListUsers)
			r.Post("/users", d.Admin.CreateUser)
			r.Get("/users/{id}", d.Admin.GetUser)
			r.Delete("/users/{id}", d.Admin.DeleteUser)
			r.Get("/patients", d.Admin.ListPatients)
			r.Get("/patients/{id}", d.Admin.GetPatientRecord)
			r.Put("/doctors/{id}/nurse", d.Admin.AssignNurse)
			r.Get("/logs", d.Admin.ListAuditLog)
		})

		r.Route("/patients/{id}", func(r chi.Router) {
			r.Use(d.Guard.RequireSession)
			r.Use(d.Guard.RequireRole(domain.RolePatient, domain.RoleAdmin))
			r.Use(d.Guard.RequireOwnerRole("id", domain.RolePatient))

			r.Get("/appointments", d.Clinical.PatientAppointments)
			r.Post("/appointments", d.Clinical.RequestAppointment)
		})

		r.Route("/doctors/{id}", func(r chi.Router) {
			r.Use(d.Guard.RequireSession)
			r.Use(d.Guard.RequireRole(domain.RoleDoctor, domain.RoleAdmin))
			r.Use(d.Guard.RequireOwnerRole("id", domain.RoleDoctor))

			r.Get("/appointments", d.Clinical.DoctorAppointments)
			r.Post("/appointments/{appointmentID}/accept", d.Clinical.AcceptAppointment)
			r.Post("/appointments/{appointmentID}/assign", d.Clinical.AssignAppointment)
			r.Post("/appointments/{appointmentID}/diagnosis", d.Clinical.RecordDiagnosis)
			r.Get("/patients", d.Clinical.DoctorPatients)
		})

		r.Route("/nurses/{id}", func(r chi.Router) {
			r.Use(d.Guard.RequireSession)
			r.Use(d.Guard.RequireRole(domain.RoleNurse, domain.RoleAdmin))
			r.Use(d.Guard.RequireOwnerRole("id", domain.RoleNurse))

			r.Get("/appointments", d.Clinical.NurseAppointments)
			r.Post("/medications", d.Clinical.RecordMedication)
		})
	})

	return r
}

// Server wraps http.Server with the timeouts the config carries.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}
