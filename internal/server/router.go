package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/bookings/booking_api"
	"ms-booking/internal/events/event_api"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/sse"
	"ms-booking/internal/users/user_api"
	"ms-booking/internal/utils"
)

type Handlers struct {
	Users     *user_api.Handler
	Events    *event_api.Handler
	Bookings  *booking_api.Handler
	Analytics *analytics_api.Handler
	// Stream is optional.
	Stream *sse.Handler
}

type Options struct {
	Resolver       auth.Resolver
	Logger         *logger.Logger
	AllowedOrigins []string
	// Health reports storage reachability for /healthz. Optional.
	Health func(ctx context.Context) error
	// Provision runs for every authenticated request. Optional; set when
	// identities come from an external provider.
	Provision func(ctx context.Context, id models.Identity) error
}

// NewRouter assembles the HTTP surface under /api/v1.
func NewRouter(opts Options, h Handlers) http.Handler {
	log := opts.Logger
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(opts.Health))

	r.Route("/api/v1", func(r chi.Router) {
		// --- Public Routes ---
		h.Users.RegisterRoutes(r)
		h.Events.RegisterPublicRoutes(r)
		r.Get("/events/{id}/availability", h.Bookings.Availability)
		if h.Stream != nil {
			r.Get("/events/{id}/availability/stream", h.Stream.StreamAvailability)
		}

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.Resolver, log))
			if opts.Provision != nil {
				r.Use(ProvisionIdentity(opts.Provision, log))
			}

			r.Get("/auth/me", h.Users.Me)
			h.Bookings.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))

				h.Events.RegisterAdminRoutes(r)
				r.Get("/events/{id}/bookings", h.Bookings.ListEventBookings)
				h.Analytics.RegisterRoutes(r)
			})
		})
	})

	log.Info("ROUTER", "Routes registered under /api/v1")
	return r
}

// ProvisionIdentity hands the authenticated identity to provision. Failures
// are logged and the request continues.
func ProvisionIdentity(provision func(ctx context.Context, id models.Identity) error, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := auth.FromContext(r.Context()); ok {
				if err := provision(r.Context(), id); err != nil {
					log.Error("AUTH", fmt.Sprintf("Provisioning %s failed: %v", id.UserID, err))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  fmt.Sprintf("%v", err),
				})
				return
			}
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
