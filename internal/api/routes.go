package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Device-facing ingest routes. Devices authenticate by external id;
	// they carry no JWT.
	r.Route("/ingest/{external_id}", func(r chi.Router) {
		r.Post("/locations", s.HandleReportLocation)
		r.Post("/heartbeat", s.HandleHeartbeat)
		r.Post("/ack", s.HandleDeviceAck)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Users
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.HandleListUsers)
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetUser)
				r.Put("/", s.HandleUpdateUser)
				r.Delete("/", s.HandleDeleteUser)
			})
		})

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.HandleListDevices)
			r.Post("/", s.HandleCreateDevice)
			r.Route("/{external_id}", func(r chi.Router) {
				r.Get("/", s.HandleGetDevice)
				r.Put("/", s.HandleUpdateDevice)
				r.Delete("/", s.HandleDeleteDevice)

				// Location history
				r.Get("/locations", s.HandleListLocations)
				r.Get("/locations/latest", s.HandleGetLatestLocation)

				// Command queue
				r.Get("/commands", s.HandleListPendingCommands)
				r.Post("/commands", s.HandleCreateCommand)

				// Current pending configuration
				r.Get("/config", s.HandleGetPendingConfig)

				// Geofences
				r.Get("/geofences", s.HandleListGeofences)
				r.Post("/geofences", s.HandleCreateGeofence)

				// Alerts
				r.Get("/alerts", s.HandleListAlerts)
				r.Get("/alerts/unread-count", s.HandleCountUnreadAlerts)
			})
		})

		// Commands addressed by id
		r.Route("/commands", func(r chi.Router) {
			r.Post("/{id}/ack", s.HandleAcknowledgeCommand)
			r.Delete("/{id}", s.HandleCancelCommand)
		})

		// Geofences addressed by id
		r.Route("/geofences", func(r chi.Router) {
			r.Get("/{id}", s.HandleGetGeofence)
			r.Put("/{id}", s.HandleUpdateGeofence)
			r.Delete("/{id}", s.HandleDeleteGeofence)
		})

		// Alerts addressed by id
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/{id}/read", s.HandleMarkAlertRead)
		})

		// System logs
		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.HandleListSystemLogs)
		})
	})
}
