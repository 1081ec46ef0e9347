// acforums/handlers/router.go

package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(app App) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(RequestLogger(app))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", MakeHandler(app, HandleHealth))

	// Admin triggers: LAN-only, rate limited.
	mux.Route("/admin", func(r chi.Router) {
		r.Use(RequireLAN)
		r.Use(RateLimit(app))
		r.Post("/recount", MakeHandler(app, HandleRecountAll))
		r.Post("/recount/board/{boardID}", MakeHandler(app, HandleRecountBoard))
		r.Post("/recount/user/{userID}", MakeHandler(app, HandleRecountUser))
		r.Post("/sweep", MakeHandler(app, HandleTriggerSweep))
		r.Post("/backup", MakeHandler(app, HandleDatabaseBackup))
	})

	return mux
}
