package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vgate/internal/httpapi/handlers"
	"vgate/internal/httpkit"
	"vgate/internal/pkg/logger"
	"vgate/internal/pkg/middleware"
	"vgate/internal/ports"
)

type Deps struct {
	Jobs        handlers.Submitter
	Queue       ports.QueuePublisher
	ServiceName string
	CORSOrigins []string
	Log         *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	// ---- CORS (browser form) ----
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAgeSeconds:  600,
	}))

	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	h := handlers.New(handlers.Deps{
		Jobs:        d.Jobs,
		Queue:       d.Queue,
		ServiceName: d.ServiceName,
		Log:         log,
	})

	// ---- HEALTH ----
	r.Get("/", h.Health)
	r.Get("/health", h.Health)

	// ---- JOBS ----
	postJob := middleware.WrapHandler(h.Log(), h.PostJob)
	r.Post("/video-url", postJob)
	r.Post("/jobs", postJob)

	return r
}
