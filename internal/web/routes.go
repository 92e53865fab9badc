package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

// storeView is the read side of the store used by the config and identity handlers.
type storeView interface {
	handlers.DimensionSource
	handlers.IdentityLister
}

func (s *Server) setupRoutes() {
	maxUpload := int64(s.config.Web.MaxUploadMB) << 20

	// Keep a missing store a nil interface so the handlers can tell.
	var store storeView
	if s.deps.Store != nil {
		store = s.deps.Store
	}

	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config, store)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Recognizer, s.deps.Detector, maxUpload)
	enrollHandler := handlers.NewEnrollHandler(s.deps.Enroller, s.deps.Detector, maxUpload)
	identitiesHandler := handlers.NewIdentitiesHandler(store, s.deps.Enroller, maxUpload)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/recognize/frame", recognizeHandler.RecognizeFrame)

		// Enrollment
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/enroll/images", enrollHandler.EnrollImages)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Put("/identities/{name}", identitiesHandler.Replace)
		r.Delete("/identities/{name}", identitiesHandler.Delete)
	})
}
