// Package api exposes the companion over HTTP: the patient-facing session
// and monitor endpoints, a live websocket stream, and the caregiver query
// API.
package api

import (
	"context"
	"net/http"
	"time"

	"caregiver-companion/internal/emergency"
	"caregiver-companion/internal/metrics"
	"caregiver-companion/internal/models"
	"caregiver-companion/internal/notify"
	"caregiver-companion/internal/session"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type MonitorService interface {
	Start()
	Stop() bool
	View() models.View
}

type EventSource interface {
	Subscribe(ownerID string) (<-chan notify.Event, func())
}

type AlertService interface {
	Send(ctx context.Context, ownerID string, req emergency.AlertRequest) (models.EmergencyAlert, error)
	Acknowledge(ctx context.Context, alertID, by string) (models.EmergencyAlert, error)
	List(ctx context.Context, ownerID string) ([]models.EmergencyAlert, error)
}

type ProfileStore interface {
	UpsertProfile(ctx context.Context, p models.PatientProfile) (models.PatientProfile, error)
	GetProfile(ctx context.Context, ownerID string) (models.PatientProfile, error)
	ListProfiles(ctx context.Context) ([]models.PatientProfile, error)
	DeleteProfile(ctx context.Context, ownerID string) error
}

type ReadingQuerier interface {
	LoadLatest(ctx context.Context, ownerID string) (models.Reading, bool, error)
	LoadHistory(ctx context.Context, ownerID string, max int) ([]models.Reading, error)
	ListLatest(ctx context.Context) ([]models.Reading, error)
}

type Deps struct {
	Monitor         MonitorService
	Session         *session.Session
	Verifier        *session.Verifier
	Events          EventSource
	Alerts          AlertService
	Profiles        ProfileStore
	Readings        ReadingQuerier
	Metrics         *metrics.Collector
	CaregiverAPIKey string
	AllowedOrigins  []string
	Logger          *zap.Logger
}

type Server struct {
	deps     Deps
	logger   *zap.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	return &Server{
		deps:     deps,
		logger:   deps.Logger,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", s.healthCheck)
	if s.deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	router.With(s.authenticate).Get("/ws/monitor", s.monitorStream)

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/session", s.signIn)
			r.Delete("/session", s.signOut)

			r.Route("/monitor", func(r chi.Router) {
				r.Use(s.requireActiveSession)
				r.Get("/", s.getMonitor)
				r.Post("/start", s.startMonitor)
				r.Post("/stop", s.stopMonitor)
				r.Get("/history", s.getHistory)
			})

			r.Post("/emergency", s.sendEmergency)
			r.Get("/emergency", s.listEmergencies)

			r.Get("/profile", s.getProfile)
			r.Put("/profile", s.putProfile)
			r.Delete("/profile", s.deleteProfile)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireCaregiverKey)

			r.Get("/patients", s.listPatients)
			r.Get("/patients/{ownerID}", s.getPatient)
			r.Get("/sensors/{field}", s.getSensorField)
			r.Post("/alerts/{alertID}/ack", s.acknowledgeAlert)
		})
	})

	return router
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(started)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		})
	}
}
