package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"clearner-backend/internal/content"
	"clearner-backend/internal/errs"
	"clearner-backend/internal/events"
	"clearner-backend/internal/identity"
	"clearner-backend/internal/logger"
	"clearner-backend/internal/progress"
	syncpkg "clearner-backend/internal/sync"
)

type Handler struct {
	resolver    *identity.Resolver
	tracker     *progress.Tracker
	recorder    *events.Recorder
	content     *content.Service
	maintenance *syncpkg.Maintenance
	corsOrigins []string
	validate    *validator.Validate
}

func NewHandler(resolver *identity.Resolver, tracker *progress.Tracker, recorder *events.Recorder, contentSvc *content.Service, maintenance *syncpkg.Maintenance, corsOrigins []string) *Handler {
	return &Handler{
		resolver:    resolver,
		tracker:     tracker,
		recorder:    recorder,
		content:     contentSvc,
		maintenance: maintenance,
		corsOrigins: corsOrigins,
		validate:    validator.New(),
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Get("/lessons/{course}/{id}", h.GetLesson)
		r.Post("/progress", h.SaveProgress)
		r.Get("/progress/{userId}", h.ListProgress)
		r.Post("/log/paste", h.LogPaste)
		r.Get("/sync/status", h.GetSyncStatus)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type loginRequest struct {
	DisplayName string `json:"displayName" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.resolver.Resolve(r.Context(), req.DisplayName)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, user)
}

func (h *Handler) GetLesson(w http.ResponseWriter, r *http.Request) {
	course := chi.URLParam(r, "course")
	id := chi.URLParam(r, "id")

	doc, err := h.content.GetLesson(course, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

type progressRequest struct {
	UserID      string `json:"userId" validate:"required"`
	LessonID    string `json:"lessonId" validate:"required"`
	CurrentStep *int   `json:"currentStep" validate:"required"`
	Completed   bool   `json:"completed"`
}

func (h *Handler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.tracker.Upsert(r.Context(), req.UserID, req.LessonID, *req.CurrentStep, req.Completed)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]string{"status": "saved"})
}

func (h *Handler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	summaries, err := h.tracker.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, summaries)
}

// pasteRequest has no required fields: only an undecodable body is a
// client error here. Incomplete events are dropped by the recorder,
// and the route answers 200 either way.
type pasteRequest struct {
	UserID    string `json:"userId"`
	LessonID  string `json:"lessonId"`
	StepIndex int    `json:"stepIndex"`
	EventType string `json:"eventType"`
}

func (h *Handler) LogPaste(w http.ResponseWriter, r *http.Request) {
	var req pasteRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.recorder.Record(r.Context(), req.UserID, req.LessonID, req.StepIndex, req.EventType)

	h.writeJSON(w, map[string]string{"status": "logged"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.maintenance.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, stats)
}

// decode parses the body and enforces the required-field contract.
// It writes the 400 itself and returns false when the request is bad.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, "missing required field", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errs.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		// Internals stay out of the response body
		logger.Log.Error("Request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	allowed := "*"
	if len(h.corsOrigins) > 0 {
		allowed = strings.Join(h.corsOrigins, ", ")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}
