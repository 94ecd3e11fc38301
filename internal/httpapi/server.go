package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/facelocker/server/internal/biometric"
	"github.com/facelocker/server/internal/locker/service"
	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/types"
)

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Access *service.AccessController
	// Extractor is optional; without it image uploads are refused.
	Extractor biometric.Extractor
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	router     *chi.Mux
	access     *service.AccessController
	extractor  biometric.Extractor
}

func NewServer(d Dependencies) *Server {
	r := chi.NewRouter()

	s := &Server{
		logger:    d.Logger,
		router:    r,
		access:    d.Access,
		extractor: d.Extractor,
	}

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(d.Logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/identities/{identityID}", s.handleEnroll)
		r.Get("/identities/{identityID}", s.handleIdentity)
		r.Delete("/identities/{identityID}", s.handleUnregister)
		r.Post("/verify", s.handleVerify)
		r.Post("/identify", s.handleIdentify)

		r.Get("/lockers", s.handleListLockers)
		r.Get("/lockers/{lockerNumber}", s.handleGetLocker)
		r.Post("/lockers/{lockerNumber}/{action}", s.handleLockerAction)

		r.Get("/access_logs", s.handleAccessLogs)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Service ──────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type statusResponse struct {
	service.Status
	Tolerance  float64 `json:"tolerance"`
	ServerTime string  `json:"server_time"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:     s.access.Status(),
		Tolerance:  s.access.DefaultTolerance(),
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// ── Identities ───────────────────────────────────────────────────────────────

type identityResponse struct {
	IdentityID string     `json:"identity_id"`
	Enrolled   bool       `json:"enrolled"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
	ImageRef   string     `json:"image_ref,omitempty"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	req, vec, err := s.readVectorRequest(r)
	if err != nil {
		s.writeVectorError(w, r, err)
		return
	}

	ident, err := s.access.Enroll(r.Context(), chi.URLParam(r, "identityID"), vec, req.ImageRef)
	if err != nil {
		s.writeServiceError(w, r, "enroll", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, identityResponse{
		IdentityID: ident.ID,
		Enrolled:   true,
		EnrolledAt: &ident.EnrolledAt,
		ImageRef:   ident.ImageRef,
	})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identityID")
	ident, err := s.access.Identity(id)
	if errors.Is(err, service.ErrNotEnrolled) {
		// Lookups report absence rather than failing.
		s.writeJSON(w, http.StatusOK, identityResponse{IdentityID: id})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, "identity", err)
		return
	}
	s.writeJSON(w, http.StatusOK, identityResponse{
		IdentityID: ident.ID,
		Enrolled:   true,
		EnrolledAt: &ident.EnrolledAt,
		ImageRef:   ident.ImageRef,
	})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := s.access.Unregister(r.Context(), chi.URLParam(r, "identityID")); err != nil {
		s.writeServiceError(w, r, "unregister", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Matching ─────────────────────────────────────────────────────────────────

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	req, vec, err := s.readVectorRequest(r)
	if err != nil {
		s.writeVectorError(w, r, err)
		return
	}

	res, err := s.access.VerifyIdentity(r.Context(), req.IdentityID, vec, req.tolerance())
	if err != nil {
		s.writeServiceError(w, r, "verify", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	req, vec, err := s.readVectorRequest(r)
	if err != nil {
		s.writeVectorError(w, r, err)
		return
	}

	res, err := s.access.Identify(r.Context(), vec, req.tolerance())
	if err != nil {
		s.writeServiceError(w, r, "identify", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// ── Lockers ──────────────────────────────────────────────────────────────────

func lockerNumber(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "lockerNumber"))
	return n, err == nil && n > 0
}

func (s *Server) handleListLockers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]types.Locker{"lockers": s.access.Lockers()})
}

func (s *Server) handleGetLocker(w http.ResponseWriter, r *http.Request) {
	n, ok := lockerNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_locker", "locker number must be a positive integer")
		return
	}
	l, err := s.access.Locker(n)
	if err != nil {
		s.writeServiceError(w, r, "locker", err)
		return
	}
	s.writeJSON(w, http.StatusOK, l)
}

type actionErrorResponse struct {
	errorResponse
	Outcome types.ActionOutcome `json:"outcome"`
}

func (s *Server) handleLockerAction(w http.ResponseWriter, r *http.Request) {
	n, ok := lockerNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_locker", "locker number must be a positive integer")
		return
	}
	req, vec, err := s.readVectorRequest(r)
	if err != nil {
		s.writeVectorError(w, r, err)
		return
	}

	out, err := s.access.AuthorizeAction(r.Context(), types.ActionRequest{
		LockerNumber: n,
		IdentityID:   req.IdentityID,
		Vector:       vec,
		Action:       types.Action(chi.URLParam(r, "action")),
		Tolerance:    req.tolerance(),
	})
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.writeServiceError(w, r, "locker action", err)
			return
		}
		s.writeJSON(w, status, actionErrorResponse{
			errorResponse: errorResponse{Error: code, Message: err.Error()},
			Outcome:       out,
		})
		return
	}
	// A face mismatch is a decision, not a failure.
	s.writeJSON(w, http.StatusOK, out)
}

// ── Access log ───────────────────────────────────────────────────────────────

func (s *Server) handleAccessLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.AccessEventQuery{IdentityID: q.Get("identity_id")}

	for key, dst := range map[string]*int{"locker": &query.LockerNumber, "limit": &query.Limit} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be a positive integer")
			return
		}
		*dst = n
	}

	entries, err := s.access.AccessLog(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, "access log", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]types.AccessLogEntry{"entries": entries})
}
