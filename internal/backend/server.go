package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/remote"
	"multisigcheck/internal/utils"
)

const maxBodyBytes = 1 << 20

// Server serves the report and user checklist API.
type Server struct {
	storage Storage
	issuer  *auth.Issuer
	oauth   *auth.OAuth
	logger  *zap.Logger
	now     func() time.Time
}

// NewServer wires handlers to storage. oauth may be nil when no provider is
// configured; issuer is required for the user checklist routes.
func NewServer(storage Storage, issuer *auth.Issuer, oauth *auth.OAuth, logger *zap.Logger) *Server {
	return &Server{
		storage: storage,
		issuer:  issuer,
		oauth:   oauth,
		logger:  utils.OrNop(logger),
		now:     time.Now,
	}
}

// NewRouter creates and returns a new router with all routes.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/reports", s.CreateReportHandler).Methods(http.MethodPost)
	r.HandleFunc("/reports/{id}", s.GetReportHandler).Methods(http.MethodGet)

	r.HandleFunc("/auth/session", s.SessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/start", s.StartAuthHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/callback", s.AuthCallbackHandler).Methods(http.MethodGet)

	if s.issuer != nil {
		users := r.PathPrefix("/users/{id}").Subrouter()
		users.Use(auth.Middleware(s.issuer))
		users.HandleFunc("/checklist", s.GetUserChecklistHandler).Methods(http.MethodGet)
		users.HandleFunc("/checklist", s.PutUserChecklistHandler).Methods(http.MethodPut)
	}
	return r
}

func writeError(w http.ResponseWriter, status int, msg string) {
	auth.JSONResponse(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(out)
}

func (s *Server) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	var report remote.Report
	if err := decodeBody(w, r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(report.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if report.ID == "" {
		report.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	report.CreatedAt = s.now().UTC()

	err := s.storage.CreateReport(r.Context(), report)
	switch {
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "report id already exists")
		return
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("create report failed", zap.String("report_id", report.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store report")
		return
	}
	s.logger.Info("report created", zap.String("report_id", report.ID), zap.Int("completed", len(report.CompletedItems)))
	auth.JSONResponse(w, http.StatusCreated, map[string]string{"id": report.ID})
}

func (s *Server) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, err := s.storage.GetReport(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Error("load report failed", zap.String("report_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	auth.JSONResponse(w, http.StatusOK, report)
}

// ownerOnly returns the path user id when it matches the session subject.
func ownerOnly(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Subject != id {
		writeError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	return id, true
}

func (s *Server) GetUserChecklistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerOnly(w, r)
	if !ok {
		return
	}
	c, err := s.storage.GetUserChecklist(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "checklist not found")
		return
	}
	if err != nil {
		s.logger.Error("load user checklist failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load checklist")
		return
	}
	auth.JSONResponse(w, http.StatusOK, c)
}

func (s *Server) PutUserChecklistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerOnly(w, r)
	if !ok {
		return
	}
	var body remote.UserChecklist
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := remote.UserChecklist{
		UserID:         userID,
		CompletedItems: body.CompletedItems,
		Profile:        body.Profile,
		UpdatedAt:      s.now().UTC(),
	}
	if c.CompletedItems == nil {
		c.CompletedItems = []string{}
	}
	if err := s.storage.PutUserChecklist(r.Context(), c); err != nil {
		s.logger.Error("save user checklist failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save checklist")
		return
	}
	auth.JSONResponse(w, http.StatusOK, c)
}

// SessionHandler describes the bearer token's session.
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, http.StatusNotFound, "authentication is not configured")
		return
	}
	token := auth.ExtractTokenFromHeader(r)
	if token == "" {
		auth.ErrorResponse(w, auth.ErrSessionNotFound)
		return
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		auth.ErrorResponse(w, err)
		return
	}
	resp := map[string]any{
		"user_id":    claims.Subject,
		"email":      claims.Email,
		"name":       claims.Name,
		"avatar_url": claims.AvatarURL,
		"provider":   claims.Provider,
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time.UTC()
	}
	auth.JSONResponse(w, http.StatusOK, resp)
}

func (s *Server) provider(w http.ResponseWriter, r *http.Request) (auth.OAuthProvider, bool) {
	p, err := auth.ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown provider")
		return "", false
	}
	if s.oauth == nil || !s.oauth.Enabled(p) {
		writeError(w, http.StatusNotFound, "provider not configured")
		return "", false
	}
	return p, true
}

func (s *Server) StartAuthHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(w, r)
	if !ok {
		return
	}
	target, err := s.oauth.AuthCodeURL(p, r.URL.Query().Get("redirect_uri"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) AuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	state := q.Get("state")
	if reason := q.Get("error"); reason != "" {
		s.logger.Info("sign-in declined", zap.String("provider", string(p)), zap.String("reason", reason))
		s.fail(w, r, state, reason)
		return
	}
	target, err := s.oauth.Complete(r.Context(), p, q.Get("code"), state)
	if err != nil {
		s.logger.Warn("sign-in failed", zap.String("provider", string(p)), zap.Error(err))
		s.fail(w, r, state, "sign_in_failed")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, state, reason string) {
	if target, ok := s.oauth.FailureRedirect(state, reason); ok {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	writeError(w, http.StatusBadRequest, "sign-in failed")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", s.now().Sub(start)),
		)
	})
}
