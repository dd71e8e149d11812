package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"edukeeper/internal/ratelimit"
	"edukeeper/internal/usertoken"
	"edukeeper/internal/util"
	"edukeeper/pkg/domain"
	"edukeeper/services/assist/internal/app"
)

// Config wires required dependencies for the HTTP server.
// A nil GenerateLimiter disables throttling.
type Config struct {
	App             *app.App
	TokenVerifier   *usertoken.Verifier
	GenerateLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the assistance service.
type Server struct {
	app             *app.App
	tokenVerifier   *usertoken.Verifier
	mux             *http.ServeMux
	generateLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		tokenVerifier:   cfg.TokenVerifier,
		mux:             http.NewServeMux(),
		generateLimiter: cfg.GenerateLimiter,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("assist", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/assist/summarize", s.withUser(s.handleSummarize))
	s.mux.Handle("/assist/exercises", s.withUser(s.handleExercises))
	s.mux.Handle("/assist/evaluation", s.withUser(s.handleEvaluation))
	// historical client alias
	s.mux.Handle("/assist/control", s.withUser(s.handleEvaluation))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		subject, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserByID(subject)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !s.allowGenerate(w, r, user) {
			return
		}
		next(w, r, user)
	})
}

// Generation calls are throttled per user rather than per IP since every
// request here is authenticated and provider-priced.
func (s *Server) allowGenerate(w http.ResponseWriter, r *http.Request, user domain.User) bool {
	if s.generateLimiter == nil || r.Method != http.MethodPost {
		return true
	}
	if s.generateLimiter.Allow(user.ID) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many generation requests")
	return false
}

type generateRequest struct {
	DocumentID string `json:"documentId"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
	Format     string `json:"format"`
	GradeLevel string `json:"gradeLevel"`
	Specialty  string `json:"specialty"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request, user domain.User) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	result, err := s.app.Summarize(r.Context(), user, req.DocumentID)
	if err != nil {
		writeAssistError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request, user domain.User) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	result, err := s.app.GenerateExercises(r.Context(), user, req.DocumentID, app.ExerciseParams{
		Count:      req.Count,
		Difficulty: req.Difficulty,
		Format:     req.Format,
	})
	if err != nil {
		writeAssistError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request, user domain.User) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	result, err := s.app.GenerateEvaluation(r.Context(), user, req.DocumentID, app.EvaluationParams{
		GradeLevel: req.GradeLevel,
		Specialty:  req.Specialty,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		writeAssistError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (generateRequest, bool) {
	var req generateRequest
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "document id required")
		return req, false
	}
	return req, true
}

func writeAssistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, "document has no extracted text")
	case errors.Is(err, app.ErrNotReady):
		writeError(w, http.StatusConflict, "document not ready")
	default:
		writeError(w, http.StatusBadGateway, "generation failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForAssist(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForAssist(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "DOC_FORBIDDEN"
	case message == "document not found":
		return "DOC_NOT_FOUND"
	case message == "document id required":
		return "ASSIST_DOCUMENT_REQUIRED"
	case message == "document has no extracted text":
		return "ASSIST_EMPTY_DOCUMENT"
	case message == "document not ready":
		return "ASSIST_DOCUMENT_NOT_READY"
	case message == "generation failed":
		return "ASSIST_GENERATION_FAILED"
	case message == "too many generation requests":
		return "ASSIST_RATE_LIMITED"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	}
	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "DOC_FORBIDDEN"
	case http.StatusNotFound:
		return "DOC_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "ASSIST_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
