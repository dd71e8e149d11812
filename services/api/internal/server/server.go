package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"edukeeper/internal/ratelimit"
	"edukeeper/internal/util"
	"edukeeper/pkg/domain"
	"edukeeper/pkg/store"
	"edukeeper/services/api/internal/app"
)

// Config wires required dependencies for the HTTP server.
// A nil limiter disables throttling on the corresponding route.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
	SignupLimiter  *ratelimit.FixedWindowLimiter
	LoginLimiter   *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the core service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	proxies        *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		proxies:        cfg.TrustedProxies,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("api", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/.well-known/jwks.json", s.handleJWKS)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/logout", s.withUser(s.handleLogout))
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))
	s.mux.Handle("/profile", s.withUser(s.handleProfile))

	// documents
	s.mux.Handle("/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/documents/", s.withUser(s.handleDocumentByID))

	// categories
	s.mux.Handle("/categories", s.withUser(s.handleCategories))
	s.mux.Handle("/categories/", s.withUser(s.handleCategoryByID))

	// gamification
	s.mux.Handle("/history", s.withUser(s.handleHistory))
	s.mux.Handle("/xp", s.withUser(s.handleAwardXP))
	s.mux.Handle("/skins", s.withUser(s.handleSkins))
	s.mux.Handle("/skins/select", s.withUser(s.handleSelectSkin))

	// teacher dashboard
	s.mux.Handle("/teacher/dashboard", s.withUser(s.handleTeacherDashboard))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	provider, ok := s.app.Sessions().(store.JWKSProvider)
	if !ok {
		notFound(w, "not found")
		return
	}
	w.Header().Set("Cache-Control", "max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": provider.JWKS()})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	BirthDate   string `json:"birthDate"`
	SchoolGrade string `json:"schoolGrade"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
	Level int         `json:"level"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		return
	}
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params := app.SignUpParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		SchoolGrade: req.SchoolGrade,
	}
	if strings.TrimSpace(req.BirthDate) != "" {
		bd, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid birth date")
			return
		}
		params.BirthDate = &bd
	}
	user, token, err := s.app.SignUp(params)
	if err != nil {
		if errors.Is(err, app.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already exists")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user, Level: user.Level()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user, Level: user.Level()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"level":       user.Level(),
		"xpIntoLevel": domain.XPIntoLevel(user.XP),
	})
}

type profileRequest struct {
	DisplayName *string `json:"displayName"`
	BirthDate   *string `json:"birthDate"`
	SchoolGrade *string `json:"schoolGrade"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	upd := app.ProfileUpdate{
		DisplayName: req.DisplayName,
		SchoolGrade: req.SchoolGrade,
	}
	if req.BirthDate != nil {
		bd, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid birth date")
			return
		}
		upd.BirthDate = &bd
	}
	updated, err := s.app.UpdateProfile(user.ID, upd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadDocument(w, r, user)
	case http.MethodGet:
		s.handleListDocuments(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	doc, err := s.app.UploadDocument(user, header.Filename, r.FormValue("categoryId"), file, header.Size)
	if err != nil {
		if errors.Is(err, app.ErrCategoryNotFound) {
			writeError(w, http.StatusBadRequest, "category not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	q := r.URL.Query()
	opts := app.ListOptions{
		CategoryID: q.Get("category"),
		Status:     q.Get("status"),
		Query:      q.Get("q"),
		Owner:      q.Get("owner"),
		SortBy:     q.Get("sort"),
		Desc:       q.Get("order") == "desc",
	}
	docs, err := s.app.ListDocuments(user, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"count": len(docs),
	})
}

// /documents/{id} plus /documents/{id}/{download,export,share}
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "download":
			s.handleDownloadDocument(w, r, user, id)
		case "export":
			s.handleExportDocument(w, r, user, id)
		case "share":
			s.handleShareDocument(w, r, user, id)
		default:
			notFound(w, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetDocument(user, id)
		if err != nil {
			writeDocumentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := s.app.DeleteDocument(user, id); err != nil {
			writeDocumentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, filename, err := s.app.GetDownloadURL(user, id)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"filename": filename,
	})
}

func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	data, filename, err := s.app.ExportPDF(user, id)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type shareRequest struct {
	Shared bool `json:"shared"`
}

func (s *Server) handleShareDocument(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req shareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doc, err := s.app.ShareDocument(user, id, req.Shared)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req categoryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		cat, err := s.app.CreateCategory(user, req.Name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, cat)
	case http.MethodGet:
		cats, err := s.app.ListCategories(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": cats,
			"count": len(cats),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCategoryByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/categories/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteCategory(user, id); err != nil {
		switch {
		case errors.Is(err, app.ErrCategoryNotFound):
			notFound(w, "category not found")
		case errors.Is(err, app.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.app.History(user, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

type awardRequest struct {
	Action       string `json:"action"`
	DocumentName string `json:"documentName"`
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req awardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.app.AwardAction(user, domain.ActionType(req.Action), req.DocumentName)
	if err != nil {
		if errors.Is(err, app.ErrUnknownAction) {
			writeError(w, http.StatusBadRequest, "unknown action")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSkins(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.app.ListSkins(user)})
}

type selectSkinRequest struct {
	SkinID string `json:"skinId"`
}

func (s *Server) handleSelectSkin(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req selectSkinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.SelectSkin(user, req.SkinID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSkinNotFound):
			notFound(w, "skin not found")
		case errors.Is(err, app.ErrSkinLocked):
			writeError(w, http.StatusForbidden, "skin locked")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleTeacherDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summaries, err := s.app.TeacherDashboard(r.Context(), user)
	if err != nil {
		if errors.Is(err, app.ErrForbidden) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"students": summaries,
		"count":    len(summaries),
	})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.proxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrDocumentNotFound):
		notFound(w, "document not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
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
		Code:      errorCodeForAPI(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForAPI(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "invalid credentials":
		return "AUTH_INVALID_CREDENTIALS"
	case message == "email already exists":
		return "AUTH_EMAIL_TAKEN"
	case message == "forbidden":
		return "DOC_FORBIDDEN"
	case message == "document not found":
		return "DOC_NOT_FOUND"
	case message == "category not found":
		return "CATEGORY_NOT_FOUND"
	case message == "category name required", message == "category name already used":
		return "CATEGORY_INVALID"
	case message == "skin not found":
		return "SKIN_NOT_FOUND"
	case message == "skin locked":
		return "SKIN_LOCKED"
	case message == "unknown action":
		return "XP_UNKNOWN_ACTION"
	case message == "filename required", strings.Contains(message, "file is required"):
		return "DOC_FILE_REQUIRED"
	case message == "invalid form data":
		return "DOC_INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "invalid birth date":
		return "PROFILE_INVALID_BIRTH_DATE"
	case strings.HasPrefix(message, "too many"):
		return "AUTH_RATE_LIMITED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "DOC_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusConflict:
		return "AUTH_EMAIL_TAKEN"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "AUTH_RATE_LIMITED"
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
