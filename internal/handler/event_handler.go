package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/its333/NoStressPlanner-sub000/internal/apperr"
	"github.com/its333/NoStressPlanner-sub000/internal/identity"
	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/models"
	"github.com/its333/NoStressPlanner-sub000/internal/service"
)

const (
	sessionTokenHeader = "X-Session-Token"
	personSlugHeader   = "X-Person-Slug"
	sessionCookieName  = "nsp_session"
	personCookieName   = "nsp_person"
)

// EventHandler is the JSON surface over the scheduling core. Identity rides
// on headers and cookies, never on the URL, so event links stay shareable.
type EventHandler struct {
	service   service.EventService
	log       *logger.Logger
	validator *RequestValidator
}

func NewEventHandler(svc service.EventService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		service:   svc,
		log:       log,
		validator: NewRequestValidator(),
	}
}

// Register wires the event routes onto mux.
func (h *EventHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/events/", h.route)
	mux.HandleFunc("/health", h.Health)
}

// route dispatches /api/events/{token} and /api/events/{token}/{action}.
func (h *EventHandler) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/events/")
	token, action, _ := strings.Cut(path, "/")
	if token == "" {
		writeError(w, http.StatusNotFound, "event token required")
		return
	}

	switch action {
	case "":
		h.GetEvent(w, r, token)
	case "vote":
		h.Vote(w, r, token)
	case "days":
		h.SaveDays(w, r, token)
	case "join":
		h.Join(w, r, token)
	case "leave":
		h.Leave(w, r, token)
	case "switch-name":
		h.SwitchName(w, r, token)
	case "phase":
		h.Phase(w, r, token)
	case "final-date":
		h.FinalDate(w, r, token)
	case "results-visibility":
		h.ResultsVisibility(w, r, token)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// credentialsFromRequest gathers the optional identity signals: a bearer
// token for the account system, the event session token from a header or
// cookie, and the previously selected name from a header or cookie.
func credentialsFromRequest(r *http.Request) identity.Credentials {
	creds := identity.Credentials{}

	if header := r.Header.Get("Authorization"); header != "" {
		creds.AuthToken = strings.TrimPrefix(header, "Bearer ")
	}

	if value := r.Header.Get(sessionTokenHeader); value != "" {
		creds.SessionToken = value
	} else if cookie, err := r.Cookie(sessionCookieName); err == nil {
		creds.SessionToken = cookie.Value
	}

	if value := r.Header.Get(personSlugHeader); value != "" {
		creds.PreferredSlug = value
	} else if cookie, err := r.Cookie(personCookieName); err == nil {
		creds.PreferredSlug = cookie.Value
	}

	return creds
}

func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	view, err := h.service.GetEventView(r.Context(), token, credentialsFromRequest(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

type voteRequest struct {
	In *bool `json:"in" validate:"required"`
}

func (h *EventHandler) Vote(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req voteRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	view, err := h.service.ApplyVote(r.Context(), token, credentialsFromRequest(r), *req.In)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

type saveDaysRequest struct {
	Days      []string `json:"days" validate:"dive,daykey"`
	Anonymous bool     `json:"anonymous"`
}

func (h *EventHandler) SaveDays(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req saveDaysRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	days := make([]time.Time, 0, len(req.Days))
	for _, value := range req.Days {
		day, err := time.Parse(models.DayKeyFormat, value)
		if err != nil {
			writeValidationError(w, err)
			return
		}
		days = append(days, day)
	}

	view, err := h.service.ApplyBlocks(r.Context(), token, credentialsFromRequest(r), days, req.Anonymous)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

type joinRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

func (h *EventHandler) Join(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req joinRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	sessionToken, view, err := h.service.Join(r.Context(), token, credentialsFromRequest(r), req.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookies(w, sessionToken, req.Name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":          view,
		"session_token": sessionToken,
	})
}

func (h *EventHandler) Leave(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	view, err := h.service.Leave(r.Context(), token, credentialsFromRequest(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

func (h *EventHandler) SwitchName(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req joinRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	sessionToken, view, err := h.service.SwitchName(r.Context(), token, credentialsFromRequest(r), req.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookies(w, sessionToken, req.Name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":          view,
		"session_token": sessionToken,
	})
}

type phaseRequest struct {
	Phase string `json:"phase" validate:"required"`
}

func (h *EventHandler) Phase(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req phaseRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	view, err := h.service.TransitionPhase(r.Context(), token, credentialsFromRequest(r), req.Phase)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

type finalDateRequest struct {
	Day *string `json:"day" validate:"omitempty,daykey"`
}

func (h *EventHandler) FinalDate(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req finalDateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	var day *time.Time
	if req.Day != nil {
		parsed, err := time.Parse(models.DayKeyFormat, *req.Day)
		if err != nil {
			writeValidationError(w, err)
			return
		}
		day = &parsed
	}

	view, err := h.service.SetFinalDate(r.Context(), token, credentialsFromRequest(r), day)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

type resultsVisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

func (h *EventHandler) ResultsVisibility(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req resultsVisibilityRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	view, err := h.service.ToggleResultsVisibility(r.Context(), token, credentialsFromRequest(r), *req.Visible)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": view})
}

// Health reports liveness.
func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "planner-core",
	})
}

// writeServiceError maps classified errors onto HTTP statuses. Internal
// detail is logged and replaced by a generic message.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.log.WithError(err).Error("request failed")
	}

	writeJSON(w, statusForKind(kind), map[string]string{
		"error": apperr.Message(err),
		"kind":  string(kind),
	})
}

func (h *EventHandler) setSessionCookies(w http.ResponseWriter, sessionToken, slug string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     personCookieName,
		Value:    slug,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *EventHandler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: personCookieName, Value: "", Path: "/", MaxAge: -1})
}
