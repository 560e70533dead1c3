package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"markestedt/rebind/binding"
	"markestedt/rebind/capture"
	"markestedt/rebind/keys"
	"markestedt/rebind/platform"
	"markestedt/rebind/session"
	"markestedt/rebind/storage"
)

// bindingView adds display strings to a stored binding.
type bindingView struct {
	storage.Binding
	Display        string `json:"display"`
	DefaultDisplay string `json:"default_display"`
}

func (s *Server) view(b storage.Binding) bindingView {
	os := s.GetConfig().OSType()
	return bindingView{
		Binding:        b,
		Display:        keys.Display(b.CurrentBinding, os),
		DefaultDisplay: keys.Display(b.DefaultBinding, os),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps domain errors to an HTTP status and a short code.
func errorStatus(err error) (int, string) {
	var applyErr *binding.ApplyError
	var revertErr *binding.RevertError
	var hookErr *session.HookError

	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, capture.ErrStopped):
		return http.StatusConflict, "cancelled"
	case errors.As(err, &revertErr):
		return http.StatusInternalServerError, "inconsistent"
	case errors.As(err, &applyErr):
		return http.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, platform.ErrUnsupported), errors.Is(err, platform.ErrCaptureBusy), errors.As(err, &hookErr):
		return http.StatusServiceUnavailable, "hook_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, ErrorMessage{Message: err.Error(), Code: code})
}

// handleListBindings returns every binding
func (s *Server) handleListBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.db.ListBindings()
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]bindingView, 0, len(bindings))
	for _, b := range bindings {
		views = append(views, s.view(b))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	b, err := s.db.GetBinding(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(*b))
}

// handleRecord starts a recording session for the binding
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.ctrl.Reset(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.db.GetBinding(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(*b))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Cancel(session.TriggerExplicit); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleStatus returns the controller state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.GetConfig()
	writeJSON(w, http.StatusOK, struct {
		session.Status
		OS       keys.OSType `json:"os"`
		Keyboard string      `json:"keyboard_implementation"`
	}{
		Status:   s.ctrl.Status(),
		OS:       cfg.OSType(),
		Keyboard: cfg.Mode().String(),
	})
}

// handleStats returns session statistics for the specified time range
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	daysStr := r.URL.Query().Get("days")
	days := 7 // default to 7 days
	if daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 {
			days = d
		}
	}

	outcomes, err := s.db.GetOutcomeStats(days)
	if err != nil {
		slog.Error("Failed to get outcome stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	shortcuts, err := s.db.GetShortcutStats(days)
	if err != nil {
		slog.Error("Failed to get shortcut stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":      days,
		"outcomes":  outcomes,
		"shortcuts": shortcuts,
	})
}

// handleGetHistory returns paginated session history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	limit := 50 // default
	offset := 0

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	sessions, err := s.db.GetSessions(limit, offset)
	if err != nil {
		slog.Error("Failed to get sessions", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []storage.Session{}
	}

	total, err := s.db.GetSessionCount()
	if err != nil {
		slog.Error("Failed to get session count", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleDeleteHistory deletes a session row by ID
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	if err := s.db.DeleteSession(id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleConfig handles GET and PUT requests for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetConfig(w, r)
	case http.MethodPut:
		s.handlePutConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type configView struct {
	KeyboardImplementation string  `json:"keyboard_implementation"`
	OS                     string  `json:"os"`
	WebPort                int     `json:"web_port"`
	FeedbackEnabled        bool    `json:"feedback_enabled"`
	FeedbackVolume         float64 `json:"feedback_volume"`
	LogLevel               string  `json:"log_level"`
}

// handleGetConfig returns the current configuration
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.GetConfig()
	writeJSON(w, http.StatusOK, configView{
		KeyboardImplementation: cfg.Mode().String(),
		OS:                     string(cfg.OSType()),
		WebPort:                cfg.Web.Port,
		FeedbackEnabled:        cfg.Feedback.Enabled,
		FeedbackVolume:         cfg.Feedback.Volume,
		LogLevel:               cfg.Log.Level,
	})
}

// handlePutConfig updates the configuration
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyboardImplementation *string  `json:"keyboard_implementation"`
		OS                     *string  `json:"os"`
		WebPort                *int     `json:"web_port"`
		FeedbackEnabled        *bool    `json:"feedback_enabled"`
		FeedbackVolume         *float64 `json:"feedback_volume"`
		LogLevel               *string  `json:"log_level"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Work on a copy so a rejected update leaves the live config intact.
	cfg := *s.GetConfig()

	if req.KeyboardImplementation != nil {
		cfg.Keyboard.Implementation = *req.KeyboardImplementation
	}
	if req.OS != nil {
		cfg.Keyboard.OS = *req.OS
	}
	if req.WebPort != nil {
		cfg.Web.Port = *req.WebPort
	}
	if req.FeedbackEnabled != nil {
		cfg.Feedback.Enabled = *req.FeedbackEnabled
	}
	if req.FeedbackVolume != nil {
		cfg.Feedback.Volume = *req.FeedbackVolume
	}
	if req.LogLevel != nil {
		cfg.Log.Level = *req.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorMessage{Message: err.Error(), Code: "invalid_config"})
		return
	}

	var err error
	if s.configPath != "" {
		err = cfg.SaveTo(s.configPath)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		slog.Error("Failed to save config", "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	s.UpdateConfig(&cfg)
	if s.onConfig != nil {
		s.onConfig(&cfg)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

var _ Controller = (*session.Controller)(nil)
var _ Store = (*storage.DB)(nil)
