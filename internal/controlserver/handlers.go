package controlserver

import (
	"encoding/json"
	"net/http"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
)

type startRequest struct {
	Password string `json:"password,omitempty"`
}

type startResponse struct {
	GroupIDs []string `json:"groupIds"`
}

type statusGroup struct {
	ID      string   `json:"id"`
	State   string   `json:"state"`
	Targets []string `json:"targets"`
}

type statusResponse struct {
	Groups []statusGroup `json:"groups"`
}

// handleStart loads the named profile, optionally password-protected, and
// starts every one of its output groups via the fanout coordinator.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "profile name is required")
		return
	}

	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	profile, err := s.cfg.Repository.Load(name, req.Password)
	if err != nil {
		writeCorebusError(w, err)
		return
	}

	inputURL, err := s.cfg.InputURL(name)
	if err != nil {
		writeCorebusError(w, err)
		return
	}

	groupIDs, err := s.cfg.Fanout.StartAll(r.Context(), profile.OutputGroups, inputURL)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, startResponse{GroupIDs: groupIDs})
}

// handleStop stops every active output group.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.cfg.Fanout.StopAll()
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus reports every active group's lifecycle state and targets.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active := s.cfg.Fanout.Status()
	resp := statusResponse{Groups: make([]statusGroup, 0, len(active))}
	for _, g := range active {
		resp.Groups = append(resp.Groups, statusGroup{
			ID:      g.ID,
			State:   string(g.State),
			Targets: g.Targets,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRotateKeys rotates every sealed stream key across the profile
// store under a freshly generated machine key.
func (s *Server) handleRotateKeys(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.cfg.Repository.RotateStreamKeys(); err != nil {
		writeCorebusError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeCorebusError maps a corebus.Kind to the HTTP status the control
// surface's contract specifies, falling back to 500 for unclassified
// errors.
func writeCorebusError(w http.ResponseWriter, err error) {
	kind, ok := corebus.KindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch kind {
	case corebus.KindInvalidArgument:
		writeError(w, http.StatusBadRequest, err.Error())
	case corebus.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case corebus.KindAuthFailed:
		writeError(w, http.StatusUnauthorized, err.Error())
	case corebus.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case corebus.KindTimeout:
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
