package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/martinsuchenak/netpulse/internal/model"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	p := s.prefix

	mux.HandleFunc("POST "+p+"/auth/token", s.issueToken)
	mux.HandleFunc("GET "+p+"/users/me", s.requireAuth(s.currentUser))

	mux.HandleFunc("GET "+p+"/devices/{$}", s.requireAuth(s.listDevices))
	mux.HandleFunc("GET "+p+"/devices", s.requireAuth(s.listDevices))
	mux.HandleFunc("POST "+p+"/devices/{$}", s.requireAuth(s.createDevice))
	mux.HandleFunc("POST "+p+"/devices", s.requireAuth(s.createDevice))
	mux.HandleFunc("GET "+p+"/devices/{id}", s.requireAuth(s.getDevice))
	mux.HandleFunc("PUT "+p+"/devices/{id}", s.requireAuth(s.updateDevice))
	mux.HandleFunc("DELETE "+p+"/devices/{id}", s.requireAuth(s.deleteDevice))
	mux.HandleFunc("GET "+p+"/devices/{id}/status", s.requireAuth(s.deviceStatus))

	mux.Handle("GET "+s.wsPath, s.hub)
}

// issueToken handles the OAuth2 password form login.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	email := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	if _, err := s.auth.authenticate(email, password); err != nil {
		s.logger.Warn("Login rejected", "username", email)
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := s.auth.issue(email)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.logger.Info("Issued token", "username", email)
	writeJSON(w, http.StatusOK, model.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.devices.list()
	s.logger.Debug("Listed devices", "count", len(devices))
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.get(r.PathValue("id"))
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var in model.DeviceCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.logger.Warn("Invalid device creation request body", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	d := s.devices.create(in)
	s.logger.Info("Device created", "id", d.ID, "name", d.Name)
	s.hub.BroadcastDevices(d)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var in model.DeviceUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.logger.Warn("Invalid device update request body", "error", err, "id", id)
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	d, err := s.devices.update(id, in)
	if err != nil {
		s.deviceError(w, err)
		return
	}
	s.logger.Info("Device updated", "id", id)
	s.hub.BroadcastDevices(d)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.devices.delete(id); err != nil {
		s.deviceError(w, err)
		return
	}
	s.logger.Info("Device deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Device deleted successfully"})
}

func (s *Server) deviceStatus(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.get(r.PathValue("id"))
	if err != nil {
		s.deviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DeviceStatusReport{
		DeviceID:  d.ID,
		Status:    d.Status,
		LastSeen:  d.LastSeen,
		IPAddress: d.IPAddress,
	})
}

func (s *Server) deviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("Internal server error", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, model.ErrorBody{Detail: detail})
}
