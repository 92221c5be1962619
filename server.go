package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"i4.energy/across/gsmppp/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /modem/start", s.handleStart)
	mux.HandleFunc("POST /modem/stop", s.handleStop)
	mux.HandleFunc("POST /modem/restart", s.handleRestart)
	mux.HandleFunc("POST /modem/resume", s.handleResume)
	mux.HandleFunc("PUT /modem/apn", s.handleAPN)
	mux.HandleFunc("PUT /modem/volume", s.handleVolume)
	mux.HandleFunc("GET /modem/info", s.handleInfo)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.Start(); err != nil {
		s.Logger.Error("Failed to start modem", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("Modem bring-up scheduled")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.Stop(r.Context()); err != nil {
		s.Logger.Error("Failed to stop modem", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("Modem stopped")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.Restart(r.Context()); err != nil {
		s.Logger.Error("Failed to restart modem", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("Modem restart scheduled")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.Resume(r.Context()); err != nil {
		s.Logger.Error("Failed to resume modem", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("Modem resumed")
	w.WriteHeader(http.StatusOK)
}

// handleAPN fixes the access point name used for the PDP context
func (s *Server) handleAPN(w http.ResponseWriter, r *http.Request) {
	type APNRequest struct {
		APN string `json:"apn"`
	}

	var req APNRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.APN == "" {
		s.sendError(w, "'apn' field is required", http.StatusBadRequest)
		return
	}

	if err := s.Modem.SetAPN(req.APN); err != nil {
		s.Logger.Error("Failed to set APN", "error", err, "apn", req.APN)
		s.sendError(w, err.Error(), http.StatusConflict)
		return
	}

	s.Logger.Info("APN configured", "apn", req.APN)
	w.WriteHeader(http.StatusOK)
}

// handleVolume sets the call audio level rendered into the setup batch
func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	type VolumeRequest struct {
		Level int `json:"level"`
	}

	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Modem.SetVolume(req.Level); err != nil {
		s.Logger.Error("Failed to set volume", "error", err, "level", req.Level)
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.Logger.Info("Volume configured", "level", req.Level)
	w.WriteHeader(http.StatusOK)
}

// handleInfo reports the modem identity and connection state
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	type InfoResponse struct {
		State        string `json:"state"`
		Connected    bool   `json:"connected"`
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
		Revision     string `json:"revision"`
		IMEI         string `json:"imei"`
		Operator     string `json:"operator"`
		APN          string `json:"apn"`
	}

	info := s.Modem.Info()
	resp := InfoResponse{
		State:        s.Modem.State().String(),
		Connected:    s.Modem.Connected(),
		Manufacturer: info.Manufacturer(),
		Model:        info.Model(),
		Revision:     info.Revision(),
		IMEI:         info.IMEI(),
		Operator:     info.MCCMNC(),
		APN:          info.APN(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
