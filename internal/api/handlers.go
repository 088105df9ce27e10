// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/dispatch"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
)

const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrConfiguration, err)
	}
	return nil
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req dispatch.StreamRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.StartStream(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	s.svc.StopStream(r.Context(), chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req dispatch.ScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.svc.StartScan(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	s.svc.StopScan(r.Context(), chi.URLParam(r, "deviceID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Devices())
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.svc.Sessions()
	if sessions == nil {
		sessions = []model.StreamSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type scanStatusResponse struct {
	Scanning bool `json:"scanning"`
	scan.Status
}

func (s *Server) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.svc.ScanStatus()
	writeJSON(w, http.StatusOK, scanStatusResponse{Scanning: st.State == scan.StateScanning, Status: st})
}
