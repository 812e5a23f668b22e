package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wardwatch/wardwatch-core/internal/bracelet"
	"github.com/wardwatch/wardwatch-core/internal/device"
)

// handleListDevices returns every bracelet in display order along with
// the live connection count.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":   devices,
		"count":     len(devices),
		"connected": s.registry.ConnectedCount(),
	})
}

// handleDeviceStats returns per-status counts for the dashboard header.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Snapshot()

	stats := map[string]int{
		"total":        len(devices),
		"ready":        0,
		"connected":    0,
		"emergency":    0,
		"disconnected": 0,
	}
	for _, d := range devices {
		switch d.Status {
		case device.StatusReady:
			stats["ready"]++
		case device.StatusConnected:
			stats["connected"]++
		case device.StatusEmergency:
			stats["emergency"]++
		case device.StatusDisconnected:
			stats["disconnected"]++
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleGetDevice returns a single device. The identifier may be a
// device ID, IP address, or MAC address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Find(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// assignmentRequest is the body of a PATCH /devices/{id} request.
type assignmentRequest struct {
	PatientName string `json:"patient_name"`
	RoomNumber  string `json:"room_number"`
	BedNumber   string `json:"bed_number"`
}

// handleUpdateAssignment overwrites the clinical fields of a device and
// pushes the new assignment to the bracelet if it is connected.
func (s *Server) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.Find(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	updated, err := s.registry.UpdateAssignment(r.Context(), dev.IPAddress, req.PatientName, req.RoomNumber, req.BedNumber)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to update assignment")
		return
	}

	s.pushAssignment(updated)

	writeJSON(w, http.StatusOK, updated)
}

// handleClearPatientData wipes the clinical assignment of a device,
// returning it to READY, and tells the bracelet to blank its display.
func (s *Server) handleClearPatientData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Find(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	if err := s.registry.ClearPatientData(r.Context(), dev.IPAddress); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to clear patient data")
		return
	}

	if s.bracelets != nil {
		if err := s.bracelets.SendPush(dev.IPAddress, bracelet.PushDataClear, nil); err != nil {
			s.logger.Debug("data clear push skipped", "ip", dev.IPAddress, "error", err)
		}
	}

	cleared, err := s.registry.Get(dev.IPAddress)
	if err != nil {
		writeInternalError(w, "failed to clear patient data")
		return
	}
	writeJSON(w, http.StatusOK, cleared)
}

// pushAssignment forwards a clinical assignment to the bracelet so its
// display matches what the ward sees. Offline devices pick the data up
// on their next registration.
func (s *Server) pushAssignment(d *device.Device) {
	if s.bracelets == nil {
		return
	}

	err := s.bracelets.SendPush(d.IPAddress, bracelet.PushDataUpdate, map[string]string{
		"patient": d.PatientName,
		"room":    d.RoomNumber,
		"bed":     d.BedNumber,
	})
	if err != nil {
		s.logger.Debug("assignment push skipped", "ip", d.IPAddress, "error", err)
	}
}
