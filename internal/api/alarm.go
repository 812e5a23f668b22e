package api

import (
	"net/http"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
)

// handleGetAlarm returns the ward alarm state and, when active, the
// alarm that owns it.
func (s *Server) handleGetAlarm(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"state": s.alarms.State(),
	}
	if current, ok := s.alarms.Current(); ok {
		resp["alarm"] = current
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTestAlarm activates the ward alarm from the dashboard. If the
// alarm is already active the existing activation is returned and no
// new one starts.
func (s *Server) handleTestAlarm(w http.ResponseWriter, _ *http.Request) {
	a, started := s.alarms.Activate(alarm.Trigger{Source: "manual"})

	s.logger.Info("manual alarm test requested", "started", started, "alarm_id", a.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"started": started,
		"alarm":   a,
	})
}

// handleStopAlarm deactivates the ward alarm and clears every device
// emergency. Stopping an idle alarm is a no-op.
func (s *Server) handleStopAlarm(w http.ResponseWriter, r *http.Request) {
	a, stopped := s.alarms.Deactivate(r.Context())

	resp := map[string]any{"stopped": stopped}
	if stopped {
		resp["alarm"] = a
	}
	writeJSON(w, http.StatusOK, resp)
}
