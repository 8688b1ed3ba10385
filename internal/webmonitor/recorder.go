package webmonitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
)

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, errRecordingDisabled, http.StatusNotFound)
		return
	}
	if err := s.recorder.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrAlreadyRecording) {
			status = http.StatusConflict
		}
		writeError(w, err, status)
		return
	}
	s.setRecordingGauge(1)
	s.status.Notify()

	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       s.recorder.Path(),
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, errRecordingDisabled, http.StatusNotFound)
		return
	}
	if err := s.recorder.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrNotRecording) {
			status = http.StatusBadRequest
		}
		writeError(w, err, status)
		return
	}
	s.setRecordingGauge(0)
	s.status.Notify()

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       s.recorder.Path(),
		"stats":      s.recorder.Status(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, capture.RecordingStatus{})
		return
	}
	writeJSON(w, s.recorder.Status())
}

func (s *Server) setRecordingGauge(v uint64) {
	if s.metrics != nil {
		s.metrics.RecordingActive.Store(v)
	}
}
