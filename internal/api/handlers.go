package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/usagereporter/internal/pipeline"
	"github.com/goodtune/usagereporter/internal/scheduler"
	"github.com/goodtune/usagereporter/internal/settings"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/goodtune/usagereporter/internal/usage"
	"github.com/goodtune/usagereporter/internal/webhook"
	"github.com/rs/zerolog"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	outcome, err := s.deps.Outcomes.Current(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read send outcome")
		writeError(w, http.StatusInternalServerError, "Failed to read send outcome")
		return
	}

	current, err := s.deps.Settings.Read(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read settings")
		writeError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}

	resp := StatusResponse{
		Outcome:           outcome,
		SendEnabled:       current.SendEnabled,
		WebhookConfigured: current.WebhookConfigured(),
		SendTime:          formatSendTime(current),
	}

	next, ok, err := s.deps.Schedule.NextFire(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read next fire time")
	} else if ok {
		resp.NextFire = &next
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Reporter.Run(r.Context(), pipeline.Manual)
	writeJSON(w, resultStatusCode(result), result)
}

func (s *Server) handleSendTest(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Reporter.SendTest(r.Context())
	writeJSON(w, resultStatusCode(result), result)
}

func (s *Server) handleUsageToday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	preview, err := s.deps.Reporter.Preview(ctx)
	if err != nil {
		if errors.Is(err, usage.ErrSourceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to build usage preview")
		writeError(w, http.StatusInternalServerError, "Failed to read usage")
		return
	}

	entries := make([]UsageEntry, 0, len(preview.Entries))
	for _, e := range preview.Entries {
		entries = append(entries, UsageEntry{
			ApplicationID:  e.ApplicationID,
			Name:           s.deps.Catalog.Resolve(e.ApplicationID),
			DurationMillis: e.DurationMillis,
		})
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Start:    preview.Start,
		End:      preview.End,
		Entries:  entries,
		Excluded: preview.Excluded,
		Message:  preview.Message,
	})
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, err := s.deps.Settings.Read(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to read settings")
		writeError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}

	list := s.deps.Catalog.List()
	resp := make([]AppResponse, 0, len(list))
	for _, app := range list {
		resp = append(resp, AppResponse{
			ID:       app.ID,
			Name:     s.deps.Catalog.Resolve(app.ID),
			Excluded: current.IsExcluded(app.ID),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ApplicationID == "" {
		writeError(w, http.StatusBadRequest, "application_id is required")
		return
	}

	if err := s.deps.Activity.RecordActivity(r.Context(), req.ApplicationID); err != nil {
		if errors.Is(err, usage.ErrSourceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, err := s.deps.Settings.Read(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to read settings")
		writeError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse(current))
}

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.deps.Settings.SetDestinationURL(r.Context(), req.URL)
	s.writeSettingsResult(w, r, updated, err)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Request body must contain enabled")
		return
	}

	updated, err := s.deps.Settings.SetSendEnabled(r.Context(), *req.Enabled)
	s.writeSettingsResult(w, r, updated, err)
}

func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var req TimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hour, minute, err := settings.ParseSendTime(req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.deps.Settings.SetSendTime(r.Context(), hour, minute)
	s.writeSettingsResult(w, r, updated, err)
}

func (s *Server) handleSetExclusions(w http.ResponseWriter, r *http.Request) {
	var req ExclusionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.deps.Settings.SetExcluded(r.Context(), req.ApplicationIDs)
	s.writeSettingsResult(w, r, updated, err)
}

func (s *Server) handleAddExclusion(w http.ResponseWriter, r *http.Request) {
	updated, err := s.deps.Settings.AddExcluded(r.Context(), chi.URLParam(r, "id"))
	s.writeSettingsResult(w, r, updated, err)
}

func (s *Server) handleRemoveExclusion(w http.ResponseWriter, r *http.Request) {
	updated, err := s.deps.Settings.RemoveExcluded(r.Context(), chi.URLParam(r, "id"))
	s.writeSettingsResult(w, r, updated, err)
}

// writeSettingsResult maps a settings write to a response. A failed
// reschedule still persisted the change, so it is reported as 503 with the
// message only.
func (s *Server) writeSettingsResult(w http.ResponseWriter, r *http.Request, updated storage.ReportSettings, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, settingsResponse(updated))
	case errors.Is(err, webhook.ErrInvalidDestination), errors.Is(err, settings.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduler.ErrSchedulerUnavailable):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Settings saved but the schedule was not updated")
		writeError(w, http.StatusServiceUnavailable, "Settings saved but the schedule was not updated: "+err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to update settings")
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
	}
}

func resultStatusCode(result pipeline.Result) int {
	switch result.Status {
	case pipeline.StatusSent, pipeline.StatusSkipped:
		return http.StatusOK
	case pipeline.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		if errors.Is(result.Err, webhook.ErrInvalidDestination) {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
}

func formatSendTime(s storage.ReportSettings) string {
	return fmt.Sprintf("%02d:%02d", s.SendHour, s.SendMinute)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
