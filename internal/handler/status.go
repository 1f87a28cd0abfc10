package handler

import (
	"net/http"

	"plantwatch/internal/config"
	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/service"
	"plantwatch/internal/service/status"
	"plantwatch/internal/service/submission"
)

// LoopReporter exposes the acquisition loop state.
type LoopReporter interface {
	State() service.LoopState
}

// SinkLister lists the sinks that are configured and enabled.
type SinkLister interface {
	Enabled() []submission.Sink
}

// StatusHandler reports the latest classification and the last outcome of every sink.
func StatusHandler(cfg *config.Config, store *status.Store, loop LoopReporter, sinks SinkLister, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := store.Snapshot()

		resp := dto.StatusResponse{
			DeviceID:     cfg.DeviceID(),
			Status:       snap.Summary.Status,
			Confidence:   snap.Summary.Confidence,
			ObjectCount:  snap.Summary.ObjectCount,
			AvgFPS:       snap.FPS,
			Sinks:        make(map[string]dto.SinkStatus),
			LoopState:    loop.State().String(),
			SendInterval: cfg.Loop.SendInterval.Seconds(),
			Endpoint:     cfg.Primary.Endpoint,
		}
		if snap.Ready() {
			ts := unixSeconds(snap.Timestamp)
			resp.LastFrameTs = &ts
		}
		if snap.LastError != "" {
			resp.LastError = &snap.LastError
		}

		for _, sink := range sinks.Enabled() {
			resp.Sinks[sink.Name()] = dto.SinkStatus{Enabled: true}
		}
		for name, outcome := range snap.Sinks {
			st := resp.Sinks[name]
			st.Response = outcome.Response
			st.Error = outcome.Error
			if !outcome.At.IsZero() {
				at := unixSeconds(outcome.At)
				st.At = &at
			}
			resp.Sinks[name] = st
		}

		if outcome, ok := snap.Sinks[submission.PrimarySinkName]; ok {
			resp.LastSendResponse = outcome.Response
			resp.LastSendError = errorPtr(outcome.Error)
		}
		if outcome, ok := snap.Sinks[submission.StorageSinkName]; ok {
			resp.SupabaseLastResponse = outcome.Response
			resp.SupabaseLastError = errorPtr(outcome.Error)
		}

		writeJSON(w, logger, http.StatusOK, resp)
	}
}

func errorPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
