package worker

import (
	"context"
	"time"

	"triage_server/adapter/out/messaging"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// RunHandler executes run requests read from the stream.
type RunHandler struct {
	triage     in.TriageService
	runTimeout time.Duration
	log        zerolog.Logger
}

func NewRunHandler(triage in.TriageService, runTimeout time.Duration, log zerolog.Logger) *RunHandler {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &RunHandler{
		triage:     triage,
		runTimeout: runTimeout,
		log:        log.With().Str("component", "run_handler").Logger(),
	}
}

// Handle runs one batch. A request that arrives while a batch is running is
// acknowledged: the running batch already covers the inbox.
func (h *RunHandler) Handle(ctx context.Context, stream string, data []byte) error {
	req, err := messaging.DecodeRunRequest(data)
	if err != nil {
		h.log.Warn().Err(err).Str("stream", stream).Msg("dropping malformed run request")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.runTimeout)
	defer cancel()

	summary, err := h.triage.Run(ctx, req.Trigger)
	if apperr.HasCode(err, apperr.CodeRunInProgress) {
		h.log.Info().Str("request_id", req.RequestID).Msg("run already in progress, request coalesced")
		return nil
	}
	if err != nil {
		return err
	}

	h.log.Info().
		Str("request_id", req.RequestID).
		Str("run_id", summary.RunID).
		Int("eligible", summary.Eligible).
		Int("failed", summary.Failed).
		Dur("queued_for", time.Since(req.RequestedAt)).
		Msg("run request handled")
	return nil
}

var _ messaging.JobHandler = (*RunHandler)(nil)
