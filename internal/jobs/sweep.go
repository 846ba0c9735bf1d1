// Package jobs wires background work onto asynq. The only scheduled job is
// the daily session expiry sweep, registered at 15:00 UTC — midnight in the
// fixed UTC+9 matching zone — so sessions expire exactly at the local day
// boundary. asynq's scheduler guarantees single-flight execution per
// trigger, and the sweep itself is idempotent, so an operator-triggered
// extra run is harmless.
package jobs

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/tomoapp/go-match-backend/internal/http/middleware"
	"github.com/tomoapp/go-match-backend/internal/services"
)

// TypeExpireSweep is the asynq task type for the daily expiry sweep.
const TypeExpireSweep = "session:expire_sweep"

// SweepCron fires at 15:00 UTC, i.e. 00:00 in UTC+9.
const SweepCron = "0 15 * * *"

// SweepHandler adapts SessionService.ExpireStale to asynq's Handler
// interface. The task carries no payload.
type SweepHandler struct {
	Sessions *services.SessionService
}

// NewSweepHandler constructs a SweepHandler.
func NewSweepHandler(sessions *services.SessionService) *SweepHandler {
	return &SweepHandler{Sessions: sessions}
}

// ProcessTask runs the sweep. Row-level failures are already absorbed inside
// ExpireStale; an error here means the scan itself failed, which asynq will
// retry.
func (h *SweepHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	flipped, err := h.Sessions.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("expire sweep failed")
		return err
	}
	middleware.CountSessionsExpired(int(flipped))
	log.Info().Int64("flipped", flipped).Msg("expire sweep finished")
	return nil
}

// NewMux returns an asynq ServeMux with every background handler registered.
// Notification delivery (notify:push) belongs to the wider application's
// worker fleet and is intentionally not handled here.
func NewMux(sessions *services.SessionService) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeExpireSweep, NewSweepHandler(sessions))
	return mux
}

// RegisterSchedules attaches the daily sweep to the scheduler. The returned
// entry ID is logged for operational visibility.
func RegisterSchedules(scheduler *asynq.Scheduler) error {
	entryID, err := scheduler.Register(SweepCron, asynq.NewTask(TypeExpireSweep, nil))
	if err != nil {
		return err
	}
	log.Info().Str("entry_id", entryID).Str("cron", SweepCron).Msg("registered expire sweep")
	return nil
}
