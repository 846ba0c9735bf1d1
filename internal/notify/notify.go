// Package notify dispatches best-effort push notifications to users. The
// contract is deliberately weak: Notify is fire-and-forget, gives no delivery
// guarantee, and must never fail the write that triggered it. Dispatch
// failures are logged and swallowed.
//
// The production implementation hands payloads to an asynq queue; actual
// delivery belongs to the surrounding application's worker fleet.
package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// TypePush is the asynq task type for outbound push notifications.
const TypePush = "notify:push"

// Dispatcher sends a notification to a single user.
type Dispatcher interface {
	// Notify is best-effort: implementations swallow failures.
	Notify(ctx context.Context, userID, title, body string, meta map[string]string)
}

// PushPayload is the queued task body for TypePush.
type PushPayload struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// AsynqDispatcher enqueues push tasks on an asynq client.
type AsynqDispatcher struct {
	Client *asynq.Client
}

// NewAsynqDispatcher constructs a dispatcher bound to the given client.
func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{Client: client}
}

// Notify enqueues a TypePush task. Marshal or enqueue errors are logged at
// warn level and dropped; the triggering operation has already succeeded.
func (d *AsynqDispatcher) Notify(ctx context.Context, userID, title, body string, meta map[string]string) {
	payload, err := json.Marshal(PushPayload{UserID: userID, Title: title, Body: body, Meta: meta})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("notify: marshal failed")
		return
	}
	task := asynq.NewTask(TypePush, payload, asynq.MaxRetry(3))
	if _, err := d.Client.EnqueueContext(ctx, task); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("notify: enqueue failed")
	}
}

// Nop is a Dispatcher that does nothing. Used in tests and when no queue is
// configured.
type Nop struct{}

// Notify discards the notification.
func (Nop) Notify(context.Context, string, string, string, map[string]string) {}
