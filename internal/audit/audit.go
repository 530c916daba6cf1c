// Package audit appends activity records for privileged and mutating
// actions. Writes are best effort: a failed append is reported to the
// operational log and never fails the operation that triggered it.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"inkwell/api/internal/store"
)

// Action taxonomy recorded in the activity log.
const (
	ActionUserRegistration  = "user_registration"
	ActionCreatePost        = "create_post"
	ActionEditPost          = "edit_post"
	ActionDeletePost        = "delete_post"
	ActionRestorePost       = "restore_post"
	ActionUpdatePermissions = "update_permissions"
	ActionToggleAdmin       = "toggle_admin_status"
	ActionSetSuperAdmin     = "set_super_admin_status"
	ActionDeleteUser        = "delete_user"
	ActionRestoreUser       = "restore_user"
	ActionSelfDeleteAccount = "self_delete_account"
)

// Sink is where entries land.
type Sink interface {
	InsertActivityLog(ctx context.Context, entry store.ActivityLogEntry) error
}

type Writer struct {
	sink Sink
	log  zerolog.Logger
}

func NewWriter(sink Sink, log zerolog.Logger) *Writer {
	return &Writer{sink: sink, log: log}
}

// Record appends one entry. It has no error return on purpose: the audit
// trail is at-most-once and must not veto the mutation it describes.
func (w *Writer) Record(ctx context.Context, actorID, actorEmail, action string, details map[string]any) {
	err := w.sink.InsertActivityLog(ctx, store.ActivityLogEntry{
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     action,
		Details:    details,
	})
	if err != nil {
		w.log.Error().
			Err(err).
			Str("action", action).
			Str("actor_email", actorEmail).
			Msg("audit write failed")
	}
}
