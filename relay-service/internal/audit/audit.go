package audit

import (
	"context"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
)

// Audit actions for relay-service.
const (
	ActionSignup           = "user.signup"
	ActionLogin            = "user.login"
	ActionLoginFailed      = "user.login_failed"
	ActionRecoveryVerified = "user.recovery_verified"
	ActionRecoveryFailed   = "user.recovery_failed"
	ActionResetPassword    = "user.reset_password"

	ActionRequestCreate   = "request.create"
	ActionRequestAccept   = "request.accept"
	ActionRequestReject   = "request.reject"
	ActionRequestStatus   = "request.update_status"
	ActionConnect         = "conn.open"
	ActionConnectRejected = "conn.rejected"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldTarget = "target"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, username string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the other party of an action.
func LogWithTarget(ctx context.Context, action string, username string, target string, detail string, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Str(FieldTarget, target)
	if detail != "" {
		evt = evt.Str(FieldDetail, detail)
	}
	evt.Msg(msg)
}
