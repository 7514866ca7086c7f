package branchauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/branchauth/authstate"
)

// Audit event types.
const (
	AuditEventLoginSuccess      = "login_success"
	AuditEventLoginFailure      = "login_failure"
	AuditEventLogout            = "logout"
	AuditEventCheckToken        = "check_token"
	AuditEventBranchSelected    = "branch_selected"
	AuditEventBranchRejected    = "branch_rejected"
	AuditEventRequestFailure    = "request_failure"
	AuditEventIdentityBlocked   = "identity_unresolved"
	AuditEventPINSet            = "pin_set"
	AuditEventPINCleared        = "pin_cleared"
	AuditEventPINUnlockSuccess  = "pin_unlock_success"
	AuditEventPINUnlockFailure  = "pin_unlock_failure"
	AuditEventPINLockedOut      = "pin_locked_out"
	AuditEventRefDataStale      = "refdata_failure"
	auditMetadataStatus         = "status"
	auditMetadataKind           = "kind"
	auditMetadataEndpoint       = "endpoint"
	auditMetadataPreviousBranch = "previous_branch"
)

// AuditErrorCode is the stable error classification attached to failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrStorage            AuditErrorCode = "storage_unavailable"
	auditErrInvalidSession     AuditErrorCode = "invalid_session"
	auditErrIdentity           AuditErrorCode = "identity_unresolved"
	auditErrRequestFailed      AuditErrorCode = "request_failed"
	auditErrSchema             AuditErrorCode = "schema_invalid"
	auditErrBranchNotAssigned  AuditErrorCode = "branch_not_assigned"
	auditErrPINInvalid         AuditErrorCode = "pin_invalid"
	auditErrPINNotSet          AuditErrorCode = "pin_not_set"
	auditErrPINExhausted       AuditErrorCode = "pin_attempts_exhausted"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	branchID string,
	action string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	metadata = contextMetadata(ctx, metadata)
	if len(metadata) == 0 {
		metadata = nil
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		BranchID:  branchID,
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) onTransition(ctx context.Context, event string, st authstate.State) {
	if event != "check_passed" && event != "check_failed" {
		return
	}
	if st.IsAuthenticated() {
		e.metricInc(MetricCheckTokenAuthenticated)
	} else {
		e.metricInc(MetricCheckTokenUnauthenticated)
	}
	var userID string
	if st.User != nil {
		userID = string(st.User.User.ID)
	}
	e.emitAudit(ctx, AuditEventCheckToken, st.IsAuthenticated(), userID, "", "", nil, func() map[string]string {
		return map[string]string{auditMetadataStatus: st.Status.String()}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrStorage
	case errors.Is(err, ErrIdentityUnresolved):
		return auditErrIdentity
	case errors.Is(err, ErrInvalidSession):
		return auditErrInvalidSession
	case errors.Is(err, ErrRequestFailed):
		return auditErrRequestFailed
	case errors.Is(err, ErrSchemaInvalid):
		return auditErrSchema
	case errors.Is(err, ErrBranchNotAssigned):
		return auditErrBranchNotAssigned
	case errors.Is(err, ErrPINAttemptsExhausted):
		return auditErrPINExhausted
	case errors.Is(err, ErrPINInvalid):
		return auditErrPINInvalid
	case errors.Is(err, ErrPINNotSet):
		return auditErrPINNotSet
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	default:
		return auditErrInternal
	}
}
