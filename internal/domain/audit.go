package domain

import (
	"encoding/json"
	"time"
)

// Audit action taxonomy. Values land verbatim in the audit_log table and in
// security event subjects, so they are stable identifiers.
const (
	AuditRegister        = "REGISTER"
	AuditLoginFailed     = "LOGIN_FAILED"
	AuditLoginSuccess    = "LOGIN_SUCCESS"
	AuditMFAFailed       = "MFA_FAILED"
	AuditPasswordChanged = "PASSWORD_CHANGED"
	AuditUserCreated     = "USER_CREATED"
	AuditUserDeleted     = "USER_DELETED"
	AuditPHIAccess       = "PHI_ACCESS"
	AuditViewAllPatients = "VIEW_ALL_PATIENTS"
	AuditDiagnosisWrite  = "DIAGNOSIS_CREATED"
	AuditMedicationWrite = "MEDICATION_RECORDED"
)

// AuditEntry is append-only: rows are inserted and read, never updated or
// deleted by this service. ActorID is nil for events with no authenticated
// principal (e.g. a failed login for an unknown username).
type AuditEntry struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	ActorID   *int64          `json:"actor_id"`
	ActorName string          `json:"actor_name,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
