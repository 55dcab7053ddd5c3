package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit action types recorded by the relay handlers.
const (
	AuditActionContribution = "contribution"
	AuditActionDeploy       = "deploy"
	AuditActionLayout       = "layout"
	AuditActionCheckin      = "checkin"
	AuditActionLLMRequest   = "llm_request"
	AuditActionBidSubmitted = "bid_submitted"
	AuditActionBidAccepted  = "bid_accepted"
	AuditActionBidRejected  = "bid_rejected"
	AuditActionRelease      = "milestone_released"
)

// AuditEntry records an authorized action. Entries are never consulted for
// authorization decisions; the log is a passive recorder.
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Author    string    `json:"author"` // lowercased wallet address
	Meta      any       `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
