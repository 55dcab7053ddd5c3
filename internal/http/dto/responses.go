package dto

import "github.com/chainbid/relay/internal/models"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

type LLMAcceptedResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"jobId"`
}

type AuditResponse struct {
	Audit []models.AuditEntry `json:"audit"`
	Jobs  []models.Job        `json:"jobs"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	ContractAddress string `json:"contract_address,omitempty"`
	DefaultTokenID  int64  `json:"default_token_id,omitempty"`
}
