package dto

// SignedRequest is the envelope every privileged action arrives in. The
// payload is the exact string the wallet signed.
type SignedRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

type LLMRelayRequest struct {
	SignedRequest
	Model string `json:"model,omitempty"`
}

// Signed payload bodies. The challenge field is consumed by the
// authorizer; the rest is handler input.

type ContributionPayload struct {
	Challenge string `json:"challenge"`
	Repo      string `json:"repo,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Note      string `json:"note,omitempty"`
}

type DeployPayload struct {
	Challenge string `json:"challenge"`
	TokenID   any    `json:"tokenId,omitempty"`
	Target    string `json:"target,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

type LayoutPayload struct {
	Challenge string `json:"challenge"`
	Layout    any    `json:"layout"`
}

type LLMPayload struct {
	Challenge string `json:"challenge"`
	Prompt    string `json:"prompt"`
}

type BidPayload struct {
	Challenge        string             `json:"challenge"`
	ContractID       string             `json:"contractId"`
	Amount           string             `json:"amount"`
	Currency         string             `json:"currency,omitempty"`
	PerformanceScore float64            `json:"performanceScore,omitempty"`
	Milestones       []MilestonePayload `json:"milestones,omitempty"`
}

type MilestonePayload struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}
