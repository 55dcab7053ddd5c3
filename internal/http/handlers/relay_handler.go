package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/audit"
	"github.com/chainbid/relay/internal/chain"
	"github.com/chainbid/relay/internal/events"
	"github.com/chainbid/relay/internal/gh"
	"github.com/chainbid/relay/internal/http/dto"
	"github.com/chainbid/relay/internal/jobs"
	"github.com/chainbid/relay/internal/models"
	"github.com/chainbid/relay/internal/nonce"
	"github.com/chainbid/relay/internal/relay"
)

type RelayHandler struct {
	auth       *relay.Authorizer
	nonces     *nonce.Registry
	auditLog   audit.Recorder
	dispatcher *gh.Dispatcher
	streamer   *jobs.Streamer
	publisher  events.Publisher
	log        *zap.Logger

	contractAddress string
	defaultTokenID  int64
}

func NewRelayHandler(
	auth *relay.Authorizer,
	nonces *nonce.Registry,
	auditLog audit.Recorder,
	dispatcher *gh.Dispatcher,
	streamer *jobs.Streamer,
	publisher events.Publisher,
	contractAddress string,
	defaultTokenID int64,
	log *zap.Logger,
) *RelayHandler {
	return &RelayHandler{
		auth:            auth,
		nonces:          nonces,
		auditLog:        auditLog,
		dispatcher:      dispatcher,
		streamer:        streamer,
		publisher:       publisher,
		contractAddress: contractAddress,
		defaultTokenID:  defaultTokenID,
		log:             log,
	}
}

// writeAuthError maps pipeline errors onto the documented status codes.
// 400 invalid request or spent nonce, 401 bad signature, 403 not a holder,
// 429 rate limited, 503 chain unreachable.
func writeAuthError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, relay.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	case errors.Is(err, nonce.ErrNonceInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown or expired nonce"})
	case errors.Is(err, relay.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{Error: "rate limited"})
	case errors.Is(err, relay.ErrNotHolder):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "token holder check failed"})
	case errors.Is(err, chain.ErrVerificationUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "holder verification unavailable"})
	case errors.Is(err, relay.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

// Challenge issues a fresh single-use challenge for the client to sign.
func (h *RelayHandler) Challenge(c *fiber.Ctx) error {
	challenge, err := h.nonces.Issue(c.Context())
	if err != nil {
		h.log.Error("challenge issue failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.ChallengeResponse{Challenge: challenge})
}

func (h *RelayHandler) record(ctx context.Context, action, author string, meta any) {
	if err := h.auditLog.Append(ctx, models.AuditEntry{
		Type:   action,
		Author: author,
		Meta:   meta,
	}); err != nil {
		h.log.Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
	if err := h.publisher.Publish(ctx, events.StreamRelay, events.Event{
		Type:    events.EventActionAuthorized,
		Payload: map[string]any{"action": action, "author": author},
	}); err != nil {
		h.log.Warn("event publish failed", zap.Error(err))
	}
}

// dispatch forwards the action to CI when credentials are configured. A
// missing dispatcher is a degrade, not a failure: the action was already
// authorized and audited.
func (h *RelayHandler) dispatch(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	err := h.dispatcher.Dispatch(ctx, eventType, payload)
	if errors.Is(err, gh.ErrNotConfigured) {
		h.log.Warn("action accepted without dispatch credentials, not forwarding",
			zap.String("event_type", eventType))
		return "accepted (dispatch not configured)", nil
	}
	if err != nil {
		return "", err
	}
	return "dispatched", nil
}

// Contribution records a contribution claim. No holder gate: contributing
// requires only a valid wallet signature.
func (h *RelayHandler) Contribution(c *fiber.Ctx) error {
	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	grant, err := h.auth.Authorize(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	var payload dto.ContributionPayload
	_ = json.Unmarshal([]byte(req.Payload), &payload)

	h.record(c.Context(), models.AuditActionContribution, grant.Address, payload)

	message, err := h.dispatch(c.Context(), "contribution", map[string]any{
		"address": grant.Address,
		"repo":    payload.Repo,
		"kind":    payload.Kind,
	})
	if err != nil {
		h.log.Error("contribution dispatch failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "upstream dispatch failed"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Message: message})
}

// Checkin is the lightest authorized action: prove the wallet, burn the
// nonce, leave a trace.
func (h *RelayHandler) Checkin(c *fiber.Ctx) error {
	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	grant, err := h.auth.Authorize(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	h.record(c.Context(), models.AuditActionCheckin, grant.Address, nil)
	return c.JSON(dto.SuccessResponse{OK: true})
}

// Deploy is holder-gated: the signer must hold the configured token.
func (h *RelayHandler) Deploy(c *fiber.Ctx) error {
	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	grant, err := h.auth.AuthorizeHolder(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	var payload dto.DeployPayload
	_ = json.Unmarshal([]byte(req.Payload), &payload)

	h.record(c.Context(), models.AuditActionDeploy, grant.Address, payload)

	message, err := h.dispatch(c.Context(), "deploy", map[string]any{
		"address": grant.Address,
		"target":  payload.Target,
		"ref":     payload.Ref,
	})
	if err != nil {
		h.log.Error("deploy dispatch failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "upstream dispatch failed"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Message: message})
}

// Layout records a holder-gated layout mutation.
func (h *RelayHandler) Layout(c *fiber.Ctx) error {
	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	grant, err := h.auth.AuthorizeHolder(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	var payload dto.LayoutPayload
	_ = json.Unmarshal([]byte(req.Payload), &payload)

	h.record(c.Context(), models.AuditActionLayout, grant.Address, payload.Layout)
	return c.JSON(dto.SuccessResponse{OK: true})
}

// LLMRequest accepts a holder-gated generation job and returns its id
// immediately; output is consumed via the stream endpoint.
func (h *RelayHandler) LLMRequest(c *fiber.Ctx) error {
	var req dto.LLMRelayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	grant, err := h.auth.AuthorizeHolder(c.Context(), relay.AuthRequest(req.SignedRequest))
	if err != nil {
		return writeAuthError(c, err)
	}

	var payload dto.LLMPayload
	_ = json.Unmarshal([]byte(req.Payload), &payload)
	if payload.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "prompt is required"})
	}

	jobID, err := h.streamer.Submit(c.Context(), grant.Address, req.Model, payload.Prompt)
	if err != nil {
		h.log.Error("job submit failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	h.record(c.Context(), models.AuditActionLLMRequest, grant.Address, map[string]any{
		"job_id": jobID.String(),
		"model":  req.Model,
	})
	return c.JSON(dto.LLMAcceptedResponse{OK: true, JobID: jobID.String()})
}

// Audit exposes the trail and job table to operators.
func (h *RelayHandler) Audit(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	entries, err := h.auditLog.List(c.Context(), limit)
	if err != nil {
		h.log.Error("audit list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.AuditResponse{
		Audit: entries,
		Jobs:  h.streamer.List(),
	})
}

func (h *RelayHandler) Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{
		Status:          "ok",
		ContractAddress: h.contractAddress,
		DefaultTokenID:  h.defaultTokenID,
	})
}
