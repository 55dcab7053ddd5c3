package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/bidding"
	"github.com/chainbid/relay/internal/http/dto"
	"github.com/chainbid/relay/internal/models"
	"github.com/chainbid/relay/internal/relay"
)

// BidHandler exposes the bid and escrow surface. Reads are open; every
// mutation arrives as a signed relay envelope and acts as the signer.
type BidHandler struct {
	engine *bidding.Engine
	auth   *relay.Authorizer
	log    *zap.Logger
}

func NewBidHandler(engine *bidding.Engine, auth *relay.Authorizer, log *zap.Logger) *BidHandler {
	return &BidHandler{engine: engine, auth: auth, log: log}
}

func writeBidError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, bidding.ErrBidNotFound), errors.Is(err, bidding.ErrEscrowNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, bidding.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, bidding.ErrAlreadyResolved), errors.Is(err, bidding.ErrAlreadyReleased):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, bidding.ErrInvalidBid), errors.Is(err, bidding.ErrInvalidIndex),
		errors.Is(err, bidding.ErrMilestoneSumMismatch):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

func (h *BidHandler) Submit(c *fiber.Ctx) error {
	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	grant, err := h.auth.Authorize(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	var payload dto.BidPayload
	if err := json.Unmarshal([]byte(req.Payload), &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payload"})
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}
	milestones := make([]models.MilestoneSpec, 0, len(payload.Milestones))
	for _, m := range payload.Milestones {
		ma, err := decimal.NewFromString(m.Amount)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone amount"})
		}
		milestones = append(milestones, models.MilestoneSpec{Description: m.Description, Amount: ma})
	}

	bid, err := h.engine.SubmitBid(c.Context(), bidding.SubmitBidInput{
		ContractID:        payload.ContractID,
		ContractorAddress: grant.Address,
		Amount:            amount,
		Currency:          payload.Currency,
		PerformanceScore:  payload.PerformanceScore,
		Milestones:        milestones,
	})
	if err != nil {
		return writeBidError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: bid})
}

func (h *BidHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid bid id"})
	}
	bid, err := h.engine.GetBid(c.Context(), id)
	if err != nil {
		return writeBidError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: bid})
}

func (h *BidHandler) List(c *fiber.Ctx) error {
	filter := bidding.BidFilter{Limit: 50}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("contract_id"); v != "" {
		filter.ContractID = &v
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	bids, err := h.engine.ListBids(c.Context(), filter)
	if err != nil {
		h.log.Error("list bids failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: bids})
}

func (h *BidHandler) Accept(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid bid id"})
	}

	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	grant, err := h.auth.Authorize(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	escrow, err := h.engine.AcceptBid(c.Context(), id, grant.Address)
	if err != nil {
		return writeBidError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *BidHandler) Reject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid bid id"})
	}

	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	grant, err := h.auth.Authorize(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	if err := h.engine.RejectBid(c.Context(), id, grant.Address); err != nil {
		return writeBidError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *BidHandler) Ranking(c *fiber.Ctx) error {
	contractID := c.Params("id")
	if contractID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}
	ranked, err := h.engine.RankBids(c.Context(), contractID)
	if err != nil {
		h.log.Error("ranking failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ranked})
}

func (h *BidHandler) GetEscrow(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}
	escrow, err := h.engine.GetEscrow(c.Context(), id)
	if err != nil {
		return writeBidError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *BidHandler) ReleaseMilestone(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone index"})
	}

	var req dto.SignedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	grant, err := h.auth.Authorize(c.Context(), relay.AuthRequest(req))
	if err != nil {
		return writeAuthError(c, err)
	}

	escrow, err := h.engine.ReleaseMilestone(c.Context(), id, index, grant.Address)
	if err != nil {
		return writeBidError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}
