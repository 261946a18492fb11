package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/votes/models"
	"github.com/plumehq/plume/votes/services"
)

// VoteHandler handles vote HTTP requests
type VoteHandler struct {
	voteService services.VoteService
}

// NewVoteHandler creates a new VoteHandler with injected dependencies
func NewVoteHandler(voteService services.VoteService) *VoteHandler {
	return &VoteHandler{voteService: voteService}
}

// Vote handles POST /v1/vote. The body carries {post_id, vote} where vote
// must be exactly true, false, or null.
func (h *VoteHandler) Vote(c *fiber.Ctx) error {
	var req models.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return httperr.Handle(c, httperr.BadRequest("invalid request body"))
	}

	user, ok := c.Locals(types.UserCtxName).(types.UserContext)
	if !ok {
		return httperr.Handle(c, httperr.BadRequest("missing user context"))
	}

	score, err := h.voteService.Vote(c.UserContext(), &user, &req)
	if err != nil {
		return httperr.Handle(c, err)
	}

	return c.JSON(score)
}

// Score handles GET /v1/score/:post_id.
func (h *VoteHandler) Score(c *fiber.Ctx) error {
	score, err := h.voteService.Score(c.UserContext(), c.Params("post_id"))
	if err != nil {
		return httperr.Handle(c, err)
	}

	return c.JSON(score)
}
