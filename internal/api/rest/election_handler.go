package rest

import (
	"errors"
	"fmt"
	"github.com/gofiber/fiber/v2"
	"github.com/jaam8/voting_registry/internal/models"
	"github.com/jaam8/voting_registry/internal/service"
	"go.uber.org/zap"
	"math"
	"strconv"
	"time"
)

// VoterHeader carries the identity authenticated by the gateway in front of the API.
const VoterHeader = "X-Voter-Identity"

type ElectionHandler struct {
	s *service.ElectionService
	l *zap.Logger
}

func SetupRoutes(app *fiber.App, s *service.ElectionService, l *zap.Logger) {
	h := &ElectionHandler{s: s, l: l}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	elections := app.Group("/api/v1/elections")
	elections.Post("/", h.CreateElection)
	elections.Get("/", h.ListElections)
	elections.Get("/:id", h.GetElection)
	elections.Get("/:id/candidates", h.GetCandidates)
	elections.Get("/:id/results", h.GetResults)
	elections.Post("/:id/votes", h.CastVote)
	elections.Get("/:id/voters/:voter", h.HasVoted)
}

// CreateElection handles POST /api/v1/elections
func (h *ElectionHandler) CreateElection(c *fiber.Ctx) error {
	creator := c.Get(VoterHeader)
	if creator == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{
			Error:   "unauthorized",
			Message: VoterHeader + " header required",
		})
	}
	var req createElectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid_json"})
	}
	if req.DurationSeconds > maxDurationSeconds {
		return h.writeError(c, errDurationOverflow)
	}

	id, err := h.s.CreateElection(models.NewElection{
		Title:       req.Title,
		Description: req.Description,
		Candidates:  req.Candidates,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
		Creator:     creator,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(createElectionResponse{ID: id})
}

// ListElections handles GET /api/v1/elections[?creator=...|?active=true]
func (h *ElectionHandler) ListElections(c *fiber.Ctx) error {
	var (
		views []models.ElectionView
		err   error
	)
	switch creator := c.Query("creator"); {
	case creator != "":
		views, err = h.s.ListByCreator(creator)
	case c.QueryBool("active"):
		views, err = h.s.ListActive()
	default:
		views, err = h.s.ListElections()
	}
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(views)
}

// GetElection handles GET /api/v1/elections/:id
func (h *ElectionHandler) GetElection(c *fiber.Ctx) error {
	id, err := electionID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	view, err := h.s.GetElection(id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(view)
}

// GetCandidates handles GET /api/v1/elections/:id/candidates
func (h *ElectionHandler) GetCandidates(c *fiber.Ctx) error {
	id, err := electionID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	candidates, err := h.s.GetCandidates(id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(candidates)
}

// GetResults handles GET /api/v1/elections/:id/results
func (h *ElectionHandler) GetResults(c *fiber.Ctx) error {
	id, err := electionID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	res, err := h.s.Results(id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

// CastVote handles POST /api/v1/elections/:id/votes
func (h *ElectionHandler) CastVote(c *fiber.Ctx) error {
	voter := c.Get(VoterHeader)
	if voter == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{
			Error:   "unauthorized",
			Message: VoterHeader + " header required",
		})
	}
	id, err := electionID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req castVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid_json"})
	}
	if req.CandidateIndex == nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error:   "invalid_input",
			Message: "candidate_index is required",
		})
	}

	if err := h.s.CastVote(id, voter, *req.CandidateIndex); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HasVoted handles GET /api/v1/elections/:id/voters/:voter
func (h *ElectionHandler) HasVoted(c *fiber.Ctx) error {
	id, err := electionID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	voter := c.Params("voter")
	voted, err := h.s.HasVoted(id, voter)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(hasVotedResponse{ElectionID: id, Voter: voter, Voted: voted})
}

func (h *ElectionHandler) writeError(c *fiber.Ctx, err error) error {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status, code = fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, models.ErrNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrVotingClosed):
		status, code = fiber.StatusConflict, "voting_closed"
	case errors.Is(err, models.ErrAlreadyVoted):
		status, code = fiber.StatusConflict, "already_voted"
	case errors.Is(err, models.ErrInvalidCandidate):
		status, code = fiber.StatusUnprocessableEntity, "invalid_candidate"
	default:
		return err
	}
	h.l.Debug("request rejected", zap.String("code", code), zap.Error(err))
	return c.Status(status).JSON(errorResponse{Error: code, Message: err.Error()})
}

// maxDurationSeconds is the longest duration_seconds that still fits a time.Duration.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

var (
	errBadElectionID    = fmt.Errorf("%w: election id should be a positive number", models.ErrInvalidInput)
	errDurationOverflow = fmt.Errorf("%w: duration_seconds should not exceed %d", models.ErrInvalidInput, maxDurationSeconds)
)

func electionID(c *fiber.Ctx) (models.ElectionID, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadElectionID
	}
	return models.ElectionID(id), nil
}
