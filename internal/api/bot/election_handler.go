package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/jaam8/voting_registry/internal/models"
	"github.com/jaam8/voting_registry/internal/service"
	"github.com/mattermost/mattermost-server/v6/model"
	"go.uber.org/zap"
	"strconv"
	"strings"
	"time"
)

const (
	COMMAND     = "/election"
	HelpMessage = "i know only this command:\n" +
		"- `/election create 60m \"title\" \"description\" \"candidate1\" \"candidate2|about candidate2\" \"candidateN\"`\n" +
		"- `/election vote election_id candidate_number`\n" +
		"- `/election result election_id`\n" +
		"- `/election status election_id`\n" +
		"- `/election list`\n" +
		"- `/election active`\n" +
		"- `/election mine`\n" +
		"- `/election help`"
	timeLayout = "2006-01-02 15:04:05 MST"
)

var errUsage = errors.New("wrong command format, try `/election help`")

// Poster is the part of the Mattermost client the bot writes with.
type Poster interface {
	CreatePost(post *model.Post) (*model.Post, *model.Response, error)
	CreatePostEphemeral(post *model.PostEphemeral) (*model.Post, *model.Response, error)
}

type ElectionHandler struct {
	s         *service.ElectionService
	l         *zap.Logger
	client    Poster
	channelID string
}

func New(s *service.ElectionService, l *zap.Logger, client Poster, channelID string) *ElectionHandler {
	return &ElectionHandler{
		s:         s,
		l:         l,
		client:    client,
		channelID: channelID,
	}
}

func HandleMessage(h *ElectionHandler, event *model.WebSocketEvent, botID string) {
	raw, ok := event.GetData()["post"].(string)
	if !ok {
		h.l.Error("event has no post")
		return
	}
	post := &model.Post{}
	if err := json.Unmarshal([]byte(raw), post); err != nil {
		h.l.Error("error unmarshalling post", zap.Error(err))
		return
	}
	if post.UserId == botID {
		return
	}
	h.HandlePost(post)
}

// HandlePost executes one /election command. The Mattermost user id is the voter identity.
func (h *ElectionHandler) HandlePost(post *model.Post) {
	args := strings.Fields(post.Message)
	if len(args) == 0 || args[0] != COMMAND {
		return
	}
	if len(args) < 2 {
		h.sendOrLog(HelpMessage)
		return
	}
	h.l.Info("new request for the bot",
		zap.String("command", args[0]),
		zap.String("subcommand", args[1]),
		zap.String("user_id", post.UserId),
		zap.String("channel_id", post.ChannelId))

	var err error
	switch args[1] {
	case "create":
		err = h.CreateElection(post.Message, post.UserId)
	case "vote":
		if len(args) < 4 {
			err = errUsage
			break
		}
		err = h.Vote(args[2], args[3], post.UserId)
		if err == nil {
			h.replyEphemeral(post, "your vote successfully written")
		}
	case "result":
		if len(args) < 3 {
			err = errUsage
			break
		}
		err = h.GetResult(args[2])
	case "status":
		if len(args) < 3 {
			err = errUsage
			break
		}
		var msg string
		if msg, err = h.Status(args[2], post.UserId); err == nil {
			h.replyEphemeral(post, msg)
		}
	case "list":
		err = h.List(h.s.ListElections)
	case "active":
		err = h.List(h.s.ListActive)
	case "mine":
		err = h.List(func() ([]models.ElectionView, error) {
			return h.s.ListByCreator(post.UserId)
		})
	default:
		h.sendOrLog(HelpMessage)
	}
	if err != nil {
		h.replyEphemeral(post, h.errorMessage(err, args))
	}
}

func (h *ElectionHandler) CreateElection(message, creatorID string) error {
	req, err := parseCreate(message)
	if err != nil {
		h.l.Warn("wrong create command", zap.Error(err))
		return err
	}
	req.Creator = creatorID
	h.l.Debug("data for creating new election",
		zap.String("title", req.Title),
		zap.String("creator_id", creatorID),
		zap.Duration("duration", req.Duration),
		zap.Int("candidates", len(req.Candidates)))

	id, err := h.s.CreateElection(req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			h.l.Warn("invalid election", zap.Error(err))
			return err
		}
		h.l.Error("failed creating election", zap.Error(err))
		return fmt.Errorf("handler: failed to create election: %w", err)
	}
	view, err := h.s.GetElection(id)
	if err != nil {
		return fmt.Errorf("handler: failed to read created election: %w", err)
	}

	message = fmt.Sprintf("**Election ID**: %d\n**Title**: %s\n**Ends**: %s\n**Candidates**:\n",
		id, view.Title, view.EndTime.Format(timeLayout))
	for i, c := range req.Candidates {
		message += fmt.Sprintf("  [%d] *%s*\n", i+1, c.Name)
	}
	if err = h.SendMsg(message); err != nil {
		h.l.Error("failed sending election message", zap.Error(err))
		return fmt.Errorf("handler: failed to send message: %w", err)
	}
	h.l.Info("successfully created election",
		zap.Uint64("election_id", uint64(id)),
		zap.String("title", view.Title))
	return nil
}

// Vote takes the 1-based candidate number shown in chat.
func (h *ElectionHandler) Vote(electionID, candidateNumber, userID string) error {
	id, err := parseElectionID(electionID)
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(candidateNumber)
	if err != nil {
		return models.ErrInvalidCandidate
	}
	h.l.Debug("data for voting",
		zap.Uint64("election_id", uint64(id)),
		zap.Int("candidate_number", number))

	if err = h.s.CastVote(id, userID, number-1); err != nil {
		h.l.Warn("vote rejected",
			zap.Uint64("election_id", uint64(id)),
			zap.String("user_id", userID),
			zap.Error(err))
		return err
	}
	h.l.Info("voted successfully",
		zap.Uint64("election_id", uint64(id)),
		zap.String("user_id", userID))
	return nil
}

func (h *ElectionHandler) GetResult(electionID string) error {
	id, err := parseElectionID(electionID)
	if err != nil {
		return err
	}
	res, err := h.s.Results(id)
	if err != nil {
		return err
	}
	if err = h.SendMsg(formatResults(res)); err != nil {
		h.l.Error("error sending message", zap.Error(err))
		return err
	}
	h.l.Info("successfully sent election result", zap.Uint64("election_id", uint64(id)))
	return nil
}

func (h *ElectionHandler) Status(electionID, userID string) (string, error) {
	id, err := parseElectionID(electionID)
	if err != nil {
		return "", err
	}
	view, err := h.s.GetElection(id)
	if err != nil {
		return "", err
	}
	voted, err := h.s.HasVoted(id, userID)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("**%s** is %s, ", view.Title, view.Status)
	if voted {
		return msg + "you have voted", nil
	}
	return msg + "you have not voted yet", nil
}

func (h *ElectionHandler) List(list func() ([]models.ElectionView, error)) error {
	views, err := list()
	if err != nil {
		return err
	}
	if len(views) == 0 {
		return h.SendMsg("no elections found")
	}
	message := "**Elections**:\n"
	for _, v := range views {
		message += fmt.Sprintf("  #%d *%s* (%s, votes: %d, ends %s)\n",
			v.ID, v.Title, v.Status, v.TotalVotes, v.EndTime.Format(timeLayout))
	}
	return h.SendMsg(message)
}

func (h *ElectionHandler) SendMsg(message string) error {
	post := &model.Post{
		ChannelId: h.channelID,
		Message:   message,
	}
	_, resp, err := h.client.CreatePost(post)
	if resp != nil {
		h.l.Debug("send new message",
			zap.String("channel_id", post.ChannelId),
			zap.Int("status_code", resp.StatusCode))
	}
	return err
}

func (h *ElectionHandler) sendOrLog(message string) {
	if err := h.SendMsg(message); err != nil {
		h.l.Error("error sending message", zap.Error(err))
	}
}

func (h *ElectionHandler) replyEphemeral(post *model.Post, message string) {
	_, _, err := h.client.CreatePostEphemeral(&model.PostEphemeral{
		UserID: post.UserId,
		Post:   &model.Post{ChannelId: post.ChannelId, Message: message},
	})
	if err != nil {
		h.l.Error("error sending ephemeral message", zap.Error(err))
	}
}

func (h *ElectionHandler) errorMessage(err error, args []string) string {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	switch {
	case errors.Is(err, errUsage):
		return err.Error()
	case errors.Is(err, models.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, models.ErrNotFound):
		return fmt.Sprintf("not found election with id: %s", arg(2))
	case errors.Is(err, models.ErrVotingClosed):
		return fmt.Sprintf("election %s is not open for voting", arg(2))
	case errors.Is(err, models.ErrAlreadyVoted):
		return err.Error()
	case errors.Is(err, models.ErrInvalidCandidate):
		return fmt.Sprintf("not found candidate: %s", arg(3))
	default:
		h.l.Error("failed to handle command", zap.Strings("args", args), zap.Error(err))
		return "something went wrong"
	}
}

func formatResults(res models.Results) string {
	message := fmt.Sprintf("**Title**: %s\n**Status**: %s\n**Total votes**: %d\n",
		res.Election.Title, res.Election.Status, res.Election.TotalVotes)
	for _, c := range res.Candidates {
		message += fmt.Sprintf("  [%d] votes: **%d** (*%s*)\n", c.Index+1, c.VoteCount, c.Name)
	}
	return message
}

// parseCreate reads `/election create <duration> "title" "description" "name|about" ...`.
func parseCreate(message string) (models.NewElection, error) {
	fields := strings.Fields(message)
	if len(fields) < 3 {
		return models.NewElection{}, errUsage
	}
	duration, err := time.ParseDuration(fields[2])
	if err != nil {
		return models.NewElection{}, fmt.Errorf("%w: invalid duration %q", models.ErrInvalidInput, fields[2])
	}
	var quoted []string
	for i, val := range strings.Split(message, "\"") {
		if i%2 != 0 {
			quoted = append(quoted, val)
		}
	}
	if len(quoted) < 2 {
		return models.NewElection{}, errUsage
	}

	req := models.NewElection{
		Title:       strings.TrimSpace(quoted[0]),
		Description: strings.TrimSpace(quoted[1]),
		Duration:    duration,
	}
	for _, raw := range quoted[2:] {
		name, about, _ := strings.Cut(raw, "|")
		req.Candidates = append(req.Candidates, models.CandidateSpec{
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(about),
		})
	}
	return req, nil
}

func parseElectionID(raw string) (models.ElectionID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, models.ErrNotFound
	}
	return models.ElectionID(id), nil
}
