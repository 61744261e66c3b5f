package bot

import (
	"errors"
	"github.com/jaam8/voting_registry/internal/models"
	"github.com/jaam8/voting_registry/internal/registry"
	"github.com/jaam8/voting_registry/internal/service"
	"github.com/jaam8/voting_registry/pkg/clock"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"strings"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakePoster struct {
	mu        sync.Mutex
	posts     []*model.Post
	ephemeral []*model.PostEphemeral
	err       error
}

func (f *fakePoster) CreatePost(post *model.Post) (*model.Post, *model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	f.posts = append(f.posts, post)
	return post, &model.Response{StatusCode: 201}, nil
}

func (f *fakePoster) CreatePostEphemeral(post *model.PostEphemeral) (*model.Post, *model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemeral = append(f.ephemeral, post)
	return post.Post, &model.Response{StatusCode: 201}, nil
}

func (f *fakePoster) lastPost(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.posts)
	return f.posts[len(f.posts)-1].Message
}

func (f *fakePoster) lastEphemeral(t *testing.T) *model.PostEphemeral {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.ephemeral)
	return f.ephemeral[len(f.ephemeral)-1]
}

func setup(t *testing.T) (*ElectionHandler, *fakePoster, *clock.Manual) {
	t.Helper()
	c := clock.NewManual(t0)
	s := service.New(registry.New(zap.NewNop()), c, 7*24*time.Hour, zap.NewNop())
	p := &fakePoster{}
	return New(s, zap.NewNop(), p, "town-square"), p, c
}

func command(user, message string) *model.Post {
	return &model.Post{UserId: user, ChannelId: "town-square", Message: message}
}

func TestParseCreate(t *testing.T) {
	req, err := parseCreate(`/election create 90m "Board" "yearly vote" "Alice|chair" "Bob" " Carol | treasurer "`)
	require.NoError(t, err)
	assert.Equal(t, "Board", req.Title)
	assert.Equal(t, "yearly vote", req.Description)
	assert.Equal(t, 90*time.Minute, req.Duration)
	assert.Equal(t, []models.CandidateSpec{
		{Name: "Alice", Description: "chair"},
		{Name: "Bob"},
		{Name: "Carol", Description: "treasurer"},
	}, req.Candidates)

	_, err = parseCreate(`/election create`)
	assert.ErrorIs(t, err, errUsage)
	_, err = parseCreate(`/election create soon "Board" "" "Alice" "Bob"`)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = parseCreate(`/election create 1h "Board"`)
	assert.ErrorIs(t, err, errUsage)

	req, err = parseCreate(`/election create 1h "Board" "" "Alice"`)
	require.NoError(t, err)
	assert.ErrorIs(t, req.Validate(), models.ErrNotEnoughCandidates)
}

func TestCreateVoteAndResult(t *testing.T) {
	h, p, c := setup(t)

	h.HandlePost(command("creator", `/election create 1m "Representative" "spring" "Alice" "Bob"`))
	msg := p.lastPost(t)
	assert.Contains(t, msg, "**Election ID**: 1")
	assert.Contains(t, msg, "[1] *Alice*")
	assert.Contains(t, msg, "[2] *Bob*")

	c.Advance(time.Second)
	h.HandlePost(command("user-a", "/election vote 1 1"))
	reply := p.lastEphemeral(t)
	assert.Equal(t, "user-a", reply.UserID)
	assert.Equal(t, "your vote successfully written", reply.Post.Message)

	h.HandlePost(command("user-a", "/election vote 1 2"))
	assert.Equal(t, models.ErrAlreadyVoted.Error(), p.lastEphemeral(t).Post.Message)

	h.HandlePost(command("user-b", "/election vote 1 6"))
	assert.Equal(t, "not found candidate: 6", p.lastEphemeral(t).Post.Message)

	h.HandlePost(command("user-b", "/election vote 7 1"))
	assert.Equal(t, "not found election with id: 7", p.lastEphemeral(t).Post.Message)

	h.HandlePost(command("user-a", "/election status 1"))
	assert.Equal(t, "**Representative** is open, you have voted", p.lastEphemeral(t).Post.Message)

	c.Set(t0.Add(61 * time.Second))
	h.HandlePost(command("user-c", "/election vote 1 1"))
	assert.Equal(t, "election 1 is not open for voting", p.lastEphemeral(t).Post.Message)

	h.HandlePost(command("user-a", "/election result 1"))
	msg = p.lastPost(t)
	assert.Contains(t, msg, "**Status**: closed")
	assert.Contains(t, msg, "**Total votes**: 1")
	assert.Contains(t, msg, "[1] votes: **1** (*Alice*)")
	assert.Contains(t, msg, "[2] votes: **0** (*Bob*)")
}

func TestCreateRejectsInvalidElection(t *testing.T) {
	h, p, _ := setup(t)

	h.HandlePost(command("creator", `/election create 1m "Lonely" "" "Alice"`))
	assert.Equal(t, models.ErrNotEnoughCandidates.Error(), p.lastEphemeral(t).Post.Message)

	h.HandlePost(command("creator", `/election create 1000h "Long" "" "Alice" "Bob"`))
	assert.Equal(t, models.ErrDurationTooLong.Error(), p.lastEphemeral(t).Post.Message)

	h.HandlePost(command("creator", "/election vote 1"))
	assert.Equal(t, errUsage.Error(), p.lastEphemeral(t).Post.Message)

	assert.Empty(t, p.posts)
}

func TestListCommands(t *testing.T) {
	h, p, c := setup(t)

	h.HandlePost(command("creator", "/election list"))
	assert.Equal(t, "no elections found", p.lastPost(t))

	h.HandlePost(command("alice", `/election create 10s "Short" "" "A" "B"`))
	h.HandlePost(command("bob", `/election create 1h "Long" "" "A" "B"`))
	c.Advance(time.Minute)

	h.HandlePost(command("alice", "/election list"))
	msg := p.lastPost(t)
	assert.Contains(t, msg, "#1 *Short* (closed")
	assert.Contains(t, msg, "#2 *Long* (open")

	h.HandlePost(command("alice", "/election active"))
	msg = p.lastPost(t)
	assert.NotContains(t, msg, "Short")
	assert.Contains(t, msg, "Long")

	h.HandlePost(command("alice", "/election mine"))
	msg = p.lastPost(t)
	assert.Contains(t, msg, "Short")
	assert.NotContains(t, msg, "Long")
}

func TestHandlePostIgnoresOtherMessages(t *testing.T) {
	h, p, _ := setup(t)

	h.HandlePost(command("user", "hello there"))
	h.HandlePost(command("user", ""))
	assert.Empty(t, p.posts)
	assert.Empty(t, p.ephemeral)

	h.HandlePost(command("user", "/election"))
	assert.True(t, strings.HasPrefix(p.lastPost(t), "i know only this command"))
	h.HandlePost(command("user", "/election dance"))
	assert.Equal(t, HelpMessage, p.lastPost(t))
}

func TestSendFailureIsReported(t *testing.T) {
	h, p, _ := setup(t)
	p.err = errors.New("mattermost is down")

	h.HandlePost(command("creator", `/election create 1m "Board" "" "Alice" "Bob"`))
	assert.Equal(t, "something went wrong", p.lastEphemeral(t).Post.Message)
}
